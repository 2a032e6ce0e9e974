// Package manifest loads declarative OTP provisioning plans.
//
// A plan lists (region, offset, values) word entries, (cell, value) strap
// entries, the regions to protect and whether to burn the global lock.
// Plans are written in YAML:
//
//	variant: RevA1
//	words:
//	  - region: configuration
//	    offset: 0x0
//	    values: [0xA5A50001, 0xFF]
//	straps:
//	  - cell: 3
//	    value: true
//	protect: [configuration]
//	lock: false
//
// or in a line-oriented text format:
//
//	# board bring-up
//	V RevA1
//	W configuration 0x0 0xA5A50001 0xFF
//	S 3 1
//	P configuration
//
// Both decode to the same Manifest and hash to the same Digest.
package manifest
