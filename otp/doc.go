// Package otp controls One-Time-Programmable memory: an array whose bits
// only ever go from unset to set, and whose programming sometimes needs
// extended-timing "soak" retries.
//
// # Overview
//
// A Controller serializes access to one physical array behind a
// register.Bus:
//   - Sessions unlock the hardware, detect the chip variant and snapshot
//     the protection state
//   - The region map validates every address before any hardware access
//   - The program engine runs the program/verify/soak state machine
//   - Strap cells are backed by redundant slots with a limited number of
//     programming attempts
//   - Region protection and the global lock are one-way
//
// # Basic Usage
//
//	ctrl := otp.New[uint32](bus)
//
//	if _, err := ctrl.BeginSession(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer ctrl.EndSession()
//
//	out, err := ctrl.WriteRegion(ctx, otp.Configuration, 0, []uint32{0xA5A5_0001, 0x0000_00FF})
//	if err != nil {
//	    log.Printf("%s: %v", out.Status(), err)
//	}
//
// # Soak Programming
//
// Write falls back to the controller's soak configuration when a normal
// pulse does not verify. SoakProgram and ProgramWithSoakFallback take an
// explicit configuration:
//
//	cfg := otp.RecommendSoakConfig(data)
//	out, err := ctrl.ProgramWithSoakFallback(ctx, otp.BulkData, 0x100, data, cfg)
//
// # Failure Policy
//
// Multi-word writes continue past a word that fails permanently and
// report an aggregate Outcome by default. StopOnFailure makes a single
// call fail fast:
//
//	out, err := ctrl.WriteRegion(ctx, otp.BulkData, 0, data, otp.StopOnFailure())
//
// Hardware timeouts and faults always abort the call with the partial
// outcome. A context is only honored between words; a pulse in flight is
// never interrupted.
//
// # Capabilities
//
// New wires every capability. A Builder wires only what the hardware
// supports; the rest fail with ErrUnsupported:
//
//	ctrl := otp.NewBuilder[uint16](bus).WithProtection().Build()
//	if _, ok := ctrl.SoakProgrammer(); !ok {
//	    // no soak on this part
//	}
//
// # Error Handling
//
// All errors carry an ErrorKind and match the package sentinels:
//
//	if errors.Is(err, otp.ErrRegionProtected) {
//	    // rejected from the cached snapshot, no pulse was issued
//	}
//
//	var ve *otp.VerificationError
//	if errors.As(err, &ve) {
//	    fmt.Printf("missing bits 0x%X\n", ve.Missing())
//	}
package otp
