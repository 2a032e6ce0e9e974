// Package provision applies a manifest to an OTP controller in a single
// session.
//
// Apply is synchronous. Start runs the same plan on a dedicated goroutine
// and delivers the Report on a channel, so a caller can keep a UI or a
// watchdog running while pulses are issued:
//
//	m, err := manifest.Parse("board.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	journal, err := provision.OpenFileJournal("board.journal")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer journal.Close()
//
//	res := <-provision.Start[uint32](ctx, ctrl, m, provision.WithJournal(journal))
//	if res.Err != nil {
//	    log.Fatal(res.Err)
//	}
//
// The journal is an append-only sequence of CBOR maps, one per programmed
// word, strap, protection bit and lock, read back with ReadJournal.
package provision
