package otp

import (
	"context"
	"errors"
	"time"
)

type engineState int

const (
	stateInit engineState = iota
	stateNormalProgram
	stateVerify
	stateNeedsSoak
	stateSoakProgram
	stateReVerify
	stateRetrySoak
	stateSuccess
	stateFailure
)

var stateNames = [...]string{
	stateInit:          "init",
	stateNormalProgram: "normal-program",
	stateVerify:        "verify",
	stateNeedsSoak:     "needs-soak",
	stateSoakProgram:   "soak-program",
	stateReVerify:      "re-verify",
	stateRetrySoak:     "retry-soak",
	stateSuccess:       "success",
	stateFailure:       "failure",
}

func (s engineState) String() string {
	return stateNames[s]
}

type programMode int

const (
	// modeNormal issues one normal pulse, then soak pulses if allowed
	modeNormal programMode = iota
	// modeSoakOnly skips the normal pulse
	modeSoakOnly
)

// engine runs the program/verify/soak state machine for one call. All
// address and protection checks have passed before it is built.
type engine struct {
	op       string
	hw       *hardware
	tracker  *Tracker
	soak     SoakConfig
	useSoak  bool
	mode     programMode
	policy   FailurePolicy
	progress ProgressCallback
	logger   Logger

	start  time.Time
	pulses int
	word   int
	total  int
}

// run programs targets word by word. Cancellation is honored between
// words only; a hardware timeout or fault aborts at once.
func (e *engine) run(ctx context.Context, rng PhysicalRange, info RegionInfo, targets []uint64) (*Outcome, error) {
	e.start = time.Now()
	e.total = len(targets)
	out := newOutcome(info.Region, len(targets))
	var errs []error
	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		w := &out.Words[i]
		w.Offset = rng.Offset + uint32(i)
		w.Address = rng.Address(i)
		w.Target = target
		e.word = i
		e.report(PhaseProgramming, info.Region)

		var err error
		if info.AttemptLimited {
			err = e.programCell(w, info)
		} else {
			err = e.programWord(w, info)
		}
		e.pulses += w.Pulses()
		if err == nil {
			continue
		}
		w.Err = err
		errs = append(errs, err)
		if w.Result == HardwareFailed {
			e.debug("aborting after hardware failure", "address", w.Address, "error", err)
			break
		}
		if e.policy == FailFast {
			break
		}
	}
	out.Elapsed = time.Since(e.start)
	e.word = e.total
	e.report(PhaseComplete, info.Region)
	return out, errors.Join(errs...)
}

func (e *engine) programWord(w *WordOutcome, info RegionInfo) error {
	target := w.Target & wordMask(e.hw.wordBits)
	soakOK := e.useSoak && info.SoakCapable
	retries := 0
	st := stateInit
	for {
		e.debug("engine state", "address", w.Address, "state", st)
		switch st {
		case stateInit:
			rb, err := e.hw.readWord(w.Address, e.soak.VerifyMargin)
			if err != nil {
				return e.hardwareFailed(w, err)
			}
			w.Readback = rb
			switch {
			case covers(rb, target):
				w.Result = AlreadySet
				return nil
			case e.mode == modeSoakOnly:
				st = stateNeedsSoak
			default:
				st = stateNormalProgram
			}

		case stateNormalProgram:
			fired, err := e.hw.pulse(w.Address, target, 0)
			if fired {
				w.NormalPulses++
			}
			if err != nil {
				return e.hardwareFailed(w, err)
			}
			st = stateVerify

		case stateVerify, stateReVerify:
			e.settle()
			rb, err := e.hw.readWord(w.Address, e.soak.VerifyMargin)
			if err != nil {
				return e.hardwareFailed(w, err)
			}
			w.Readback = rb
			switch {
			case covers(rb, target):
				st = stateSuccess
			case st == stateVerify:
				st = stateNeedsSoak
			case retries < e.soak.MaxRetries:
				st = stateRetrySoak
			default:
				st = stateFailure
			}

		case stateNeedsSoak:
			if !soakOK {
				w.Result = VerifyFailed
				return addrError(VerificationFailed, e.op, w.Region, w.Offset, verification(w))
			}
			if retries >= e.soak.MaxRetries {
				st = stateFailure
				break
			}
			e.report(PhaseSoaking, w.Region)
			st = stateSoakProgram

		case stateRetrySoak:
			st = stateSoakProgram

		case stateSoakProgram:
			missing := target &^ w.Readback
			fired, err := e.hw.pulse(w.Address, missing, e.soak.PulseDuration)
			if fired {
				w.SoakPulses++
				retries++
			}
			if err != nil {
				return e.hardwareFailed(w, err)
			}
			st = stateReVerify

		case stateSuccess:
			if w.SoakPulses > 0 {
				w.Result = Soaked
			} else {
				w.Result = Normal
			}
			return nil

		case stateFailure:
			w.Result = Exhausted
			return addrError(WriteExhausted, e.op, w.Region, w.Offset, verification(w))
		}
	}
}

// programCell drives an attempt-limited cell to its target logical value.
// Every pulse consumes one attempt of the slot it hits.
func (e *engine) programCell(w *WordOutcome, info RegionInfo) error {
	cell := w.Offset
	want := w.Target != 0
	w.Target = boolWord(want)
	soakOK := e.useSoak && info.SoakCapable
	retries := 0
	slot := NoSlot
	st := stateInit
	for {
		e.debug("engine state", "cell", cell, "slot", slot, "state", st)
		switch st {
		case stateInit:
			if e.tracker.Stale(cell) {
				if err := reloadCell(e.hw, e.tracker, info, cell); err != nil {
					return e.hardwareFailed(w, err)
				}
			}
			w.Readback = boolWord(e.tracker.Value(cell))
			switch {
			case e.tracker.Value(cell) == want:
				w.Result = AlreadySet
				return nil
			case e.mode == modeSoakOnly:
				st = stateNeedsSoak
			default:
				st = stateNormalProgram
			}

		case stateNormalProgram, stateSoakProgram:
			slot = e.tracker.SelectNextWritableOption(cell)
			if slot == NoSlot {
				st = stateFailure
				break
			}
			var duration time.Duration
			if st == stateSoakProgram {
				duration = e.soak.PulseDuration
			}
			fired, perr := e.hw.pulseSlot(w.Address, slot, duration)
			if !fired {
				return e.hardwareFailed(w, perr)
			}
			if err := e.tracker.RecordAttempt(cell, slot); err != nil {
				return e.hardwareFailed(w, err)
			}
			w.Slot = int(slot)
			if st == stateSoakProgram {
				w.SoakPulses++
				retries++
			} else {
				w.NormalPulses++
			}
			if perr != nil {
				e.tracker.MarkStale(cell)
				return e.hardwareFailed(w, perr)
			}
			if st == stateSoakProgram {
				st = stateReVerify
			} else {
				st = stateVerify
			}

		case stateVerify, stateReVerify:
			e.settle()
			committed, _, err := e.hw.readSlot(w.Address, slot)
			if err != nil {
				e.tracker.MarkStale(cell)
				return e.hardwareFailed(w, err)
			}
			switch {
			case committed:
				if err := e.tracker.MarkCommitted(cell, slot); err != nil {
					return e.hardwareFailed(w, err)
				}
				w.Readback = boolWord(e.tracker.Value(cell))
				st = stateSuccess
			case st == stateVerify:
				st = stateNeedsSoak
			case retries < e.soak.MaxRetries:
				st = stateRetrySoak
			default:
				st = stateFailure
			}

		case stateNeedsSoak:
			if !soakOK {
				w.Result = VerifyFailed
				return addrError(VerificationFailed, e.op, w.Region, cell, verification(w))
			}
			if retries >= e.soak.MaxRetries {
				st = stateFailure
				break
			}
			e.report(PhaseSoaking, w.Region)
			st = stateSoakProgram

		case stateRetrySoak:
			st = stateSoakProgram

		case stateSuccess:
			if w.SoakPulses > 0 {
				w.Result = Soaked
			} else {
				w.Result = Normal
			}
			return nil

		case stateFailure:
			w.Result = Exhausted
			return addrError(WriteExhausted, e.op, w.Region, cell, verification(w))
		}
	}
}

func (e *engine) hardwareFailed(w *WordOutcome, err error) error {
	w.Result = HardwareFailed
	return err
}

func (e *engine) settle() {
	if e.soak.VerifyDelay > 0 {
		time.Sleep(e.soak.VerifyDelay)
	}
}

func (e *engine) report(phase string, r Region) {
	if e.progress == nil {
		return
	}
	p := Progress{
		Phase:       phase,
		Region:      r,
		Word:        e.word,
		TotalWords:  e.total,
		Pulses:      e.pulses,
		ElapsedTime: time.Since(e.start),
		Percentage:  100,
	}
	if e.total > 0 {
		p.Percentage = float64(e.word) / float64(e.total) * 100
	}
	e.progress(p)
}

func (e *engine) debug(msg string, kv ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, kv...)
	}
}

// covers is the monotonic comparison: every target bit must be set, extra
// set bits are fine.
func covers(readback, target uint64) bool {
	return readback&target == target
}

func verification(w *WordOutcome) *VerificationError {
	return &VerificationError{Address: w.Address, Target: w.Target, Readback: w.Readback}
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
