package otp

import (
	"errors"
	"fmt"
	"time"
)

// Result is the terminal state of one word or strap cell.
type Result int

const (
	// Skipped words were never attempted
	Skipped Result = iota
	// AlreadySet words needed no pulse
	AlreadySet
	// Normal words verified after the normal-timing pulse
	Normal
	// Soaked words verified after one or more soak pulses
	Soaked
	// Exhausted words ran out of retries or write attempts
	Exhausted
	// VerifyFailed words did not verify and soak was unavailable
	VerifyFailed
	// HardwareFailed words hit a timeout or fault mid-pulse
	HardwareFailed
)

var resultNames = [...]string{
	Skipped:        "skipped",
	AlreadySet:     "already-set",
	Normal:         "normal",
	Soaked:         "soaked",
	Exhausted:      "exhausted",
	VerifyFailed:   "verify-failed",
	HardwareFailed: "hardware-failed",
}

func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// OK reports whether the word holds its target value.
func (r Result) OK() bool {
	return r == AlreadySet || r == Normal || r == Soaked
}

// WordOutcome records how one word or strap cell was programmed.
type WordOutcome struct {
	Region  Region
	Offset  uint32
	Address uint32

	// Target and Readback are raw word values. For strap cells they are
	// the requested and final logical values.
	Target   uint64
	Readback uint64

	Result       Result
	NormalPulses int
	SoakPulses   int

	// Slot is the last strap slot pulsed, -1 for word regions
	Slot int

	Err error
}

// Pulses returns the number of programming pulses issued for the word.
func (w WordOutcome) Pulses() int {
	return w.NormalPulses + w.SoakPulses
}

// Status summarizes an Outcome.
type Status int

const (
	Success Status = iota
	PartialFailure
	Failure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case PartialFailure:
		return "partial-failure"
	case Failure:
		return "failure"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome aggregates the per-word results of a write operation.
type Outcome struct {
	Words   []WordOutcome
	Elapsed time.Duration
}

func newOutcome(r Region, n int) *Outcome {
	o := &Outcome{Words: make([]WordOutcome, n)}
	for i := range o.Words {
		o.Words[i] = WordOutcome{Region: r, Slot: -1}
	}
	return o
}

// Status is Success when every word holds its target, Failure when none
// does and PartialFailure otherwise.
func (o *Outcome) Status() Status {
	ok := 0
	for _, w := range o.Words {
		if w.Result.OK() {
			ok++
		}
	}
	switch {
	case ok == len(o.Words):
		return Success
	case ok == 0:
		return Failure
	}
	return PartialFailure
}

// Count returns the number of words that ended in r.
func (o *Outcome) Count(r Result) int {
	n := 0
	for _, w := range o.Words {
		if w.Result == r {
			n++
		}
	}
	return n
}

// Pulses returns the total number of programming pulses issued.
func (o *Outcome) Pulses() int {
	n := 0
	for _, w := range o.Words {
		n += w.Pulses()
	}
	return n
}

// Err joins the per-word errors.
func (o *Outcome) Err() error {
	var errs []error
	for _, w := range o.Words {
		if w.Err != nil {
			errs = append(errs, w.Err)
		}
	}
	return errors.Join(errs...)
}
