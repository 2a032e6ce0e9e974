package provision

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/moffa90/go-otp/manifest"
	"github.com/moffa90/go-otp/otp"
)

// Target is the controller surface a provisioning run needs.
type Target[W otp.Word] interface {
	otp.SessionManager
	otp.Memory[W]
	otp.RegionAccess[W]
	otp.Protector
}

var _ Target[uint32] = (*otp.Controller[uint32])(nil)

// Report describes what a run did.
type Report struct {
	Session otp.SessionInfo
	Digest  manifest.Digest

	// Words holds one outcome per manifest word entry that was attempted
	Words []*otp.Outcome

	// Straps holds one outcome per strap entry that was attempted
	Straps []*otp.Outcome

	Protected []otp.Region
	Locked    bool
	Elapsed   time.Duration
}

// Status folds every word and strap outcome into one status.
func (r *Report) Status() otp.Status {
	ok, total := 0, 0
	for _, o := range r.outcomes() {
		for _, w := range o.Words {
			total++
			if w.Result.OK() {
				ok++
			}
		}
	}
	switch {
	case ok == total:
		return otp.Success
	case ok == 0:
		return otp.Failure
	}
	return otp.PartialFailure
}

// Pulses returns the number of programming pulses issued during the run.
func (r *Report) Pulses() int {
	n := 0
	for _, o := range r.outcomes() {
		n += o.Pulses()
	}
	return n
}

func (r *Report) outcomes() []*otp.Outcome {
	all := make([]*otp.Outcome, 0, len(r.Words)+len(r.Straps))
	all = append(all, r.Words...)
	return append(all, r.Straps...)
}

// Result is delivered by Start when the run finishes.
type Result struct {
	Report *Report
	Err    error
}

// Start runs Apply on its own goroutine. The channel receives exactly one
// Result and is then closed.
func Start[W otp.Word](ctx context.Context, t Target[W], m *manifest.Manifest, opts ...Option) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		report, err := Apply(ctx, t, m, opts...)
		ch <- Result{Report: report, Err: err}
	}()
	return ch
}

// Apply programs m inside a single session: words, then straps, then
// region protection, then the global lock. Protection and the lock are
// only applied when every word and strap succeeded. The session is always
// ended before Apply returns.
//
// A hardware timeout or fault, or cancellation of ctx, stops the run at
// once, as does an entry the controller rejects before programming, such
// as a bad address or a protected region. Other failed entries do not
// stop later entries unless StopOnFirstFailure is given.
func Apply[W otp.Word](ctx context.Context, t Target[W], m *manifest.Manifest, opts ...Option) (report *Report, err error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("provision: %w", err)
	}
	if err := m.CheckWidth(widthOf[W]()); err != nil {
		return nil, fmt.Errorf("provision: %w", err)
	}

	info, err := t.BeginSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("provision: %w", err)
	}

	r := &run[W]{
		cfg:    cfg,
		target: t,
		report: &Report{Session: info, Digest: m.Digest()},
		start:  time.Now(),
	}
	defer func() {
		r.report.Elapsed = time.Since(r.start)
		if endErr := t.EndSession(); endErr != nil {
			err = errors.Join(err, fmt.Errorf("provision: %w", endErr))
		}
	}()

	if m.Variant != otp.VariantUnknown && m.Variant != info.Variant {
		return r.report, fmt.Errorf("provision: %w",
			&otp.DeviceMismatchError{Expected: m.Variant, ChipID: info.ChipID})
	}

	r.logInfo("provisioning",
		"session", info.ID,
		"variant", info.Variant,
		"digest", r.report.Digest,
		"words", m.WordCount(),
		"straps", len(m.Straps),
	)

	if err := r.apply(ctx, m); err != nil {
		r.logError("provisioning failed",
			"session", info.ID,
			"status", r.report.Status(),
			"error", err,
		)
		return r.report, err
	}
	r.logInfo("provisioning complete",
		"session", info.ID,
		"pulses", r.report.Pulses(),
		"protected", len(r.report.Protected),
		"locked", r.report.Locked,
	)
	return r.report, nil
}

type run[W otp.Word] struct {
	cfg    config
	target Target[W]
	report *Report
	start  time.Time
	errs   []error
}

func (r *run[W]) apply(ctx context.Context, m *manifest.Manifest) error {
	for _, w := range m.Words {
		data := make([]W, len(w.Values))
		for i, v := range w.Values {
			data[i] = W(v)
		}
		out, err := r.target.WriteRegion(ctx, w.Region, w.Offset, data, r.cfg.callOpts...)
		if r.step(EntryWord, out, err) {
			return errors.Join(r.errs...)
		}
	}

	for _, s := range m.Straps {
		var value W
		if s.Value {
			value = 1
		}
		out, err := r.target.Write(ctx, otp.Strap, s.Cell, value, r.cfg.callOpts...)
		if r.step(EntryStrap, out, err) {
			return errors.Join(r.errs...)
		}
	}

	if len(r.errs) > 0 {
		if len(m.Protect) > 0 || m.Lock {
			r.logInfo("skipping protection and lock after failed writes", "failures", len(r.errs))
		}
		return errors.Join(r.errs...)
	}
	if r.cfg.skipFinal {
		return nil
	}

	for _, region := range m.Protect {
		if err := r.target.EnableRegionProtection(region); err != nil {
			return errors.Join(append(r.errs, err)...)
		}
		r.report.Protected = append(r.report.Protected, region)
		r.record(Entry{Kind: EntryProtect, Region: region})
	}
	if m.Lock {
		if err := r.target.Lock(); err != nil {
			return errors.Join(append(r.errs, err)...)
		}
		r.report.Locked = true
		r.record(Entry{Kind: EntryLock})
	}
	return errors.Join(r.errs...)
}

// step records one write call and reports whether the run must stop.
func (r *run[W]) step(kind EntryKind, out *otp.Outcome, err error) bool {
	if out != nil {
		if kind == EntryStrap {
			r.report.Straps = append(r.report.Straps, out)
		} else {
			r.report.Words = append(r.report.Words, out)
		}
		for _, w := range out.Words {
			if w.Result == otp.Skipped && w.Err == nil {
				continue
			}
			e := Entry{
				Kind:     kind,
				Region:   w.Region,
				Offset:   w.Offset,
				Address:  w.Address,
				Target:   w.Target,
				Readback: w.Readback,
				Result:   w.Result.String(),
				Pulses:   w.Pulses(),
			}
			if w.Err != nil {
				e.Error = w.Err.Error()
			}
			r.record(e)
		}
	}
	if err == nil {
		return false
	}
	r.errs = append(r.errs, err)
	return r.cfg.failFast || out == nil || fatal(err)
}

// record writes e to the journal. Journal failures fail the run but do
// not stop it.
func (r *run[W]) record(e Entry) {
	if r.cfg.journal == nil {
		return
	}
	e.Timestamp = time.Now()
	e.SessionID = r.report.Session.ID.String()
	e.Digest = r.report.Digest[:]
	if err := r.cfg.journal.Record(e); err != nil {
		r.logError("journal write failed", "kind", e.Kind, "error", err)
		r.errs = append(r.errs, fmt.Errorf("journal: %w", err))
	}
}

func fatal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, otp.ErrTimeout) ||
		errors.Is(err, otp.ErrHardwareFault) ||
		errors.Is(err, otp.ErrNoSession)
}

func widthOf[W otp.Word]() int {
	var z W
	return bits.OnesCount64(uint64(^z))
}

func (r *run[W]) logInfo(msg string, keysAndValues ...interface{}) {
	if r.cfg.logger != nil {
		r.cfg.logger.Info(msg, keysAndValues...)
	}
}

func (r *run[W]) logError(msg string, keysAndValues ...interface{}) {
	if r.cfg.logger != nil {
		r.cfg.logger.Error(msg, keysAndValues...)
	}
}
