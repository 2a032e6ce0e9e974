package provision

import "github.com/moffa90/go-otp/otp"

type config struct {
	journal   Journal
	logger    otp.Logger
	callOpts  []otp.CallOption
	failFast  bool
	skipFinal bool
}

// Option configures a provisioning run.
type Option func(*config)

// WithJournal records every word, strap and protection step in j.
func WithJournal(j Journal) Option {
	return func(c *config) {
		c.journal = j
	}
}

// WithLogger sets the logger for the run.
func WithLogger(logger otp.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithCallOptions passes per-call options, such as otp.StopOnFailure, to
// every write.
func WithCallOptions(opts ...otp.CallOption) Option {
	return func(c *config) {
		c.callOpts = append(c.callOpts, opts...)
	}
}

// WithoutFinalization programs words and straps but skips region
// protection and the global lock, for dry runs on rework boards.
func WithoutFinalization() Option {
	return func(c *config) {
		c.skipFinal = true
	}
}

// StopOnFirstFailure ends the run at the first failed word or strap. By
// default every entry is attempted and only protection and the lock are
// skipped.
func StopOnFirstFailure() Option {
	return func(c *config) {
		c.failFast = true
		c.callOpts = append(c.callOpts, otp.StopOnFailure())
	}
}
