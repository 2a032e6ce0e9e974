package otp

import "time"

// FailurePolicy decides what a multi-word write does after one word fails
// permanently.
type FailurePolicy int

const (
	// ContinueOnError records the failure and programs the remaining words
	ContinueOnError FailurePolicy = iota
	// FailFast stops at the first word that fails permanently
	FailFast
)

func (p FailurePolicy) String() string {
	if p == FailFast {
		return "fail-fast"
	}
	return "continue-on-error"
}

// Config holds the controller configuration.
type Config struct {
	// ProgressCallback is called during writes to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// ReadyTimeout bounds every wait on the hardware ready bit
	ReadyTimeout time.Duration

	// Soak is used by Write and WriteRegion when a normal pulse does not
	// verify and the region supports soak programming
	Soak SoakConfig

	// FailurePolicy is the default policy of multi-word writes
	FailurePolicy FailurePolicy

	// SessionlessReads allows reads of non-secret regions without an
	// active session
	SessionlessReads bool

	// Variant pins the expected chip variant. VariantUnknown detects it.
	Variant Variant
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		ReadyTimeout:  100 * time.Millisecond,
		Soak:          DefaultSoakConfig(),
		FailurePolicy: ContinueOnError,
	}
}

// Option is a functional option for configuring the Controller.
type Option func(*Config)

// WithProgressCallback sets a callback function to track write progress.
//
// Example:
//
//	ctrl := otp.New[uint32](bus,
//	    otp.WithProgressCallback(func(p otp.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the controller operations.
//
// Example:
//
//	ctrl := otp.New[uint32](bus, otp.WithLogger(slog.Default()))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithReadyTimeout sets the timeout of each wait on the ready bit.
// Non-positive values are ignored.
func WithReadyTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ReadyTimeout = timeout
		}
	}
}

// WithSoakConfig sets the soak parameters used by Write and WriteRegion.
// Build panics when cfg fails Validate.
//
// Example:
//
//	ctrl := otp.New[uint32](bus, otp.WithSoakConfig(otp.SoakConfig{
//	    PulseDuration: 200 * time.Microsecond,
//	    MaxRetries:    5,
//	    VerifyMargin:  1,
//	    VerifyDelay:   20 * time.Microsecond,
//	}))
func WithSoakConfig(cfg SoakConfig) Option {
	return func(c *Config) {
		c.Soak = cfg
	}
}

// WithFailurePolicy sets the default policy of multi-word writes.
// Default is ContinueOnError.
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(c *Config) {
		c.FailurePolicy = policy
	}
}

// WithSessionlessReads allows reads of non-secret regions while no session
// is active.
func WithSessionlessReads(enabled bool) Option {
	return func(c *Config) {
		c.SessionlessReads = enabled
	}
}

// WithVariant pins the chip variant. BeginSession fails with a
// DeviceMismatchError when the detected chip differs.
func WithVariant(v Variant) Option {
	return func(c *Config) {
		c.Variant = v
	}
}

// CallOption adjusts a single write call.
type CallOption func(*callConfig)

type callConfig struct {
	policy FailurePolicy
}

// StopOnFailure makes one call fail fast.
func StopOnFailure() CallOption {
	return func(c *callConfig) {
		c.policy = FailFast
	}
}

// ContinueOnFailure makes one call continue past failed words.
func ContinueOnFailure() CallOption {
	return func(c *callConfig) {
		c.policy = ContinueOnError
	}
}

func (c *Config) callConfig(opts []CallOption) callConfig {
	cc := callConfig{policy: c.FailurePolicy}
	for _, opt := range opts {
		opt(&cc)
	}
	return cc
}
