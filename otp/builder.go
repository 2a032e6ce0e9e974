package otp

import "github.com/moffa90/go-otp/register"

// Builder assembles a Controller with only the capabilities the hardware
// supports. Unwired capabilities fail with Unsupported and never touch
// the bus.
//
// Example:
//
//	ctrl := otp.NewBuilder[uint32](bus).
//	    WithVariant(otp.VariantLite).
//	    WithProtection().
//	    Build()
type Builder[W Word] struct {
	bus  register.Bus
	caps capabilities
	opts []Option
}

// NewBuilder starts a builder on bus. The bus must not be nil.
func NewBuilder[W Word](bus register.Bus) *Builder[W] {
	if bus == nil {
		panic("bus cannot be nil")
	}
	return &Builder[W]{bus: bus}
}

// WithSoak wires soak programming.
func (b *Builder[W]) WithSoak() *Builder[W] {
	b.caps.soak = true
	return b
}

// WithProtection wires the Protector capability.
func (b *Builder[W]) WithProtection() *Builder[W] {
	b.caps.protection = true
	return b
}

// WithWriteTracking wires strap cell programming and bookkeeping.
func (b *Builder[W]) WithWriteTracking() *Builder[W] {
	b.caps.tracking = true
	return b
}

// WithVariant pins the expected chip variant.
func (b *Builder[W]) WithVariant(v Variant) *Builder[W] {
	b.opts = append(b.opts, WithVariant(v))
	return b
}

// WithOptions appends controller options.
func (b *Builder[W]) WithOptions(opts ...Option) *Builder[W] {
	b.opts = append(b.opts, opts...)
	return b
}

// Build returns the controller. The builder may be reused.
func (b *Builder[W]) Build() *Controller[W] {
	cfg := defaultConfig()
	for _, opt := range b.opts {
		opt(&cfg)
	}
	if err := cfg.Soak.Validate(); err != nil {
		panic("invalid soak config: " + err.Error())
	}
	return &Controller[W]{
		bus:    b.bus,
		config: cfg,
		caps:   b.caps,
	}
}
