package otp

import (
	"fmt"
	"math/bits"
	"time"
)

// SoakConfig tunes the extended-timing retry algorithm.
type SoakConfig struct {
	// PulseDuration is the length of one soak pulse
	PulseDuration time.Duration

	// MaxRetries bounds the number of soak pulses issued per word or cell
	MaxRetries int

	// VerifyMargin is written to the margin register for every verify read.
	// Zero reads at nominal threshold.
	VerifyMargin uint32

	// VerifyDelay is the settle time between a pulse and its verify read
	VerifyDelay time.Duration
}

// DefaultSoakConfig returns the conservative defaults used when no
// configuration is supplied.
func DefaultSoakConfig() SoakConfig {
	return SoakConfig{
		PulseDuration: 100 * time.Microsecond,
		MaxRetries:    3,
		VerifyMargin:  1,
		VerifyDelay:   10 * time.Microsecond,
	}
}

func (s SoakConfig) String() string {
	return fmt.Sprintf("pulse=%s retries=%d margin=%d delay=%s",
		s.PulseDuration, s.MaxRetries, s.VerifyMargin, s.VerifyDelay)
}

// MaxPulseDuration is the longest pulse the timing register is driven
// with. Longer durations are rejected by Validate.
const MaxPulseDuration = time.Second

// Validate reports whether s can drive the soak algorithm.
func (s SoakConfig) Validate() error {
	if s.MaxRetries < 0 {
		return fmt.Errorf("soak retries must not be negative, got %d", s.MaxRetries)
	}
	if s.PulseDuration < time.Microsecond {
		return fmt.Errorf("soak pulse must be at least 1µs, got %s", s.PulseDuration)
	}
	if s.PulseDuration > MaxPulseDuration {
		return fmt.Errorf("soak pulse must be at most %s, got %s", MaxPulseDuration, s.PulseDuration)
	}
	if s.VerifyDelay < 0 {
		return fmt.Errorf("verify delay must not be negative, got %s", s.VerifyDelay)
	}
	return nil
}

// RecommendSoakConfig picks soak parameters from the set-bit density of
// data. Dense patterns get longer pulses and more retries.
func RecommendSoakConfig[W Word](data []W) SoakConfig {
	cfg := DefaultSoakConfig()
	if len(data) == 0 {
		return cfg
	}
	set := 0
	for _, w := range data {
		set += bits.OnesCount64(uint64(w))
	}
	density := float64(set) / float64(len(data)*wordBits[W]())
	switch {
	case density > 0.8:
		cfg.PulseDuration = 200 * time.Microsecond
		cfg.MaxRetries = 5
		cfg.VerifyDelay = 20 * time.Microsecond
	case density > 0.5:
		cfg.PulseDuration = 150 * time.Microsecond
		cfg.MaxRetries = 4
		cfg.VerifyDelay = 15 * time.Microsecond
	}
	return cfg
}
