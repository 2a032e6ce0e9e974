package otp

import (
	"context"
	"testing"
	"time"

	"github.com/moffa90/go-otp/otpsim"
	"github.com/moffa90/go-otp/register"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoakConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SoakConfig)
		ok     bool
	}{
		{"defaults", func(*SoakConfig) {}, true},
		{"zero retries", func(c *SoakConfig) { c.MaxRetries = 0 }, true},
		{"negative retries", func(c *SoakConfig) { c.MaxRetries = -1 }, false},
		{"sub-microsecond pulse", func(c *SoakConfig) { c.PulseDuration = time.Nanosecond }, false},
		{"longest pulse", func(c *SoakConfig) { c.PulseDuration = MaxPulseDuration }, true},
		{"two hour pulse", func(c *SoakConfig) { c.PulseDuration = 2 * time.Hour }, false},
		{"negative delay", func(c *SoakConfig) { c.VerifyDelay = -time.Microsecond }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSoakConfig()
			tt.mutate(&cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestInvalidSoakConfigPanicsAtBuild(t *testing.T) {
	dev := otpsim.New(otpsim.DefaultConfig(register.ChipRevA1))

	bad := fastSoak()
	bad.MaxRetries = -1
	assert.PanicsWithValue(t,
		"invalid soak config: soak retries must not be negative, got -1",
		func() { New[uint32](dev, WithSoakConfig(bad)) })

	long := fastSoak()
	long.PulseDuration = 2 * time.Hour
	assert.Panics(t, func() { NewBuilder[uint32](dev).WithOptions(WithSoakConfig(long)).Build() })

	ctrl := New[uint32](dev, WithSoakConfig(fastSoak()))
	assert.Equal(t, fastSoak(), ctrl.DefaultSoakConfig())
}

func TestSoakProgramRejectsLongPulse(t *testing.T) {
	ctrl, dev := newTestController(t, register.ChipRevA1)
	beginSession(t, ctrl)
	dev.ResetStats()

	cfg := fastSoak()
	cfg.PulseDuration = 2 * time.Hour
	_, err := ctrl.SoakProgram(context.Background(), BulkData, 0, []uint32{1}, cfg)
	assert.Error(t, err)
	_, err = ctrl.ProgramWithSoakFallback(context.Background(), BulkData, 0, []uint32{1}, cfg)
	assert.Error(t, err)
	assert.Zero(t, dev.Stats().Calls())

	out, err := ctrl.SoakProgram(context.Background(), BulkData, 0, []uint32{1}, fastSoak())
	require.NoError(t, err)
	assert.Equal(t, Success, out.Status())
}
