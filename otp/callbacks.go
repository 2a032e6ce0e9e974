package otp

import "time"

// Progress phases reported to ProgressCallback.
const (
	PhaseProgramming = "programming"
	PhaseSoaking     = "soaking"
	PhaseComplete    = "complete"
)

// Progress contains information about a running write operation.
// Passed to ProgressCallback once per word and when the operation ends.
type Progress struct {
	// Phase describes the current operation phase:
	//   "programming" - Normal-timing pulse and verify of a word
	//   "soaking"     - Extended-timing retries of a word
	//   "complete"    - Operation finished, successfully or not
	Phase string

	// Region is the region being written
	Region Region

	// Word is the index of the current word within the operation (0-based)
	Word int

	// TotalWords is the number of words in the operation
	TotalWords int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// Pulses is the number of programming pulses issued so far
	Pulses int

	// ElapsedTime is the time elapsed since the operation started
	ElapsedTime time.Duration
}

// ProgressCallback is called during write operations to report progress.
// It runs synchronously on the caller's goroutine between pulses, while the
// controller's lock is held, and should return quickly. The callback must
// not call methods of the controller that invoked it: they block on that
// lock and deadlock the write. Cancelling the write's context is safe.
//
// Example:
//
//	ctrl := otp.New[uint32](bus,
//	    otp.WithProgressCallback(func(p otp.Progress) {
//	        fmt.Printf("[%s] %.1f%% - word %d/%d\n",
//	            p.Phase, p.Percentage, p.Word+1, p.TotalWords)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the controller.
// *slog.Logger satisfies it directly.
//
// Example:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
//	ctrl := otp.New[uint32](bus, otp.WithLogger(logger))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
