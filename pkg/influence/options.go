package influence

import (
	"errors"
	"fmt"
)

// Mode selects the propagation variant.
type Mode string

const (
	// ModeLeveled is the weighted propagation ordered by partition level.
	ModeLeveled Mode = "leveled"
	// ModeFlat is personalized PageRank over forward adjacency without
	// edge weights.
	ModeFlat Mode = "flat"
)

// ErrInvalidOptions is returned by Options.Validate.
var ErrInvalidOptions = errors.New("invalid propagation options")

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLeveled, ModeFlat:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: unknown mode %q (want %q or %q)", ErrInvalidOptions, s, ModeLeveled, ModeFlat)
}

// Options configures propagation.
type Options struct {
	Damping       float64 // damping factor; typically 0.85
	Tolerance     float64 // L1 convergence threshold
	MaxIterations int     // per level for ModeLeveled, total for ModeFlat
	Epsilon       float64 // added to psi_out before dividing
	Mode          Mode
	Threads       int // per worker; non-positive means one per CPU
}

// DefaultOptions returns damping 0.85, tolerance 1e-6, 100 iterations,
// epsilon 1e-12, leveled mode and one thread per CPU.
func DefaultOptions() Options {
	return Options{
		Damping:       0.85,
		Tolerance:     1e-6,
		MaxIterations: 100,
		Epsilon:       1e-12,
		Mode:          ModeLeveled,
	}
}

// WithDamping sets the damping factor.
func (o Options) WithDamping(d float64) Options {
	o.Damping = d
	return o
}

// WithTolerance sets the convergence tolerance.
func (o Options) WithTolerance(tol float64) Options {
	o.Tolerance = tol
	return o
}

// WithMaxIterations sets the iteration cap.
func (o Options) WithMaxIterations(n int) Options {
	o.MaxIterations = n
	return o
}

// WithMode sets the propagation variant.
func (o Options) WithMode(m Mode) Options {
	o.Mode = m
	return o
}

// WithThreads sets the per-worker thread count.
func (o Options) WithThreads(n int) Options {
	o.Threads = n
	return o
}

// Validate checks parameter ranges and wraps failures in ErrInvalidOptions.
func (o Options) Validate() error {
	if o.Damping < 0 || o.Damping > 1 {
		return fmt.Errorf("%w: damping %v outside [0,1]", ErrInvalidOptions, o.Damping)
	}
	if o.Tolerance <= 0 {
		return fmt.Errorf("%w: tolerance must be positive, got %v", ErrInvalidOptions, o.Tolerance)
	}
	if o.MaxIterations <= 0 {
		return fmt.Errorf("%w: max iterations must be positive, got %d", ErrInvalidOptions, o.MaxIterations)
	}
	if o.Epsilon <= 0 {
		return fmt.Errorf("%w: epsilon must be positive, got %v", ErrInvalidOptions, o.Epsilon)
	}
	if _, err := ParseMode(string(o.Mode)); err != nil {
		return err
	}
	return nil
}
