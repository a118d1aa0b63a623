package dice

import "go.uber.org/zap"

// Roller wraps a Source and a logger. Every chance and range roll is logged at
// debug level with its label and result so a match can be audited afterwards.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that rolls with src and logs to logger.
// A nil logger is replaced with a no-op logger.
//
// Precondition: src must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Roller{src: src, logger: logger}
}

// Src returns the underlying Source.
func (r *Roller) Src() Source { return r.src }

// Intn returns a value in [0, n) without logging.
//
// Precondition: n > 0.
func (r *Roller) Intn(n int) int { return r.src.Intn(n) }

// Chance rolls a percentile and reports whether it landed under percent.
//
// Postcondition: percent <= 0 always returns false; percent >= 100 always returns true.
func (r *Roller) Chance(label string, percent int) bool {
	if percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	roll := r.src.Intn(100)
	ok := roll < percent
	r.logger.Debug("chance roll",
		zap.String("label", label),
		zap.Int("percent", percent),
		zap.Int("roll", roll),
		zap.Bool("success", ok),
	)
	return ok
}

// Range returns a uniformly distributed int in [lo, hi]. Swapped bounds are
// normalised.
//
// Postcondition: lo <= result <= hi.
func (r *Roller) Range(label string, lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	v := lo + r.src.Intn(hi-lo+1)
	r.logger.Debug("range roll",
		zap.String("label", label),
		zap.Int("lo", lo),
		zap.Int("hi", hi),
		zap.Int("result", v),
	)
	return v
}

// Float returns a value in [0, 1) at a 1/10000 resolution.
func (r *Roller) Float() float64 {
	return float64(r.src.Intn(10000)) / 10000
}
