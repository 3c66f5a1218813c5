// Package season infers upstream season resets from the global leader value.
package season

// DefaultResetDropThreshold is the drop of the global best value that can only
// be explained by a bulk reset of the whole player population.
const DefaultResetDropThreshold = 5000

// Observation is the outcome of observing one global leader value.
type Observation struct {
	IsReset   bool
	Watermark int // new global leader watermark to persist
}

// Detector compares the global leader value against its watermark.
type Detector struct {
	dropThreshold int
}

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithDropThreshold sets the drop that declares a reset.
func WithDropThreshold(threshold int) Option {
	return func(d *Detector) {
		if threshold > 0 {
			d.dropThreshold = threshold
		}
	}
}

// NewDetector creates a Detector.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{dropThreshold: DefaultResetDropThreshold}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DropThreshold returns the configured reset threshold.
func (d *Detector) DropThreshold() int { return d.dropThreshold }

// Observe evaluates current against watermark.
//
// A non-positive current carries no information: callers must not call Observe
// on a failed fetch, and a zero that slipped through is ignored here rather
// than read as a catastrophic drop. An unset watermark is seeded, never reset.
func (d *Detector) Observe(watermark, current int) Observation {
	if current <= 0 {
		return Observation{Watermark: watermark}
	}
	if watermark > 0 && watermark-current >= d.dropThreshold {
		return Observation{IsReset: true, Watermark: current}
	}
	if current > watermark {
		return Observation{Watermark: current}
	}
	return Observation{Watermark: watermark}
}
