package duplication

import (
	"morphocore/internal/observability"
)

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(l observability.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsRecorder sets the recorder observing each run.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer spanning each run.
func WithTracer(t observability.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}
