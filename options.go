package rewind

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures the runtime collaborators of a Bus
type Option func(*Bus)

const tracerName = "github.com/kode4food/rewind"

// WithLogger sets the logger used by the Bus and its event hub
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTracerProvider sets the provider used to trace Bus jobs. The global
// provider is used otherwise
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Bus) {
		if tp != nil {
			b.tracer = tp.Tracer(tracerName)
		}
	}
}
