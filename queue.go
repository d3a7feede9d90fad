package rewind

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	// job is one history-mutating call waiting for the Bus loop. done
	// always receives exactly one result
	job struct {
		ctx   context.Context
		run   func(context.Context) error
		done  chan error
		name  string
		attrs []attribute.KeyValue
	}
)

func (b *Bus) submit(
	ctx context.Context, name string, run func(context.Context) error,
	attrs ...attribute.KeyValue,
) error {
	j := &job{
		ctx:   ctx,
		run:   run,
		done:  make(chan error, 1),
		name:  name,
		attrs: attrs,
	}
	if err := b.enqueue(ctx, j); err != nil {
		return err
	}
	return <-j.done
}

func (b *Bus) enqueue(ctx context.Context, j *job) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.queue <- j:
		return nil
	case <-b.ctx.Done():
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) loop() {
	defer close(b.stopped)

	for {
		select {
		case <-b.ctx.Done():
			b.drain()
			return
		case j := <-b.queue:
			j.done <- b.process(j)
		}
	}
}

func (b *Bus) process(j *job) error {
	if b.ctx.Err() != nil {
		return ErrBusClosed
	}
	if err := j.ctx.Err(); err != nil {
		return err
	}

	ctx, span := b.tracer.Start(j.ctx, "rewind."+j.name,
		trace.WithAttributes(j.attrs...),
	)
	defer span.End()

	err := j.run(ctx)
	b.settle()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Debug("Job failed",
			zap.String("job", j.name),
			zap.Error(err),
		)
	}
	return err
}

// drain fails every queued job once no submitter can add more
func (b *Bus) drain() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for {
		select {
		case j := <-b.queue:
			j.done <- ErrBusClosed
		default:
			return
		}
	}
}
