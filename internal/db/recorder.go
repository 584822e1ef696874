package db

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sink persists events somewhere.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev Event) error
}

// Recorder accepts events from the game without ever blocking it.
type Recorder interface {
	Record(ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(Event) {}

const writeTimeout = 5 * time.Second

// AsyncRecorder buffers events and writes them to every sink from a single
// goroutine. When the buffer is full new events are dropped with a warning.
type AsyncRecorder struct {
	log    *zap.Logger
	sinks  []Sink
	events chan Event
}

func NewAsyncRecorder(log *zap.Logger, buffer int, sinks ...Sink) *AsyncRecorder {
	return &AsyncRecorder{
		log:    log.Named("recorder"),
		sinks:  sinks,
		events: make(chan Event, buffer),
	}
}

func (r *AsyncRecorder) Record(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.log.Warn("event buffer full, dropping event")
	}
}

// Run drains the buffer until ctx is done, then flushes what is left.
func (r *AsyncRecorder) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-r.events:
			r.write(context.Background(), ev)
		case <-ctx.Done():
			r.flush()
			return nil
		}
	}
}

func (r *AsyncRecorder) flush() {
	for {
		select {
		case ev := <-r.events:
			r.write(context.Background(), ev)
		default:
			return
		}
	}
}

func (r *AsyncRecorder) write(parent context.Context, ev Event) {
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(parent, writeTimeout)
		if err := s.Write(ctx, ev); err != nil {
			r.log.Warn("sink write failed", zap.String("sink", s.Name()), zap.Error(err))
		}
		cancel()
	}
}
