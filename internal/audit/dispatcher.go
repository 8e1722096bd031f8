package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; overflow is counted in Dropped.
	DropIfFull bool
	// Logger reports sink panics. Nil discards them.
	Logger *zap.Logger
}

// Dispatcher hands events to a sink on one background goroutine so the
// request path never waits on audit I/O. A panicking sink loses that event
// only.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	logger     *zap.Logger

	// mu guards queue against Close while an Emit is sending.
	mu     sync.RWMutex
	queue  chan Event
	closed bool

	drained chan struct{}
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewDispatcher returns nil when auditing is disabled; every method accepts
// a nil receiver.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		logger:     cfg.Logger.Named("audit"),
		queue:      make(chan Event, cfg.BufferSize),
		drained:    make(chan struct{}),
	}
	go d.deliverAll()
	return d
}

func (d *Dispatcher) deliverAll() {
	defer close(d.drained)
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("audit sink panicked",
				zap.String("event_type", event.EventType),
				zap.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. Without DropIfFull it waits for room until ctx is done.
// Events emitted after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops intake and returns once every queued event reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.drained
}

// Dropped counts events lost to a full buffer or an expired context.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed counts events whose sink panicked.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
