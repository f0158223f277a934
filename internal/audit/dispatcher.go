package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Now stamps events that arrive without a timestamp. Nil uses time.Now.
	Now func() time.Time
	// Logger reports drops and sink panics. Nil discards.
	Logger *zap.Logger
}

// Dispatcher relays audit events to a sink on its own goroutine so engine
// callbacks never wait on sink I/O. A nil Dispatcher accepts and discards
// every call.
type Dispatcher struct {
	cfg  Config
	sink Sink
	log  *zap.Logger

	ch   chan Event
	done chan struct{}
	wg   sync.WaitGroup

	seq       atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		log:  cfg.Logger,
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer d.wg.Done()
	ctx := context.Background()

	for {
		select {
		case event := <-d.ch:
			d.deliver(ctx, event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(ctx, event)
				default:
					return
				}
			}
		}
	}
}

// deliver hands one event to the sink. A panicking sink loses that event
// only; the relay keeps running.
func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.log.Error("audit sink panicked",
				zap.String("event_type", event.EventType),
				zap.Uint64("seq", event.Seq),
				zap.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(ctx, event)
}

// Emit stamps event with a sequence number and, if missing, a timestamp,
// then queues it. With DropIfFull a full buffer drops the event and counts
// it; otherwise Emit waits for room, ctx, or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.cfg.Now()
	}
	event.Seq = d.seq.Add(1)

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.drop(event)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.drop(event)
	case <-d.done:
	}
}

// drop counts a lost event. Only the first drop and every power of two after
// it are logged.
func (d *Dispatcher) drop(event Event) {
	n := d.dropped.Add(1)
	if n&(n-1) == 0 {
		d.log.Warn("audit event dropped",
			zap.String("event_type", event.EventType),
			zap.Uint64("seq", event.Seq),
			zap.Uint64("dropped_total", n),
		)
	}
}

// Close stops accepting events, delivers the buffered ones and waits for the
// relay goroutine.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of events lost to a full buffer or an expired
// context.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SinkPanics returns the number of deliveries that panicked in the sink.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.panics.Load()
}
