package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Dispatcher copies values from one source to multiple subscribers.
//
// In lossy mode a full subscriber buffer drops the value so a slow UI
// client cannot stall the producer; drops are logged and counted. In
// lossless mode the dispatcher blocks until every subscriber accepts,
// preserving order and completeness for consumers such as the risk monitor.
type Dispatcher[T any] struct {
	source       <-chan T
	subscribers  []chan T
	bufferSize   int
	lossy        bool
	logger       *zap.Logger
	mu           sync.Mutex
	droppedTotal atomic.Int64
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	lossy  bool
	logger *zap.Logger
}

// Lossy makes the dispatcher drop values for subscribers whose buffer is full.
func Lossy() DispatcherOption {
	return func(o *dispatcherOptions) { o.lossy = true }
}

// WithLogger sets the logger used to report drops.
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(o *dispatcherOptions) { o.logger = l }
}

func NewDispatcher[T any](source <-chan T, bufferSize int, opts ...DispatcherOption) *Dispatcher[T] {
	o := dispatcherOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return &Dispatcher[T]{
		source:      source,
		subscribers: make([]chan T, 0),
		bufferSize:  bufferSize,
		lossy:       o.lossy,
		logger:      o.logger,
	}
}

// Subscribe returns a channel that receives copies of all source values.
// Subscribers should be added before calling Run() to ensure they receive all values.
func (d *Dispatcher[T]) Subscribe() <-chan T {
	ch := make(chan T, d.bufferSize)
	d.mu.Lock()
	d.subscribers = append(d.subscribers, ch)
	d.mu.Unlock()
	return ch
}

// GetSubscriberCount returns the current number of active subscribers.
func (d *Dispatcher[T]) GetSubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subscribers)
}

// GetDroppedCount returns the total number of values dropped in lossy mode.
func (d *Dispatcher[T]) GetDroppedCount() int64 {
	return d.droppedTotal.Load()
}

// Run blocks until ctx is cancelled or source closes
func (d *Dispatcher[T]) Run(ctx context.Context) {
	defer d.closeSubscribers()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-d.source:
			if !ok {
				return
			}
			d.dispatch(ctx, v)
		}
	}
}

func (d *Dispatcher[T]) dispatch(ctx context.Context, v T) {
	d.mu.Lock()
	subs := d.subscribers
	d.mu.Unlock()

	if !d.lossy {
		for _, sub := range subs {
			select {
			case sub <- v:
			case <-ctx.Done():
				return
			}
		}
		return
	}

	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- v:
		case <-ctx.Done():
			return
		default:
			dropped++
			d.droppedTotal.Add(1)
		}
	}

	if dropped > 0 {
		d.logger.Warn("dispatcher dropped value", zap.Int("subscribers", dropped))
	}
}

func (d *Dispatcher[T]) closeSubscribers() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sub := range d.subscribers {
		close(sub)
	}
}
