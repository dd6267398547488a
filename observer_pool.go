package appbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// notification is one BusEvent bound to the observers registered when it
// was raised.
type notification struct {
	event     BusEvent
	observers []Observer
}

// ObserverPool runs observers off the emit path. Notifications wait in a
// bounded queue; a full queue drops the notification and counts it.
type ObserverPool struct {
	queue   chan notification
	stop    chan struct{}
	done    chan struct{}
	workers int

	stopOnce  sync.Once
	stopped   atomic.Bool
	dropped   atomic.Uint64
	processed atomic.Uint64
}

// NewObserverPool starts workers draining a queue of bufferSize entries.
// One worker delivers notifications in the order they were raised. The pool
// also stops when ctx ends.
func NewObserverPool(ctx context.Context, workers, bufferSize int) *ObserverPool {
	if workers < 1 {
		workers = 1
	}
	if bufferSize < 1 {
		bufferSize = 1024
	}
	op := &ObserverPool{
		queue:   make(chan notification, bufferSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		workers: workers,
	}

	var running sync.WaitGroup
	running.Add(workers)
	for range workers {
		go func() {
			defer running.Done()
			op.work()
		}()
	}
	go func() {
		running.Wait()
		close(op.done)
	}()
	context.AfterFunc(ctx, op.shutdown)
	return op
}

// Notify queues e for observers and returns at once.
func (op *ObserverPool) Notify(e BusEvent, observers []Observer) {
	if len(observers) == 0 || op.stopped.Load() {
		return
	}
	n := notification{event: e, observers: append([]Observer(nil), observers...)}
	select {
	case op.queue <- n:
	default:
		op.dropped.Add(1)
	}
}

// Close stops accepting notifications and waits up to timeout for the
// queued ones to be delivered. Idempotent.
func (op *ObserverPool) Close(timeout time.Duration) error {
	op.shutdown()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-op.done:
		return nil
	case <-t.C:
		return ErrObserverPoolShutdownTimeout
	}
}

func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:      op.dropped.Load(),
		Processed:    op.processed.Load(),
		ActiveEvents: len(op.queue),
		Workers:      op.workers,
		BufferSize:   cap(op.queue),
	}
}

func (op *ObserverPool) shutdown() {
	op.stopOnce.Do(func() {
		op.stopped.Store(true)
		close(op.stop)
	})
}

func (op *ObserverPool) work() {
	for {
		select {
		case n := <-op.queue:
			op.deliver(n)
		case <-op.stop:
			for {
				select {
				case n := <-op.queue:
					op.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (op *ObserverPool) deliver(n notification) {
	for _, obs := range n.observers {
		safeObserve(obs, n.event)
	}
	op.processed.Add(1)
}
