// Package dispatch implements the single-dispatcher event loop required
// by spec.md §5: all Type Catalog and Thing Store mutations, and every
// Info.finish/autoThingsAppeared/emitEvent callback crossing the plugin
// boundary, are serialized through one mailbox so the rest of the core
// can rely on sequential consistency without its own locking.
// Grounded on internal/pulse.Scheduler's Start(ctx)/Stop()/Running()
// lifecycle shape (context.WithCancel + sync.WaitGroup).
package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher runs posted jobs one at a time, in submission order, on a
// single goroutine.
type Dispatcher struct {
	jobs   chan func()
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Dispatcher with the given mailbox capacity. Call Start
// to begin draining it.
func New(queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		jobs:   make(chan func(), queueSize),
		logger: logger,
	}
}

// Start begins the drain loop. Non-blocking; call Stop to shut down.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-d.ctx.Done():
				return
			case job := <-d.jobs:
				d.run(job)
			}
		}
	}()
}

func (d *Dispatcher) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatcher job panicked", zap.Any("panic", r))
		}
	}()
	job()
}

// Stop signals the drain loop to stop after its current job and waits
// for it to exit. Jobs still queued are dropped.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Running reports whether the drain loop is active.
func (d *Dispatcher) Running() bool {
	return d.ctx != nil && d.ctx.Err() == nil
}

// Post enqueues fn to run on the dispatcher goroutine. Blocks only if
// the mailbox is full; returns false without enqueuing if ctx is done
// first.
func (d *Dispatcher) Post(ctx context.Context, fn func()) bool {
	select {
	case d.jobs <- fn:
		return true
	case <-ctx.Done():
		return false
	}
}

// Do enqueues fn and blocks until it has run on the dispatcher
// goroutine, returning its error (or ctx's error if ctx is done first).
func (d *Dispatcher) Do(ctx context.Context, fn func() error) error {
	resultCh := make(chan error, 1)
	posted := d.Post(ctx, func() {
		resultCh <- fn()
	})
	if !posted {
		return ctx.Err()
	}
	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
