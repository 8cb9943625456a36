package subref

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// UpdateState is the deferred-enforcement state of a document instance.
type UpdateState int

const (
	// UpdatesNotStarted means no deferred tasks ever ran for this instance.
	UpdatesNotStarted UpdateState = iota

	// UpdatesRunning means a batch of deferred tasks is in flight.
	UpdatesRunning

	// UpdatesFinished means the last batch completed (possibly with an
	// error; AwaitPendingUpdates returns it).
	UpdatesFinished
)

// cascadeTask is a deferred unit of enforcement work produced by the
// change detector and consumed exactly once after a successful commit.
type cascadeTask struct {
	desc    *Descriptor
	removed []any
	bound   any
}

func (t cascadeTask) run(ctx context.Context, e *Engine) error {
	return e.enforce(ctx, t.desc, t.removed, t.bound, DeleteContext{visited: newVisitSet()})
}

// enqueue appends tasks to the document's pending queue. Called only after
// the commit that produced them succeeded.
func (d *Document) enqueue(tasks []cascadeTask) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, tasks...)
}

// flush starts the drainer unless a batch is already in flight; at most
// one batch runs per document instance, and tasks queued while it runs are
// drained by it. Starting a fresh batch resets the recorded error.
func (d *Document) flush(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == UpdatesRunning || len(d.queue) == 0 {
		return
	}
	d.state = UpdatesRunning
	d.done = make(chan struct{})
	d.err = nil
	go d.drain(ctx)
}

// drain repeatedly swaps out the queue and runs each slice of tasks
// concurrently, looping until nothing is left, then records the first
// error, transitions to UpdatesFinished and wakes every waiter.
func (d *Document) drain(ctx context.Context) {
	e := d.model.engine
	var firstErr error

	for {
		d.mu.Lock()
		tasks := d.queue
		d.queue = nil
		if len(tasks) == 0 {
			d.err = firstErr
			d.state = UpdatesFinished
			close(d.done)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		var g errgroup.Group
		g.SetLimit(e.config.CascadeLimit)
		for _, t := range tasks {
			t := t
			g.Go(func() error {
				return t.run(ctx, e)
			})
		}
		if err := g.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
}

// AwaitPendingUpdates waits until every deferred enforcement task for this
// instance's last commit has finished, returning the first task error of
// the batch. It resolves immediately when nothing is pending, any number
// of concurrent callers are all notified, and finished tasks are never
// re-run.
func (d *Document) AwaitPendingUpdates(ctx context.Context) error {
	d.mu.Lock()
	if d.state != UpdatesRunning {
		err := d.err
		d.mu.Unlock()
		return err
	}
	done := d.done
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// UpdateState returns the deferred-enforcement state of this instance.
func (d *Document) UpdateState() UpdateState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
