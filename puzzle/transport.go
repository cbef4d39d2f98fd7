package puzzle

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"bitbucket.org/Davydov/qpuzzle/consensus"
	"bitbucket.org/Davydov/qpuzzle/sched"
)

// BatchResult is the outcome of a range of trials.
type BatchResult struct {
	sched.Range
	// Worker is the worker which ran the batch.
	Worker     int
	Table      *consensus.Table
	Topologies Registry
}

// WorkTransport hands batches of trials to workers and collects the
// results. A worker runs one batch at a time.
type WorkTransport interface {
	// Workers returns the number of workers.
	Workers() int
	// SendBatch assigns a range of trials to an idle worker.
	SendBatch(worker int, r sched.Range) error
	// RecvResults waits for the result of any batch.
	RecvResults(ctx context.Context) (*BatchResult, error)
	// Close stops the workers and returns the first worker error.
	Close() error
}

// ChanTransport runs workers as goroutines fed through channels.
type ChanTransport struct {
	g       *errgroup.Group
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	in      []chan sched.Range
	results chan *BatchResult
	once    sync.Once
	err     error
}

// NewChanTransport starts the workers. newEngine is called once per
// worker.
func NewChanTransport(ctx context.Context, workers int, newEngine func(worker int) *Engine) *ChanTransport {
	cctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(cctx)
	t := &ChanTransport{
		g:       g,
		parent:  ctx,
		ctx:     gctx,
		cancel:  cancel,
		in:      make([]chan sched.Range, workers),
		results: make(chan *BatchResult, workers),
	}
	for w := range t.in {
		w := w
		t.in[w] = make(chan sched.Range, 1)
		eng := newEngine(w)
		g.Go(func() error {
			for r := range t.in[w] {
				res, err := eng.RunBatch(gctx, r)
				if err != nil {
					return err
				}
				res.Worker = w
				select {
				case t.results <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	return t
}

// Workers returns the number of workers.
func (t *ChanTransport) Workers() int {
	return len(t.in)
}

// SendBatch assigns a range to the worker.
func (t *ChanTransport) SendBatch(worker int, r sched.Range) error {
	select {
	case t.in[worker] <- r:
		return nil
	case <-t.ctx.Done():
		return t.Close()
	}
}

// RecvResults returns the next batch result. If a worker failed or
// the context is done, the error is returned.
func (t *ChanTransport) RecvResults(ctx context.Context) (*BatchResult, error) {
	select {
	case res := <-t.results:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.ctx.Done():
		return nil, t.Close()
	}
}

// Close stops the workers, batches which are still running are
// abandoned. It is safe to call more than once.
func (t *ChanTransport) Close() error {
	t.once.Do(func() {
		for _, in := range t.in {
			close(in)
		}
		t.cancel()
		t.err = t.g.Wait()
		if t.err == nil {
			t.err = t.parent.Err()
		}
	})
	return t.err
}
