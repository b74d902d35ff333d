package persistor

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// request is one unit of deferred work. io runs concurrently with the other
// requests of its batch and must not touch shared state; apply runs serially
// in push order and may push further requests.
type request struct {
	io    func(ctx context.Context) (interface{}, error)
	apply func(ctx context.Context, result interface{}) error
}

// workQueue drains requests to a fixed point. Requests pushed while a batch
// is being applied form the next batch, so deep cascades iterate instead of
// recursing.
type workQueue struct {
	limit   int
	pending []request
	done    int
}

func newWorkQueue(limit int) *workQueue {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &workQueue{limit: limit}
}

func (q *workQueue) push(r request) {
	q.pending = append(q.pending, r)
}

// drain runs every pending request, including the ones pushed on the way,
// exactly once. The first error stops the drain.
func (q *workQueue) drain(ctx context.Context) error {
	for len(q.pending) > 0 {
		batch := q.pending
		q.pending = nil

		results := make([]interface{}, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(q.limit)
		for i, r := range batch {
			if r.io == nil {
				continue
			}
			g.Go(func() error {
				res, err := r.io(gctx)
				results[i] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, r := range batch {
			q.done++
			if r.apply == nil {
				continue
			}
			if err := r.apply(ctx, results[i]); err != nil {
				return err
			}
		}
	}
	return nil
}
