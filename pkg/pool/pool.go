package pool

import (
	"context"
	"sync"
)

// WorkerFunc processes one item and may return an error.
type WorkerFunc[T any] func(ctx context.Context, item T) error

// Run processes items with at most numWorkers goroutines. The returned slice has
// one entry per item, in input order: nil on success, the worker's error, or
// ctx.Err() for items that were never started because ctx ended first.
// onDone, when non-nil, is called once per started item as it finishes.
func Run[T any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T], onDone func(index int, err error)) []error {
	if numWorkers < 1 {
		numWorkers = 1
	}
	errs := make([]error, len(items))
	started := make([]bool, len(items))

	var wg sync.WaitGroup
	var doneMu sync.Mutex
	taskChan := make(chan int, numWorkers)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskChan {
				err := workerFunc(ctx, items[idx])
				errs[idx] = err
				if onDone != nil {
					doneMu.Lock()
					onDone(idx, err)
					doneMu.Unlock()
				}
			}
		}()
	}

OUT:
	for idx := range items {
		select {
		case <-ctx.Done():
			break OUT
		default:
		}
		select {
		case taskChan <- idx:
			started[idx] = true
		case <-ctx.Done():
			// Stop feeding tasks if the context is cancelled
			break OUT
		}
	}
	close(taskChan)
	wg.Wait()

	for idx, ok := range started {
		if !ok {
			errs[idx] = ctx.Err()
		}
	}
	return errs
}

// FirstError returns the first non-nil error in errs.
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
