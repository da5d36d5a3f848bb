// Package workerpool runs a slice of work items on a fixed number of goroutines.
package workerpool

import (
	"context"
	"fmt"
	"sync"
)

// Result pairs an input item with what its worker produced
type Result[T any, R any] struct {
	Item  T
	Value R
	Err   error
}

// Run executes fn for every item with at most limit invocations in flight.
// Exactly one Result is returned per item, at the item's index. A limit below 1 is treated as 1.
// Items not yet started when ctx is cancelled get ctx.Err() without running fn.
// A panicking fn is reported as that item's error.
func Run[T any, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error)) []Result[T, R] {
	results := make([]Result[T, R], len(items))
	if len(items) == 0 {
		return results
	}

	if limit < 1 {
		limit = 1
	}
	if limit > len(items) {
		limit = len(items)
	}

	// Fully buffered, so the feeder never blocks and no goroutine is left behind
	indexCh := make(chan int, len(items))
	for i := range items {
		indexCh <- i
	}
	close(indexCh)

	var wg sync.WaitGroup
	for w := 0; w < limit; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexCh {
				results[i] = runOne(ctx, items[i], fn)
			}
		}()
	}

	wg.Wait()
	return results
}

func runOne[T any, R any](ctx context.Context, item T, fn func(context.Context, T) (R, error)) (res Result[T, R]) {
	res.Item = item

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("worker panic: %v", r)
		}
	}()

	res.Value, res.Err = fn(ctx, item)
	return res
}
