package yolotv

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// runUnits calls unit(i) for every i in [0, numUnits) from at most numWorkers goroutines.
// numWorkers <= 0 selects runtime.NumCPU().
//
// A unit is never interrupted once started. The context is only checked before a unit starts: when
// it is cancelled, or when a unit fails, no further units are started and runUnits returns once
// the units in flight have finished.
//
// Returns the number of units that completed without error, and the first unit error or else the
// context error.
func runUnits(ctx context.Context, numWorkers, numUnits int, unit func(i int) error) (int, error) {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numUnits < numWorkers {
		numWorkers = numUnits
	}
	if numWorkers == 0 {
		return 0, ctx.Err()
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	workQueue := make(chan int, 2*numWorkers)
	errors := make(chan error, 1)
	var completed int64
	var wg sync.WaitGroup

	trySendError := func(err error) {
		select {
		case errors <- err:
		default:
		}
	}

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for i := range workQueue {
				// Queued units are drained without being started after a stop.
				if runCtx.Err() != nil {
					continue
				}
				if err := unit(i); err != nil {
					trySendError(err)
					stop()
					continue
				}
				atomic.AddInt64(&completed, 1)
			}
		}()
	}

	// Feed the work queue.
feed:
	for i := 0; i < numUnits; i++ {
		select {
		case <-runCtx.Done():
			break feed
		case workQueue <- i:
		}
	}
	close(workQueue)

	wg.Wait()

	close(errors)
	if err := <-errors; err != nil {
		return int(completed), err
	}
	if int(completed) == numUnits {
		return numUnits, nil
	}
	return int(completed), ctx.Err()
}
