package pool

import (
	"context"
	"log/slog"
	"sync"

	"github.com/noperator/remnant/pkg/logging"
)

// Processor handles one unit of work.
type Processor[TIn, TOut any] interface {
	Process(ctx context.Context, input TIn) (TOut, error)
}

// ProcessFunc adapts a plain function to the Processor interface.
type ProcessFunc[TIn, TOut any] func(ctx context.Context, input TIn) (TOut, error)

func (f ProcessFunc[TIn, TOut]) Process(ctx context.Context, input TIn) (TOut, error) {
	return f(ctx, input)
}

type workItem[T any] struct {
	index int
	data  T
}

type workResult[T any] struct {
	index int
	data  T
	err   error
}

// WorkerPool fans a slice of work items out over a fixed number of
// goroutines and collects results back in input order.
type WorkerPool[TIn, TOut any] struct {
	concurrency int
	logger      *slog.Logger
}

// NewWorkerPool creates a pool with the specified concurrency.
func NewWorkerPool[TIn, TOut any](concurrency int) *WorkerPool[TIn, TOut] {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &WorkerPool[TIn, TOut]{
		concurrency: concurrency,
		logger:      logging.NewLoggerFromEnv(),
	}
}

// ProcessItems processes items concurrently while preserving order. The
// returned slice is index-aligned with items; the first processing error is
// returned after all items have been attempted.
func (wp *WorkerPool[TIn, TOut]) ProcessItems(
	ctx context.Context,
	items []TIn,
	processor Processor[TIn, TOut],
	taskName string,
) ([]TOut, error) {
	numItems := len(items)
	if numItems == 0 {
		return []TOut{}, nil
	}

	wp.logger.Info("processing items",
		"component", "worker_pool",
		"task", taskName,
		"items", numItems,
		"concurrency", wp.concurrency)

	workChan := make(chan workItem[TIn], numItems)
	resultChan := make(chan workResult[TOut], numItems)

	var wg sync.WaitGroup
	for i := 0; i < wp.concurrency; i++ {
		wg.Add(1)
		go wp.worker(ctx, processor, workChan, resultChan, &wg, i)
	}

	for i, item := range items {
		workChan <- workItem[TIn]{index: i, data: item}
	}
	close(workChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]TOut, numItems)
	completed := 0
	var firstErr error

	for result := range resultChan {
		results[result.index] = result.data
		if result.err != nil && firstErr == nil {
			firstErr = result.err
		}
		completed++
		wp.logger.Debug("progress update",
			"component", "worker_pool",
			"task", taskName,
			"completed", completed,
			"total", numItems)
	}

	// Workers drain the whole channel unless the context was cancelled;
	// a shortfall means items were abandoned, which callers must be able
	// to tell apart from a clean empty run.
	if completed < numItems && firstErr == nil {
		firstErr = ctx.Err()
	}

	return results, firstErr
}

func (wp *WorkerPool[TIn, TOut]) worker(
	ctx context.Context,
	processor Processor[TIn, TOut],
	workChan <-chan workItem[TIn],
	resultChan chan<- workResult[TOut],
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for work := range workChan {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := processor.Process(ctx, work.data)
		if err != nil {
			wp.logger.Warn("worker processing error",
				"component", "worker_pool",
				"worker_id", workerID,
				"work_index", work.index,
				"error", err)
		}

		resultChan <- workResult[TOut]{index: work.index, data: result, err: err}
	}
}
