package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/orbit"
	"github.com/star/orrery/internal/transform"
)

// propagateJob is a unit of work for the worker pool.
type propagateJob struct {
	index int
	body  catalog.Body
}

// propagateResult is the output of a single body propagation.
type propagateResult struct {
	index    int
	position BodyPosition
	err      error
	name     string
}

// WorkerPool manages a fixed number of goroutines for parallel propagation.
type WorkerPool struct {
	workers int
	opts    []orbit.Option
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers. opts
// apply to every position the pool computes.
func NewWorkerPool(workers int, logger *slog.Logger, opts ...orbit.Option) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		opts:    opts,
		logger:  logger,
	}
}

// PropagateBatch computes display positions for every body at jd using the
// worker pool. Satellites are resolved against their parent in bodies.
// Results keep the input order. Failed bodies are logged and skipped; the
// success and error counts are returned alongside.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, bodies []catalog.Body, jd, scale float64) ([]BodyPosition, int, int) {
	if len(bodies) == 0 {
		return nil, 0, 0
	}
	if scale <= 0 {
		scale = transform.DefaultOrbitScale
	}

	lookup := indexLookup(bodies)

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := propagateSingle(job, lookup, jd, scale, wp.opts)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, b := range bodies {
			select {
			case jobs <- propagateJob{index: i, body: b}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	slots := make([]*BodyPosition, len(bodies))
	var successCount, errorCount int

	for result := range results {
		if result.err != nil {
			errorCount++
			if errors.Is(result.err, orbit.ErrNonConvergent) {
				metrics.IncKeplerNonConvergent()
			}
			wp.logger.Warn("propagation failed",
				"body", result.name,
				"jd", jd,
				"error", result.err,
			)
			continue
		}
		successCount++
		pos := result.position
		slots[result.index] = &pos
	}

	positions := make([]BodyPosition, 0, successCount)
	for _, p := range slots {
		if p != nil {
			positions = append(positions, *p)
		}
	}
	return positions, successCount, errorCount
}

// propagateSingle computes one body's position. Non-finite output counts as
// a failure because it cannot be serialized in a keyframe.
func propagateSingle(job propagateJob, lookup lookupFunc, jd, scale float64, opts []orbit.Option) propagateResult {
	b := job.body
	p, err := resolve(b, lookup, jd, scale, true, 0, opts...)
	if err != nil {
		return propagateResult{index: job.index, name: b.Name, err: err}
	}
	if !transform.ValidatePosition(p) {
		return propagateResult{index: job.index, name: b.Name, err: fmt.Errorf("non-finite position for %q", b.Name)}
	}

	return propagateResult{
		index: job.index,
		name:  b.Name,
		position: BodyPosition{
			Name:     b.Name,
			Kind:     b.Kind,
			Position: [3]float64{p.X, p.Y, p.Z},
		},
	}
}
