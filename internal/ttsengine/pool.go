package ttsengine

import (
	"context"

	"github.com/haasonsaas/mdflow-engine/internal/observability"
)

// WorkerPool bounds concurrent segment synthesis to a fixed number of
// in-flight calls, shared process-wide across every Sub-Processor.
type WorkerPool struct {
	sem     chan struct{}
	metrics *observability.Metrics
}

// NewWorkerPool builds a pool allowing up to n concurrent Run bodies.
func NewWorkerPool(n int) *WorkerPool {
	if n <= 0 {
		n = 4
	}
	return &WorkerPool{sem: make(chan struct{}, n)}
}

// SetMetrics wires the C7 in-flight-segment gauge. metrics may be nil.
func (p *WorkerPool) SetMetrics(metrics *observability.Metrics) {
	p.metrics = metrics
}

// Run blocks until a slot is free (or ctx is done), then runs fn on its own
// goroutine and releases the slot when fn returns. Run itself does not wait
// for fn to finish.
func (p *WorkerPool) Run(ctx context.Context, fn func()) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	if p.metrics != nil {
		p.metrics.SegmentStarted()
	}
	go func() {
		defer func() {
			<-p.sem
			if p.metrics != nil {
				p.metrics.SegmentFinished()
			}
		}()
		fn()
	}()
}
