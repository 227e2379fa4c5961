package ingest

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"resume-search/internal/metrics"
)

// Dispatcher runs ingestion pipelines on a bounded worker pool. Jobs for
// different candidates complete in no particular order; per-candidate
// serialization is the pipeline's own guarantee.
type Dispatcher struct {
	pipeline *Pipeline
	jobs     chan Job
	results  chan Result
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

func NewDispatcher(pipeline *Pipeline, workers, queueSize int, logger zerolog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		pipeline: pipeline,
		jobs:     make(chan Job, queueSize),
		results:  make(chan Result, queueSize),
		logger:   logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Info().Int("workers", workers).Int("queue", queueSize).Msg("ingestion workers started")
	return d
}

// Submit enqueues a job without blocking. Returns false when the queue is
// full; the job is dropped and accounted for.
func (d *Dispatcher) Submit(job Job) bool {
	select {
	case d.jobs <- job:
		return true
	default:
		metrics.DroppedJobsTotal.Inc()
		d.logger.Warn().Str("filename", job.Filename).Msg("ingestion queue full, job dropped")
		return false
	}
}

// Results delivers terminal pipeline results. The channel is closed after
// Close once all workers have drained.
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Close stops accepting jobs, waits for in-flight pipelines, then closes
// the results channel.
func (d *Dispatcher) Close() {
	close(d.jobs)
	d.wg.Wait()
	close(d.results)
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for job := range d.jobs {
		d.results <- d.pipeline.Run(context.Background(), job)
	}
	d.logger.Debug().Int("worker", id).Msg("ingestion worker stopped")
}
