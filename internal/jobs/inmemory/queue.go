// Package inmemory provides channel-backed implementations of the jobs
// interfaces for single-process deployments.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/avcarvalho/statement-ingest/internal/jobs"
)

// Queue is an in-memory job queue backed by a buffered channel.
type Queue struct {
	jobCh   chan *jobs.ProcessDocumentJob
	store   jobs.JobStore
	logger  zerolog.Logger
	workers int

	mu       sync.Mutex
	started  bool
	closed   bool
	chClosed bool
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewQueue creates a queue with the given buffer size and worker count.
func NewQueue(bufferSize, workers int, store jobs.JobStore, logger zerolog.Logger) *Queue {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		jobCh:   make(chan *jobs.ProcessDocumentJob, bufferSize),
		store:   store,
		logger:  logger.With().Str("component", "job_queue").Logger(),
		workers: workers,
	}
}

// PublishProcessDocument implements jobs.Publisher.
func (q *Queue) PublishProcessDocument(ctx context.Context, job *jobs.ProcessDocumentJob) error {
	job.Status = jobs.JobStatusPending
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("saving job before publish: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("queue is closed")
	}
	select {
	case q.jobCh <- job:
		q.logger.Info().Str("job_id", job.JobID).Str("document_id", job.DocumentID).Msg("job published")
		return nil
	default:
		return errors.New("queue is full")
	}
}

// Start implements jobs.Consumer. It spawns the worker goroutines and
// returns immediately.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return errors.New("queue already started")
	}
	q.started = true

	workerCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.runWorker(workerCtx, i, handler)
	}
	q.logger.Info().Int("workers", q.workers).Msg("queue started")
	return nil
}

func (q *Queue) runWorker(ctx context.Context, id int, handler jobs.JobHandler) {
	defer q.wg.Done()
	for {
		select {
		case job, ok := <-q.jobCh:
			if !ok {
				return
			}
			q.processJob(ctx, id, job, handler)
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) processJob(ctx context.Context, workerID int, job *jobs.ProcessDocumentJob, handler jobs.JobHandler) {
	log := q.logger.With().Int("worker", workerID).Str("job_id", job.JobID).Logger()

	now := time.Now().UTC()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &now
	if err := q.store.UpdateJobStatus(ctx, job.JobID, jobs.JobStatusRunning, ""); err != nil {
		log.Warn().Err(err).Msg("failed to mark job running")
	}

	err := handler(ctx, job)
	done := time.Now().UTC()
	job.CompletedAt = &done

	if err == nil {
		job.Status = jobs.JobStatusCompleted
		if serr := q.store.UpdateJobStatus(ctx, job.JobID, jobs.JobStatusCompleted, ""); serr != nil {
			log.Warn().Err(serr).Msg("failed to mark job completed")
		}
		log.Info().Msg("job completed")
		return
	}

	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		if serr := q.store.UpdateJobStatus(ctx, job.JobID, jobs.JobStatusRetrying, err.Error()); serr != nil {
			log.Warn().Err(serr).Msg("failed to mark job retrying")
		}
		log.Warn().Err(err).Int("retry", job.RetryCount).Msg("job failed, requeueing")
		q.mu.Lock()
		requeued := false
		if !q.chClosed {
			select {
			case q.jobCh <- job:
				requeued = true
			default:
			}
		}
		q.mu.Unlock()
		if !requeued {
			job.Status = jobs.JobStatusFailed
			job.Error = err.Error()
			if serr := q.store.UpdateJobStatus(ctx, job.JobID, jobs.JobStatusFailed, err.Error()); serr != nil {
				log.Warn().Err(serr).Msg("failed to mark job failed")
			}
		}
		return
	}

	job.Status = jobs.JobStatusFailed
	job.Error = err.Error()
	if serr := q.store.UpdateJobStatus(ctx, job.JobID, jobs.JobStatusFailed, err.Error()); serr != nil {
		log.Warn().Err(serr).Msg("failed to mark job failed")
	}
	log.Error().Err(err).Msg("job failed permanently")
}

// Stop implements jobs.Consumer. It stops accepting new jobs and waits
// for in-flight jobs to finish or the context to expire.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	if !q.chClosed {
		q.chClosed = true
		close(q.jobCh)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info().Msg("queue drained")
		return nil
	case <-ctx.Done():
		if q.cancel != nil {
			q.cancel()
		}
		return fmt.Errorf("queue stop timed out: %w", ctx.Err())
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if !q.chClosed {
		q.chClosed = true
		close(q.jobCh)
	}
	return nil
}
