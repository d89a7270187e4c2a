// Package jobs defines the asynchronous unit of work the worker consumes:
// one queued document to run through the ingestion pipeline.
package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

// JobTypeProcessDocument runs the ingestion pipeline for one document.
const JobTypeProcessDocument JobType = "process_document"

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// ProcessDocumentJob asks the worker to ingest one uploaded document.
type ProcessDocumentJob struct {
	JobID string `json:"job_id"`

	// DocumentID identifies the document across runs and in the ledger.
	DocumentID string `json:"document_id"`

	// GCSURI locates the uploaded bytes.
	GCSURI string `json:"gcs_uri"`

	// MIMEType is the uploader-declared document type.
	MIMEType string `json:"mime_type,omitempty"`

	Status    JobStatus  `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error holds failure details for failed jobs.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Job is the generic interface the queue moves around.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements Job.
func (j *ProcessDocumentJob) GetID() string { return j.JobID }

// GetType implements Job.
func (j *ProcessDocumentJob) GetType() JobType { return JobTypeProcessDocument }

// GetStatus implements Job.
func (j *ProcessDocumentJob) GetStatus() JobStatus { return j.Status }

// Publisher enqueues document jobs. Implementations range from the
// in-memory queue to Cloud Tasks or Pub/Sub.
type Publisher interface {
	PublishProcessDocument(ctx context.Context, job *ProcessDocumentJob) error
	Close() error
}

// JobHandler processes one job; a returned error requests a retry.
type JobHandler func(ctx context.Context, job Job) error

// Consumer pulls jobs and feeds them to a handler.
type Consumer interface {
	Start(ctx context.Context, handler JobHandler) error
	Stop(ctx context.Context) error
}

// JobStore tracks job state across the queue's lifetime.
type JobStore interface {
	SaveJob(ctx context.Context, job *ProcessDocumentJob) error
	GetJob(ctx context.Context, jobID string) (*ProcessDocumentJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}
