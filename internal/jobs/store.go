package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("jobs: not found")
	ErrInvalidArgument = errors.New("jobs: invalid argument")
)

// Store is the persistence contract for verification jobs.
//
// All cross-worker coordination happens through status-guarded writes against
// this store; there is no in-memory shared state between the dispatcher and
// the webhook handler.
type Store interface {
	// Insert creates a queued job. Producers live upstream; this exists for
	// backfill tooling and tests.
	Insert(ctx context.Context, job VerificationJob) error

	// ClaimJobs atomically takes exclusive ownership of up to batchSize queued
	// jobs, oldest first, marking them processing for workerID. Concurrent
	// callers never receive overlapping jobs. Returns an empty slice, not an
	// error, when the queue is empty.
	ClaimJobs(ctx context.Context, workerID string, batchSize int) ([]VerificationJob, error)

	// MarkAwaitingCallback parks a processing job until the provider webhook
	// arrives, recording the provider call ref and its initial call status.
	// Guarded: applies only while the job is still processing.
	MarkAwaitingCallback(ctx context.Context, jobID, callRef, callStatus string) error

	// Complete finalizes a job into one of the terminal statuses.
	// Guarded: applies only while the job is in processing or awaiting_callback;
	// returns applied=false (no error) when the job was already terminal.
	Complete(ctx context.Context, jobID string, status JobStatus, callStatus, reason string) (applied bool, err error)

	// FindActiveByCallRef returns the single non-terminal job for a provider
	// call ref, most-recently-created first.
	FindActiveByCallRef(ctx context.Context, callRef string) (VerificationJob, bool, error)

	// SweepAwaitingCallback atomically re-claims jobs parked in
	// awaiting_callback whose dispatch is older than cutoff, marking them
	// processing for workerID so the caller can route them to fallback.
	SweepAwaitingCallback(ctx context.Context, workerID string, cutoff time.Time, limit int) ([]VerificationJob, error)
}
