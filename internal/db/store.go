package db

import (
	"context"
	"errors"
	"time"

	"mailroom/internal/models"
)

// ErrNotFound is returned by lookups when no job matches.
var ErrNotFound = errors.New("job not found")

// JobStore is the persistence contract shared by the enqueuer, the
// dispatcher and the open tracker. The writers touch disjoint fields of a
// record; the queued->processing claim inside ClaimEligible is the single
// point of write-write contention and must be atomic in every
// implementation.
type JobStore interface {
	// Insert persists a new job with status queued.
	Insert(ctx context.Context, job *models.EmailJob) error

	// GetByID returns the job with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.EmailJob, error)

	// ClaimEligible atomically claims up to limit eligible jobs
	// (status=queued, scheduledFor<=now, attempts<maxAttempts), ordered by
	// priority desc then scheduledFor asc. Claimed jobs are returned with
	// status=processing and attempts already incremented. Concurrent calls
	// never claim the same job twice.
	ClaimEligible(ctx context.Context, now time.Time, limit int) ([]*models.EmailJob, error)

	// MarkSent records a successful delivery. Terminal.
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// MarkFailed records a permanent failure. Terminal.
	MarkFailed(ctx context.Context, id string, lastError string) error

	// Requeue returns a processing job to the queue for a later retry.
	Requeue(ctx context.Context, id string, scheduledFor time.Time, lastError string) error

	// Release undoes a claim whose transport attempt never happened (for
	// example a pass cancelled by shutdown): the job goes back to queued
	// and the attempt consumed by ClaimEligible is given back, so only
	// real delivery attempts spend the attempt budget.
	Release(ctx context.Context, id string) error

	// RecordOpen marks the job carrying trackingID as opened. It reports
	// true only for the first open; unknown ids and repeat opens are
	// no-ops, not errors.
	RecordOpen(ctx context.Context, trackingID string, at time.Time, meta models.OpenMeta) (bool, error)
}
