package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailroom/internal/db"
	"mailroom/internal/metrics"
	"mailroom/internal/models"
	"mailroom/internal/template"
)

// ErrMissingRecipient is returned when an enqueue request has no recipient.
var ErrMissingRecipient = errors.New("recipient is required")

// EnqueueRequest carries the caller inputs for a new email job.
type EnqueueRequest struct {
	To           string
	From         string
	TemplateID   string
	TemplateData map[string]interface{}
	Priority     int
	ScheduledFor time.Time
	MaxAttempts  int
}

// Enqueuer renders, persists and (for urgent jobs) fast-paths email jobs.
// Delivery itself is asynchronous; callers only ever see validation and
// persistence failures.
type Enqueuer struct {
	Store     db.JobStore
	Templates *template.Registry
	Log       *zap.Logger

	// DefaultFrom is used when the request carries no sender.
	DefaultFrom string
	// DefaultMaxAttempts is the attempts ceiling applied when the request
	// does not override it.
	DefaultMaxAttempts int
	// BaseURL is the public origin the tracking pixel URL is built on.
	BaseURL string
	// Kick triggers an out-of-band dispatch pass. Optional.
	Kick func()
}

// Enqueue validates and persists a job with status queued and returns it.
// Jobs with priority > 0 additionally trigger an immediate dispatch pass;
// the caller does not wait on that pass.
func (e *Enqueuer) Enqueue(ctx context.Context, req EnqueueRequest) (*models.EmailJob, error) {
	if strings.TrimSpace(req.To) == "" {
		return nil, ErrMissingRecipient
	}

	trackingID := uuid.NewString()
	trackingURL := strings.TrimRight(e.BaseURL, "/") + "/track/" + trackingID

	subject, html, err := e.Templates.Render(req.TemplateID, req.TemplateData, trackingURL)
	if err != nil {
		return nil, err
	}

	from := req.From
	if from == "" {
		from = e.DefaultFrom
	}

	scheduledFor := req.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = time.Now()
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.DefaultMaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}

	job := &models.EmailJob{
		ID:           uuid.NewString(),
		To:           req.To,
		From:         from,
		Subject:      subject,
		HTML:         html,
		TemplateID:   req.TemplateID,
		TemplateData: req.TemplateData,
		Priority:     req.Priority,
		Status:       models.StatusQueued,
		MaxAttempts:  maxAttempts,
		ScheduledFor: scheduledFor,
		TrackingID:   trackingID,
	}

	if err := e.Store.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	metrics.JobsEnqueued.Inc()
	e.Log.Info("email job enqueued",
		zap.String("job_id", job.ID),
		zap.String("to", job.To),
		zap.String("template", job.TemplateID),
		zap.Int("priority", job.Priority),
	)

	if job.Priority > 0 && e.Kick != nil {
		e.Kick()
	}

	return job, nil
}
