package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"mailroom/internal/models"
)

// Memory is a mutex-guarded in-memory JobStore. It backs local development
// when no DATABASE_URL is configured and the test suite. The claim in
// ClaimEligible happens entirely under the lock, so it gives the same
// no-double-claim guarantee as the Postgres store.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*models.EmailJob
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*models.EmailJob)}
}

func (m *Memory) Insert(ctx context.Context, job *models.EmailJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// cloneJob detaches a record from the caller's copy. The Postgres store
// serializes template data on the way in and out, so the memory store must
// not leave the map aliased either.
func cloneJob(job *models.EmailJob) *models.EmailJob {
	cp := *job
	if job.TemplateData != nil {
		cp.TemplateData = make(map[string]interface{}, len(job.TemplateData))
		for k, v := range job.TemplateData {
			cp.TemplateData[k] = v
		}
	}
	return &cp
}

func (m *Memory) GetByID(ctx context.Context, id string) (*models.EmailJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (m *Memory) ClaimEligible(ctx context.Context, now time.Time, limit int) ([]*models.EmailJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var eligible []*models.EmailJob
	for _, job := range m.jobs {
		if job.Eligible(now) {
			eligible = append(eligible, job)
		}
	}

	sort.SliceStable(eligible, func(i, k int) bool {
		if eligible[i].Priority != eligible[k].Priority {
			return eligible[i].Priority > eligible[k].Priority
		}
		return eligible[i].ScheduledFor.Before(eligible[k].ScheduledFor)
	})

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]*models.EmailJob, 0, len(eligible))
	for _, job := range eligible {
		job.Status = models.StatusProcessing
		job.Attempts++
		job.UpdatedAt = now

		claimed = append(claimed, cloneJob(job))
	}

	return claimed, nil
}

func (m *Memory) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != models.StatusProcessing {
		return nil
	}

	job.Status = models.StatusSent
	job.SentAt = &sentAt
	job.LastError = ""
	job.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) MarkFailed(ctx context.Context, id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != models.StatusProcessing {
		return nil
	}

	job.Status = models.StatusFailed
	job.LastError = lastError
	job.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) Requeue(ctx context.Context, id string, scheduledFor time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != models.StatusProcessing {
		return nil
	}

	job.Status = models.StatusQueued
	job.ScheduledFor = scheduledFor
	job.LastError = lastError
	job.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) Release(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != models.StatusProcessing {
		return nil
	}

	job.Status = models.StatusQueued
	if job.Attempts > 0 {
		job.Attempts--
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) RecordOpen(ctx context.Context, trackingID string, at time.Time, meta models.OpenMeta) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.TrackingID != trackingID {
			continue
		}
		if job.Tracking.Opened {
			return false, nil
		}
		job.Tracking.Opened = true
		job.Tracking.OpenedAt = &at
		job.Tracking.IPAddress = meta.IPAddress
		job.Tracking.UserAgent = meta.UserAgent
		job.UpdatedAt = time.Now()
		return true, nil
	}

	return false, nil
}
