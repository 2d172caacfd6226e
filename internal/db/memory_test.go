package db

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"mailroom/internal/models"
)

func seedJob(t *testing.T, m *Memory, id string, priority int, scheduledFor time.Time) *models.EmailJob {
	t.Helper()

	job := &models.EmailJob{
		ID:           id,
		To:           id + "@x.com",
		From:         "noreply@example.com",
		Subject:      "subject",
		HTML:         "<html></html>",
		TemplateID:   "welcome",
		Priority:     priority,
		Status:       models.StatusQueued,
		MaxAttempts:  3,
		ScheduledFor: scheduledFor,
		TrackingID:   "track-" + id,
	}
	if err := m.Insert(context.Background(), job); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return job
}

func TestMemory_ClaimOrdering(t *testing.T) {
	m := NewMemory()
	now := time.Now()

	seedJob(t, m, "older-low", 1, now.Add(-2*time.Minute))
	seedJob(t, m, "newer-high", 5, now.Add(-time.Minute))
	seedJob(t, m, "older-high", 5, now.Add(-3*time.Minute))

	claimed, err := m.ClaimEligible(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	want := []string{"older-high", "newer-high", "older-low"}
	if len(claimed) != len(want) {
		t.Fatalf("expected %d claims, got %d", len(want), len(claimed))
	}
	for i, id := range want {
		if claimed[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, claimed[i].ID)
		}
		if claimed[i].Status != models.StatusProcessing {
			t.Errorf("claimed job %s not processing: %s", id, claimed[i].Status)
		}
		if claimed[i].Attempts != 1 {
			t.Errorf("claimed job %s attempts=%d, want 1", id, claimed[i].Attempts)
		}
	}
}

func TestMemory_ClaimEligibility(t *testing.T) {
	m := NewMemory()
	now := time.Now()

	seedJob(t, m, "due", 0, now.Add(-time.Second))
	seedJob(t, m, "future", 0, now.Add(time.Hour))

	exhausted := seedJob(t, m, "exhausted", 0, now.Add(-time.Second))
	m.ClaimEligible(context.Background(), now, 10)

	// Drive "exhausted" to its attempts ceiling.
	for i := 0; i < 3; i++ {
		if err := m.Requeue(context.Background(), exhausted.ID, now.Add(-time.Second), "boom"); err != nil {
			t.Fatalf("requeue: %v", err)
		}
		m.ClaimEligible(context.Background(), now, 10)
	}

	// due is processing, future is not due yet, exhausted hit its ceiling:
	// a fresh claim finds no eligible work.
	claimed, err := m.ClaimEligible(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected no eligible jobs, got %d", len(claimed))
	}
}

func TestMemory_ClaimLimit(t *testing.T) {
	m := NewMemory()
	now := time.Now()

	for i := 0; i < 5; i++ {
		seedJob(t, m, fmt.Sprintf("job-%d", i), 0, now.Add(-time.Minute))
	}

	claimed, err := m.ClaimEligible(context.Background(), now, 2)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(claimed))
	}
}

func TestMemory_ConcurrentClaims(t *testing.T) {
	m := NewMemory()
	now := time.Now()

	const n = 50
	for i := 0; i < n; i++ {
		seedJob(t, m, fmt.Sprintf("job-%d", i), 0, now.Add(-time.Minute))
	}

	var mu sync.Mutex
	counts := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := m.ClaimEligible(context.Background(), now, n)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			mu.Lock()
			for _, j := range claimed {
				counts[j.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(counts) != n {
		t.Fatalf("expected %d distinct claims, got %d", n, len(counts))
	}
	for id, c := range counts {
		if c != 1 {
			t.Errorf("job %s claimed %d times", id, c)
		}
	}
}

func TestMemory_TerminalTransitions(t *testing.T) {
	m := NewMemory()
	now := time.Now()

	job := seedJob(t, m, "job-1", 0, now.Add(-time.Minute))
	m.ClaimEligible(context.Background(), now, 1)

	sentAt := time.Now()
	if err := m.MarkSent(context.Background(), job.ID, sentAt); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	got, _ := m.GetByID(context.Background(), job.ID)
	if got.Status != models.StatusSent || got.SentAt == nil {
		t.Fatalf("expected sent with sentAt, got %+v", got)
	}

	// Terminal jobs are not claimable and not mutated by stray updates.
	claimed, _ := m.ClaimEligible(context.Background(), time.Now(), 10)
	if len(claimed) != 0 {
		t.Fatal("sent job must not be claimable")
	}
	if err := m.MarkFailed(context.Background(), job.ID, "late failure"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	after, _ := m.GetByID(context.Background(), job.ID)
	if after.Status != models.StatusSent {
		t.Errorf("terminal status changed to %s", after.Status)
	}
}

func TestMemory_RecordOpen(t *testing.T) {
	m := NewMemory()
	job := seedJob(t, m, "job-1", 0, time.Now())

	meta := models.OpenMeta{IPAddress: "203.0.113.9", UserAgent: "Mozilla/5.0"}

	first, err := m.RecordOpen(context.Background(), job.TrackingID, time.Now(), meta)
	if err != nil || !first {
		t.Fatalf("expected first open, got first=%v err=%v", first, err)
	}

	again, err := m.RecordOpen(context.Background(), job.TrackingID, time.Now(), meta)
	if err != nil || again {
		t.Fatalf("expected repeat open to no-op, got first=%v err=%v", again, err)
	}

	miss, err := m.RecordOpen(context.Background(), "unknown", time.Now(), meta)
	if err != nil || miss {
		t.Fatalf("expected unknown token to no-op, got first=%v err=%v", miss, err)
	}
}

func TestMemory_GetByIDNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.GetByID(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_ReleaseRestoresClaim(t *testing.T) {
	m := NewMemory()
	now := time.Now()

	job := seedJob(t, m, "a", 1, now.Add(-time.Minute))

	claimed, err := m.ClaimEligible(context.Background(), now, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v (%d jobs)", err, len(claimed))
	}

	if err := m.Release(context.Background(), job.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	got, _ := m.GetByID(context.Background(), job.ID)
	if got.Status != models.StatusQueued {
		t.Fatalf("expected queued after release, got %s", got.Status)
	}
	if got.Attempts != 0 {
		t.Fatalf("release must return the claimed attempt, got %d", got.Attempts)
	}
}

func TestMemory_InsertDetachesTemplateData(t *testing.T) {
	m := NewMemory()
	now := time.Now()

	data := map[string]interface{}{"name": "Ada"}
	job := &models.EmailJob{
		ID:           "a",
		To:           "a@x.com",
		From:         "noreply@example.com",
		TemplateID:   "welcome",
		TemplateData: data,
		Status:       models.StatusQueued,
		MaxAttempts:  3,
		ScheduledFor: now.Add(-time.Minute),
	}
	if err := m.Insert(context.Background(), job); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Mutating the caller's map after insert must not reach the stored record.
	data["name"] = "Eve"

	got, _ := m.GetByID(context.Background(), "a")
	if got.TemplateData["name"] != "Ada" {
		t.Fatalf("stored template data aliased to caller's map: %v", got.TemplateData)
	}

	// Nor must mutating a returned copy.
	got.TemplateData["name"] = "Mallory"

	again, _ := m.GetByID(context.Background(), "a")
	if again.TemplateData["name"] != "Ada" {
		t.Fatalf("stored template data aliased to a returned job: %v", again.TemplateData)
	}

	claimed, err := m.ClaimEligible(context.Background(), now, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v (%d jobs)", err, len(claimed))
	}
	claimed[0].TemplateData["name"] = "Trent"

	final, _ := m.GetByID(context.Background(), "a")
	if final.TemplateData["name"] != "Ada" {
		t.Fatalf("stored template data aliased to a claimed job: %v", final.TemplateData)
	}
}
