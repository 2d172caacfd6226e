package queue

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mailroom/internal/db"
	"mailroom/internal/email"
	"mailroom/internal/metrics"
	"mailroom/internal/models"
)

// PassStats summarizes one dispatch pass.
type PassStats struct {
	Attempted int
	Sent      int
	Failed    int
}

// Dispatcher drives claimed jobs through the state machine:
// queued -> processing -> sent | failed | queued (retry).
// The store's atomic claim is the only concurrency gate, so RunPass is safe
// to call concurrently with itself. Single-instance dispatch against a given
// store is an assumption of the design, not something this type enforces.
type Dispatcher struct {
	Store     db.JobStore
	Transport email.Transport
	Limiter   *rate.Limiter
	Log       *zap.Logger

	// SendTimeout bounds each transport call. Zero means 30 seconds.
	SendTimeout time.Duration

	// RetryDelay maps the attempt count of a transiently failed job to the
	// delay before it becomes eligible again. Nil means exponential backoff.
	RetryDelay func(attempts int) time.Duration
}

// RunPass claims up to limit eligible jobs and attempts delivery for each.
// One job's failure never aborts the rest of the batch; all outcomes are
// recorded on the job records.
func (d *Dispatcher) RunPass(ctx context.Context, limit int) PassStats {
	metrics.DispatchPasses.Inc()

	var stats PassStats

	jobs, err := d.Store.ClaimEligible(ctx, time.Now(), limit)
	if err != nil {
		d.Log.Error("failed to claim eligible jobs", zap.Error(err))
		return stats
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			// Shutdown mid-pass: no transport attempt happened, so the
			// claim is released rather than requeued, giving the attempt
			// back to the job's budget.
			d.release(context.WithoutCancel(ctx), job)
			continue
		}

		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				d.release(context.WithoutCancel(ctx), job)
				continue
			}
		}

		stats.Attempted++
		if d.deliver(ctx, job) {
			stats.Sent++
		} else if job.Status == models.StatusFailed {
			stats.Failed++
		}
	}

	return stats
}

// deliver performs one transport attempt for a claimed job and records the
// outcome. Reports true on success.
func (d *Dispatcher) deliver(ctx context.Context, job *models.EmailJob) bool {
	timeout := d.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	messageID, err := d.Transport.Send(sendCtx, email.Message{
		From:    job.From,
		To:      job.To,
		Subject: job.Subject,
		HTML:    job.HTML,
	})
	cancel()

	if err == nil {
		sentAt := time.Now()
		if dbErr := d.Store.MarkSent(ctx, job.ID, sentAt); dbErr != nil {
			d.Log.Error("failed to mark job sent",
				zap.String("job_id", job.ID),
				zap.Error(dbErr),
			)
			return false
		}

		job.Status = models.StatusSent
		job.SentAt = &sentAt

		metrics.EmailsSent.Inc()
		d.Log.Info("email sent",
			zap.String("job_id", job.ID),
			zap.String("to", job.To),
			zap.String("message_id", messageID),
			zap.Int("attempts", job.Attempts),
		)
		return true
	}

	if email.IsPermanent(err) || job.Attempts >= job.MaxAttempts {
		if dbErr := d.Store.MarkFailed(ctx, job.ID, err.Error()); dbErr != nil {
			d.Log.Error("failed to mark job failed",
				zap.String("job_id", job.ID),
				zap.Error(dbErr),
			)
			return false
		}

		job.Status = models.StatusFailed
		job.LastError = err.Error()

		metrics.EmailFailures.Inc()
		d.Log.Error("email abandoned",
			zap.String("job_id", job.ID),
			zap.String("to", job.To),
			zap.Int("attempts", job.Attempts),
			zap.Int("max_attempts", job.MaxAttempts),
			zap.Error(err),
		)
		return false
	}

	next := time.Now().Add(d.retryDelay(job.Attempts))
	d.requeue(ctx, job, next, err.Error())

	metrics.EmailRetries.Inc()
	d.Log.Warn("email send failed, retrying later",
		zap.String("job_id", job.ID),
		zap.String("to", job.To),
		zap.Int("attempts", job.Attempts),
		zap.Time("next_attempt", next),
		zap.Error(err),
	)
	return false
}

func (d *Dispatcher) requeue(ctx context.Context, job *models.EmailJob, scheduledFor time.Time, lastError string) {
	if err := d.Store.Requeue(ctx, job.ID, scheduledFor, lastError); err != nil {
		d.Log.Error("failed to requeue job",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}
	job.Status = models.StatusQueued
	job.ScheduledFor = scheduledFor
	job.LastError = lastError
}

func (d *Dispatcher) release(ctx context.Context, job *models.EmailJob) {
	if err := d.Store.Release(ctx, job.ID); err != nil {
		d.Log.Error("failed to release claimed job",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}
	job.Status = models.StatusQueued
	if job.Attempts > 0 {
		job.Attempts--
	}
}

func (d *Dispatcher) retryDelay(attempts int) time.Duration {
	if d.RetryDelay != nil {
		return d.RetryDelay(attempts)
	}
	return defaultRetryDelay(attempts)
}

// defaultRetryDelay grows the delay exponentially with the attempt count so
// a flapping relay is not hammered on every tick.
func defaultRetryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 30 * time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Minute
	b.MaxElapsedTime = 0

	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}
