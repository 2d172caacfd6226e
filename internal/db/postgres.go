package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailroom/internal/models"
)

// Postgres implements JobStore on a pgx connection pool.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, conn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, conn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &Postgres{Pool: pool}, nil
}

func (p *Postgres) Close() {
	p.Pool.Close()
}

// Migrate creates the email_jobs table and its indexes.
func (p *Postgres) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS email_jobs (
		id              TEXT PRIMARY KEY,
		to_email        TEXT NOT NULL,
		from_email      TEXT NOT NULL,
		subject         TEXT NOT NULL,
		html            TEXT NOT NULL,
		template_id     TEXT NOT NULL,
		template_data   JSONB NOT NULL DEFAULT '{}'::jsonb,
		priority        INT NOT NULL DEFAULT 0,
		status          TEXT NOT NULL DEFAULT 'queued',
		attempts        INT NOT NULL DEFAULT 0,
		max_attempts    INT NOT NULL DEFAULT 3,
		scheduled_for   TIMESTAMPTZ NOT NULL,
		sent_at         TIMESTAMPTZ,
		tracking_id     TEXT NOT NULL UNIQUE,
		opened          BOOLEAN NOT NULL DEFAULT FALSE,
		opened_at       TIMESTAMPTZ,
		open_ip         TEXT NOT NULL DEFAULT '',
		open_user_agent TEXT NOT NULL DEFAULT '',
		last_error      TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_email_jobs_eligible
		ON email_jobs (status, scheduled_for, priority DESC);
	`

	_, err := p.Pool.Exec(ctx, schema)
	return err
}

const jobColumns = `id, to_email, from_email, subject, html, template_id, template_data,
	priority, status, attempts, max_attempts, scheduled_for, sent_at, tracking_id,
	opened, opened_at, open_ip, open_user_agent, last_error, created_at, updated_at`

func (p *Postgres) Insert(ctx context.Context, job *models.EmailJob) error {
	dataJSON, err := json.Marshal(job.TemplateData)
	if err != nil {
		return err
	}

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err = p.Pool.Exec(ctx,
		`INSERT INTO email_jobs
		 (id, to_email, from_email, subject, html, template_id, template_data,
		  priority, status, attempts, max_attempts, scheduled_for, tracking_id,
		  created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		job.ID,
		job.To,
		job.From,
		job.Subject,
		job.HTML,
		job.TemplateID,
		dataJSON,
		job.Priority,
		job.Status,
		job.Attempts,
		job.MaxAttempts,
		job.ScheduledFor,
		job.TrackingID,
		job.CreatedAt,
		job.UpdatedAt,
	)

	return err
}

func (p *Postgres) GetByID(ctx context.Context, id string) (*models.EmailJob, error) {
	row := p.Pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM email_jobs WHERE id=$1`, id)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// ClaimEligible performs the queued->processing transition as a single
// conditional update. FOR UPDATE SKIP LOCKED keeps concurrent passes from
// claiming the same rows.
func (p *Postgres) ClaimEligible(ctx context.Context, now time.Time, limit int) ([]*models.EmailJob, error) {
	rows, err := p.Pool.Query(ctx,
		`WITH eligible AS (
			SELECT id FROM email_jobs
			WHERE status='queued' AND scheduled_for <= $1 AND attempts < max_attempts
			ORDER BY priority DESC, scheduled_for ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		UPDATE email_jobs j
		SET status='processing', attempts=j.attempts+1, updated_at=now()
		FROM eligible e
		WHERE j.id = e.id
		RETURNING j.id, j.to_email, j.from_email, j.subject, j.html, j.template_id,
			j.template_data, j.priority, j.status, j.attempts, j.max_attempts,
			j.scheduled_for, j.sent_at, j.tracking_id, j.opened, j.opened_at,
			j.open_ip, j.open_user_agent, j.last_error, j.created_at, j.updated_at`,
		now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.EmailJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not preserve the CTE ordering.
	sort.SliceStable(jobs, func(i, k int) bool {
		if jobs[i].Priority != jobs[k].Priority {
			return jobs[i].Priority > jobs[k].Priority
		}
		return jobs[i].ScheduledFor.Before(jobs[k].ScheduledFor)
	})

	return jobs, nil
}

func (p *Postgres) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := p.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status='sent', sent_at=$1, last_error='', updated_at=now()
		 WHERE id=$2 AND status='processing'`,
		sentAt, id)
	return err
}

func (p *Postgres) MarkFailed(ctx context.Context, id string, lastError string) error {
	_, err := p.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status='failed', last_error=$1, updated_at=now()
		 WHERE id=$2 AND status='processing'`,
		lastError, id)
	return err
}

func (p *Postgres) Requeue(ctx context.Context, id string, scheduledFor time.Time, lastError string) error {
	_, err := p.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status='queued', scheduled_for=$1, last_error=$2, updated_at=now()
		 WHERE id=$3 AND status='processing'`,
		scheduledFor, lastError, id)
	return err
}

func (p *Postgres) Release(ctx context.Context, id string) error {
	_, err := p.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status='queued', attempts=GREATEST(attempts-1, 0), updated_at=now()
		 WHERE id=$1 AND status='processing'`,
		id)
	return err
}

func (p *Postgres) RecordOpen(ctx context.Context, trackingID string, at time.Time, meta models.OpenMeta) (bool, error) {
	tag, err := p.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET opened=TRUE, opened_at=$1, open_ip=$2, open_user_agent=$3, updated_at=now()
		 WHERE tracking_id=$4 AND opened=FALSE`,
		at, meta.IPAddress, meta.UserAgent, trackingID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanJob(row pgx.Row) (*models.EmailJob, error) {
	var (
		job      models.EmailJob
		dataJSON []byte
	)

	err := row.Scan(
		&job.ID,
		&job.To,
		&job.From,
		&job.Subject,
		&job.HTML,
		&job.TemplateID,
		&dataJSON,
		&job.Priority,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.ScheduledFor,
		&job.SentAt,
		&job.TrackingID,
		&job.Tracking.Opened,
		&job.Tracking.OpenedAt,
		&job.Tracking.IPAddress,
		&job.Tracking.UserAgent,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &job.TemplateData); err != nil {
			return nil, fmt.Errorf("decode template data: %w", err)
		}
	}

	return &job, nil
}
