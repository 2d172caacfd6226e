package models

import "time"

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusSent       JobStatus = "sent"
	StatusFailed     JobStatus = "failed"
)

// DefaultMaxAttempts is the attempts ceiling applied when the caller does not
// override it.
const DefaultMaxAttempts = 3

// EmailJob is the persisted delivery unit. The JSON field names are a durable
// contract consumed by admin inspection and cleanup tooling; do not rename.
type EmailJob struct {
	ID string `json:"id"`

	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`

	TemplateID   string                 `json:"templateId"`
	TemplateData map[string]interface{} `json:"templateData"`

	Priority    int       `json:"priority"`
	Status      JobStatus `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`

	ScheduledFor time.Time  `json:"scheduledFor"`
	SentAt       *time.Time `json:"sentAt,omitempty"`

	TrackingID string       `json:"trackingId"`
	Tracking   TrackingData `json:"trackingData"`

	LastError string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TrackingData records the best-effort open signal. Mutated only by the open
// tracker, never by the dispatcher.
type TrackingData struct {
	Opened    bool       `json:"opened"`
	OpenedAt  *time.Time `json:"openedAt,omitempty"`
	IPAddress string     `json:"ipAddress,omitempty"`
	UserAgent string     `json:"userAgent,omitempty"`
}

// OpenMeta carries the request metadata captured by the tracking endpoint.
type OpenMeta struct {
	IPAddress string
	UserAgent string
}

// Eligible reports whether the job may be claimed by a dispatch pass.
func (j *EmailJob) Eligible(now time.Time) bool {
	return j.Status == StatusQueued &&
		!j.ScheduledFor.After(now) &&
		j.Attempts < j.MaxAttempts
}

// Terminal reports whether the job has reached a final state.
func (j *EmailJob) Terminal() bool {
	return j.Status == StatusSent || j.Status == StatusFailed
}
