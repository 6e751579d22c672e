// internal/model/job.go
package model

import "time"

type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Valid reports whether s is one of the four known job states.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Throttling configures the pacing of a dispatch run. All fields are
// optional; unset rate caps are treated as unlimited.
type Throttling struct {
	MinDelayMs   int `json:"min_delay_ms,omitempty"`
	DelayMs      int `json:"delay_ms,omitempty"`
	MaxPerMinute int `json:"max_per_minute,omitempty"`
	MaxPerHour   int `json:"max_per_hour,omitempty"`
}

// EffectiveMinDelay folds the explicit delays and the per-minute/per-hour
// caps into a single minimum gap between two successive sends.
func (t Throttling) EffectiveMinDelay() time.Duration {
	ms := t.MinDelayMs
	if t.DelayMs > ms {
		ms = t.DelayMs
	}
	if t.MaxPerMinute > 0 {
		if d := ceilDiv(60_000, t.MaxPerMinute); d > ms {
			ms = d
		}
	}
	if t.MaxPerHour > 0 {
		if d := ceilDiv(3_600_000, t.MaxPerHour); d > ms {
			ms = d
		}
	}
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// RatePerMinute is the send rate implied by EffectiveMinDelay, as shown to
// operators.
func (t Throttling) RatePerMinute() int {
	ms := int(t.EffectiveMinDelay() / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return 60_000 / ms
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// CampaignJob is one bulk-send run. TemplateSnapshot is frozen at submit
// time; later edits to the live template never affect an in-flight job.
type CampaignJob struct {
	ID               string          `db:"id" json:"id"`
	IdempotencyKey   string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedBy        string          `db:"created_by" json:"created_by,omitempty"`
	TemplateID       string          `db:"template_id" json:"template_id"`
	TemplateSnapshot MessageTemplate `db:"template_snapshot" json:"template_snapshot"`
	FilterPayload    LeadFilter      `db:"filter_payload" json:"filter_payload"`
	Throttling       Throttling      `db:"throttling" json:"throttling"`
	Status           JobStatus       `db:"status" json:"status"`
	TotalLeads       int             `db:"total_leads" json:"total_leads"`
	TotalItems       int             `db:"total_items" json:"total_items"`
	SentItems        int             `db:"sent_items" json:"sent_items"`
	FailedItems      int             `db:"failed_items" json:"failed_items"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}
