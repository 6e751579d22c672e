package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/kanbanflow/campaign-engine/internal/apperrors"
	"github.com/kanbanflow/campaign-engine/internal/model"
)

// ProgressDelta is an atomic increment applied to a job's counters.
type ProgressDelta struct {
	Sent       int
	Failed     int
	TotalItems int
	TotalLeads int
}

type JobRepositoryInterface interface {
	// Submit inserts the job, or returns the existing one when its
	// idempotency key is already taken. The bool reports whether a new
	// row was created.
	Submit(job *model.CampaignJob) (*model.CampaignJob, bool, error)
	GetByID(id string) (*model.CampaignJob, error)
	List(limit int) ([]*model.CampaignJob, error)
	UpdateStatus(id string, status model.JobStatus) (*model.CampaignJob, error)
	RecordProgress(id string, delta ProgressDelta) error
	FailStalled(stallFor time.Duration) (int64, error)
}

type JobRepository struct {
	DB *sql.DB
}

const jobColumns = `id, idempotency_key, created_by, template_id, template_snapshot,
        filter_payload, throttling, status, total_leads, total_items, sent_items,
        failed_items, created_at, updated_at`

func (r *JobRepository) Submit(job *model.CampaignJob) (*model.CampaignJob, bool, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if job.IdempotencyKey != "" {
		var existingID string
		err := tx.QueryRow(
			`SELECT id FROM campaign_jobs WHERE idempotency_key = $1`,
			job.IdempotencyKey,
		).Scan(&existingID)
		switch {
		case err == nil:
			if err := tx.Commit(); err != nil {
				return nil, false, err
			}
			existing, err := r.GetByID(existingID)
			return existing, false, err
		case err != sql.ErrNoRows:
			return nil, false, err
		}
	}

	snapshot, err := json.Marshal(job.TemplateSnapshot)
	if err != nil {
		return nil, false, err
	}
	filter, err := json.Marshal(job.FilterPayload)
	if err != nil {
		return nil, false, err
	}
	throttling, err := json.Marshal(job.Throttling)
	if err != nil {
		return nil, false, err
	}

	job.Status = model.StatusQueued
	query := `
        INSERT INTO campaign_jobs
            (id, idempotency_key, created_by, template_id, template_snapshot,
             filter_payload, throttling, status, total_leads, total_items,
             sent_items, failed_items, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, $8, 0, 0, 0, 0, NOW(), NOW())
        RETURNING created_at, updated_at
    `
	err = tx.QueryRow(query,
		job.ID, nullable(job.IdempotencyKey), job.CreatedBy, job.TemplateID,
		snapshot, filter, throttling, job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (r *JobRepository) GetByID(id string) (*model.CampaignJob, error) {
	row := r.DB.QueryRow(`SELECT `+jobColumns+` FROM campaign_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepository) List(limit int) ([]*model.CampaignJob, error) {
	if limit < 1 {
		limit = 30
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := r.DB.Query(
		`SELECT `+jobColumns+` FROM campaign_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*model.CampaignJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateStatus validates the status enum before touching the row; an
// unknown value leaves the record unmodified.
func (r *JobRepository) UpdateStatus(id string, status model.JobStatus) (*model.CampaignJob, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidation("unknown job status %q", string(status))
	}
	res, err := r.DB.Exec(
		`UPDATE campaign_jobs SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperrors.NewJobNotFound(id)
	}
	return r.GetByID(id)
}

// RecordProgress increments counters in SQL, so concurrent workers never
// lose an update to a read-modify-write race.
func (r *JobRepository) RecordProgress(id string, delta ProgressDelta) error {
	res, err := r.DB.Exec(`
        UPDATE campaign_jobs
        SET sent_items  = sent_items  + $2,
            failed_items = failed_items + $3,
            total_items  = total_items  + $4,
            total_leads  = total_leads  + $5,
            updated_at   = NOW()
        WHERE id = $1`,
		id, delta.Sent, delta.Failed, delta.TotalItems, delta.TotalLeads,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewJobNotFound(id)
	}
	return nil
}

// FailStalled marks running jobs whose updated_at has not moved for
// stallFor as failed, and returns how many were swept.
func (r *JobRepository) FailStalled(stallFor time.Duration) (int64, error) {
	res, err := r.DB.Exec(`
        UPDATE campaign_jobs
        SET status = $1, updated_at = NOW()
        WHERE status = $2 AND updated_at < NOW() - ($3 * INTERVAL '1 second')`,
		model.StatusFailed, model.StatusRunning, stallFor.Seconds(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.CampaignJob, error) {
	var (
		job        model.CampaignJob
		key        sql.NullString
		snapshot   []byte
		filter     []byte
		throttling []byte
	)
	err := row.Scan(
		&job.ID, &key, &job.CreatedBy, &job.TemplateID, &snapshot,
		&filter, &throttling, &job.Status, &job.TotalLeads, &job.TotalItems,
		&job.SentItems, &job.FailedItems, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.IdempotencyKey = key.String
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &job.TemplateSnapshot); err != nil {
			return nil, err
		}
	}
	if len(filter) > 0 {
		if err := json.Unmarshal(filter, &job.FilterPayload); err != nil {
			return nil, err
		}
	}
	if len(throttling) > 0 {
		if err := json.Unmarshal(throttling, &job.Throttling); err != nil {
			return nil, err
		}
	}
	return &job, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ JobRepositoryInterface = (*JobRepository)(nil)
