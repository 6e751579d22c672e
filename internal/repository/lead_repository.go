package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/kanbanflow/campaign-engine/internal/model"
)

// LeadRepositoryInterface is the lead store collaborator: it applies the
// funnel/status/tag filters and hands back read-only leads.
type LeadRepositoryInterface interface {
	Query(filter model.LeadFilter) ([]model.Lead, error)
}

type LeadRepository struct {
	DB *sql.DB
}

func (r *LeadRepository) Query(filter model.LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, title, client, status, tags, assigned_to, people, client_phone
              FROM leads WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.FunnelID != "" {
		query += fmt.Sprintf(" AND funnel_id = $%d", argPos)
		args = append(args, filter.FunnelID)
		argPos++
	}
	if len(filter.StageIDs) > 0 {
		query += fmt.Sprintf(" AND stage_id = ANY($%d)", argPos)
		args = append(args, pq.Array(filter.StageIDs))
		argPos++
	}
	if len(filter.Statuses) > 0 {
		query += fmt.Sprintf(" AND status = ANY($%d)", argPos)
		args = append(args, pq.Array(filter.Statuses))
		argPos++
	}
	if len(filter.TagIDs) > 0 {
		query += fmt.Sprintf(" AND tags ?| $%d", argPos)
		args = append(args, pq.Array(filter.TagIDs))
		argPos++
	}

	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filter.Limit)
	}

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		var (
			lead        model.Lead
			tags        []byte
			assignedTo  []byte
			people      []byte
			clientPhone sql.NullString
		)
		if err := rows.Scan(&lead.ID, &lead.Title, &lead.Client, &lead.Status,
			&tags, &assignedTo, &people, &clientPhone); err != nil {
			return nil, err
		}
		lead.ClientPhone = clientPhone.String
		if len(tags) > 0 {
			_ = json.Unmarshal(tags, &lead.Tags)
		}
		if len(assignedTo) > 0 {
			_ = json.Unmarshal(assignedTo, &lead.AssignedTo)
		}
		if len(people) > 0 {
			_ = json.Unmarshal(people, &lead.People)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

var _ LeadRepositoryInterface = (*LeadRepository)(nil)
