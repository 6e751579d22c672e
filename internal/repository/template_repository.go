package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/kanbanflow/campaign-engine/internal/apperrors"
	"github.com/kanbanflow/campaign-engine/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(id string) (*model.MessageTemplate, error)
	Create(t *model.MessageTemplate) error
	List() ([]model.MessageTemplate, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) GetByID(id string) (*model.MessageTemplate, error) {
	var (
		t       model.MessageTemplate
		name    string
		kind    string
		content []byte
	)
	err := r.DB.QueryRow(
		`SELECT id, name, kind, content FROM message_templates WHERE id = $1`, id,
	).Scan(&t.ID, &name, &kind, &content)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewTemplateNotFound(id)
		}
		return nil, err
	}
	return decodeTemplate(t.ID, name, kind, content)
}

// Create validates the tagged union before the row is written; malformed
// templates never reach the store.
func (r *TemplateRepository) Create(t *model.MessageTemplate) error {
	if t.Name == "" {
		return apperrors.NewValidation("template name is required")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	content, err := contentJSON(t)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO message_templates (id, name, kind, content, created_at)
        VALUES ($1, $2, $3, $4::jsonb, NOW())
    `
	_, err = r.DB.Exec(query, t.ID, t.Name, t.Kind, content)
	return err
}

func (r *TemplateRepository) List() ([]model.MessageTemplate, error) {
	rows, err := r.DB.Query(`SELECT id, name, kind, content FROM message_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []model.MessageTemplate{}
	for rows.Next() {
		var (
			id      string
			name    string
			kind    string
			content []byte
		)
		if err := rows.Scan(&id, &name, &kind, &content); err != nil {
			return nil, err
		}
		t, err := decodeTemplate(id, name, kind, content)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// decodeTemplate rebuilds the tagged union from the kind column and the
// jsonb content payload, reusing the template's own JSON decoding.
func decodeTemplate(id, name, kind string, content []byte) (*model.MessageTemplate, error) {
	envelope := struct {
		ID      string          `json:"id"`
		Name    string          `json:"name"`
		Kind    string          `json:"kind"`
		Content json.RawMessage `json:"content,omitempty"`
	}{ID: id, Name: name, Kind: kind, Content: content}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	var t model.MessageTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func contentJSON(t *model.MessageTemplate) ([]byte, error) {
	switch t.Kind {
	case model.KindText:
		return json.Marshal(t.Text)
	case model.KindImage, model.KindVideo:
		return json.Marshal(t.Media)
	case model.KindButtons:
		return json.Marshal(t.Buttons)
	}
	return []byte(`{}`), nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
