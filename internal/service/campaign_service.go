// internal/service/campaign_service.go
package service

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kanbanflow/campaign-engine/internal/apperrors"
	"github.com/kanbanflow/campaign-engine/internal/flow"
	"github.com/kanbanflow/campaign-engine/internal/model"
	"github.com/kanbanflow/campaign-engine/internal/queue"
	"github.com/kanbanflow/campaign-engine/internal/render"
	"github.com/kanbanflow/campaign-engine/internal/repository"
)

var validate = validator.New()

type CampaignService struct {
	Jobs      repository.JobRepositoryInterface
	Templates repository.TemplateRepositoryInterface
	Queue     queue.Publisher
	Log       zerolog.Logger
}

// SubmitRequest is a campaign submission. The idempotency key is optional;
// when present, a replay returns the job created the first time.
type SubmitRequest struct {
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	CreatedBy      string           `json:"created_by,omitempty"`
	TemplateID     string           `json:"template_id" validate:"required"`
	FilterPayload  model.LeadFilter `json:"filter_payload"`
	Throttling     model.Throttling `json:"throttling" validate:"omitempty"`
}

// SubmitCampaign freezes the template into a snapshot, creates the job and
// queues it for dispatch. The bool reports whether a new job was created;
// an idempotent replay returns the existing one untouched.
func (s *CampaignService) SubmitCampaign(req SubmitRequest) (*model.CampaignJob, bool, error) {
	if err := validate.Struct(req); err != nil {
		return nil, false, apperrors.NewValidation("invalid campaign request: %v", err)
	}

	tmpl, err := s.Templates.GetByID(req.TemplateID)
	if err != nil {
		return nil, false, err
	}

	job := &model.CampaignJob{
		ID:               uuid.NewString(),
		IdempotencyKey:   req.IdempotencyKey,
		CreatedBy:        req.CreatedBy,
		TemplateID:       tmpl.ID,
		TemplateSnapshot: *tmpl,
		FilterPayload:    req.FilterPayload,
		Throttling:       req.Throttling,
		Status:           model.StatusQueued,
	}

	stored, created, err := s.Jobs.Submit(job)
	if err != nil {
		return nil, false, err
	}
	if !created {
		s.Log.Info().Str("job_id", stored.ID).Str("idempotency_key", req.IdempotencyKey).
			Msg("idempotent replay, returning existing job")
		return stored, false, nil
	}

	if err := s.Queue.PublishJob(stored.ID); err != nil {
		if _, serr := s.Jobs.UpdateStatus(stored.ID, model.StatusFailed); serr != nil {
			s.Log.Error().Str("job_id", stored.ID).Err(serr).Msg("failed to mark unqueued job failed")
		}
		return nil, false, apperrors.NewFatalRun("queueing job", err)
	}

	s.Log.Info().Str("job_id", stored.ID).Str("template_id", tmpl.ID).Msg("campaign job queued")
	return stored, true, nil
}

func (s *CampaignService) GetJobStatus(id string) (*model.CampaignJob, error) {
	return s.Jobs.GetByID(id)
}

func (s *CampaignService) ListJobs(limit int) ([]*model.CampaignJob, error) {
	return s.Jobs.List(limit)
}

// OverrideJobStatus is the administrative correction: it validates the
// requested value against the known states and rejects anything else
// without touching the record.
func (s *CampaignService) OverrideJobStatus(id, status string) (*model.CampaignJob, error) {
	st := model.JobStatus(status)
	if !st.Valid() {
		return nil, apperrors.NewValidation("unknown job status %q", status)
	}
	return s.Jobs.UpdateStatus(id, st)
}

// PreviewTemplate renders the template against a sample lead with no side
// effects.
func (s *CampaignService) PreviewTemplate(templateID string, lead model.Lead, stageName, tagsText string) (string, error) {
	if templateID == "" {
		return "", apperrors.NewValidation("template id is required")
	}
	tmpl, err := s.Templates.GetByID(templateID)
	if err != nil {
		return "", err
	}
	if tmpl.Kind == model.KindButtons {
		if tmpl.Buttons == nil || flow.StartStep(tmpl.Buttons.Steps, tmpl.Buttons.StartStepID) == nil {
			return "", apperrors.NewValidation("template %q has no resolvable start step", templateID)
		}
	}
	return render.Template(*tmpl, render.Context{
		Lead:      lead,
		StageName: stageName,
		TagsText:  tagsText,
	}), nil
}

// DescribeFlow returns the preview tree of a buttons template for authoring
// validation.
func (s *CampaignService) DescribeFlow(templateID string) (*flow.Node, error) {
	tmpl, err := s.Templates.GetByID(templateID)
	if err != nil {
		return nil, err
	}
	if tmpl.Kind != model.KindButtons || tmpl.Buttons == nil {
		return nil, apperrors.NewValidation("template %q is not a buttons template", templateID)
	}
	root := flow.Describe(tmpl.Buttons.Steps, tmpl.Buttons.StartStepID)
	if root == nil {
		return nil, apperrors.NewValidation("template %q has no resolvable start step", templateID)
	}
	return root, nil
}

func (s *CampaignService) ListTemplates() ([]model.MessageTemplate, error) {
	return s.Templates.List()
}

// CreateTemplate stores a template after tagged-union validation.
func (s *CampaignService) CreateTemplate(t *model.MessageTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return s.Templates.Create(t)
}
