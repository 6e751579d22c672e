// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kanbanflow/campaign-engine/internal/apperrors"
	"github.com/kanbanflow/campaign-engine/internal/model"
	"github.com/kanbanflow/campaign-engine/internal/service"
)

type CampaignController struct {
	Service *service.CampaignService
	Log     zerolog.Logger
}

func (c *CampaignController) Routes(r chi.Router) {
	r.Post("/campaigns", c.SubmitCampaign)
	r.Get("/campaigns", c.ListJobs)
	r.Get("/campaigns/{id}", c.GetJob)
	r.Patch("/campaigns/{id}/status", c.OverrideStatus)
	r.Post("/templates", c.CreateTemplate)
	r.Get("/templates", c.ListTemplates)
	r.Post("/templates/{id}/preview", c.PreviewTemplate)
	r.Get("/templates/{id}/flow", c.DescribeFlow)
}

func (c *CampaignController) SubmitCampaign(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewValidation("invalid request body: %v", err))
		return
	}

	job, created, err := c.Service.SubmitCampaign(req)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, job)
}

func (c *CampaignController) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := c.Service.ListJobs(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (c *CampaignController) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := c.Service.GetJobStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (c *CampaignController) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewValidation("invalid request body: %v", err))
		return
	}

	job, err := c.Service.OverrideJobStatus(chi.URLParam(r, "id"), body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (c *CampaignController) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl model.MessageTemplate
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		writeError(w, apperrors.NewValidation("invalid request body: %v", err))
		return
	}
	if err := c.Service.CreateTemplate(&tmpl); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

func (c *CampaignController) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := c.Service.ListTemplates()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (c *CampaignController) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lead      model.Lead `json:"lead"`
		StageName string     `json:"stage_name"`
		TagsText  string     `json:"tags_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewValidation("invalid request body: %v", err))
		return
	}

	rendered, err := c.Service.PreviewTemplate(chi.URLParam(r, "id"), body.Lead, body.StageName, body.TagsText)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rendered_message": rendered,
	})
}

func (c *CampaignController) DescribeFlow(w http.ResponseWriter, r *http.Request) {
	root, err := c.Service.DescribeFlow(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsValidation(err):
		status = http.StatusBadRequest
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
