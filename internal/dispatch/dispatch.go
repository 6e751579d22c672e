package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kanbanflow/campaign-engine/internal/apperrors"
	"github.com/kanbanflow/campaign-engine/internal/model"
	"github.com/kanbanflow/campaign-engine/internal/phone"
	"github.com/kanbanflow/campaign-engine/internal/render"
	"github.com/kanbanflow/campaign-engine/internal/repository"
)

// DefaultMaxItems caps one run; a job resolving to more recipients fails
// instead of being truncated.
const DefaultMaxItems = 5000

const defaultWorkers = 4

// Recipient is one outbound payload of a run. It lives only for the run and
// is discarded afterwards; the job row is the only shared mutable state.
type Recipient struct {
	LeadID       string
	Phone        string
	RenderedText string
}

// Runner executes one dispatch run per job: resolve leads, render, then
// drive a throttled worker pool feeding progress back into the job row.
type Runner struct {
	Jobs    repository.JobRepositoryInterface
	Leads   repository.LeadRepositoryInterface
	Sender  Sender
	Workers int
	// MaxItems defaults to DefaultMaxItems when zero.
	MaxItems int
	// PollInterval controls how often the run checks for an external
	// status override (cancellation).
	PollInterval time.Duration
	Log          zerolog.Logger
}

// Run drives the job to a terminal state. Queue redelivery of an already
// terminal job is a no-op.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.Jobs.GetByID(jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		r.Log.Info().Str("job_id", job.ID).Str("status", string(job.Status)).
			Msg("skipping job already in terminal state")
		return nil
	}

	if _, err := r.Jobs.UpdateStatus(job.ID, model.StatusRunning); err != nil {
		return err
	}

	leads, err := r.Leads.Query(job.FilterPayload)
	if err != nil {
		return r.fail(job.ID, "lead query", err)
	}

	recipients, leadCount := buildRecipients(job, leads)
	maxItems := r.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if len(recipients) > maxItems {
		return r.fail(job.ID, "recipient resolution",
			apperrors.NewValidation("%d recipients exceed the per-run limit of %d", len(recipients), maxItems))
	}
	if err := r.Jobs.RecordProgress(job.ID, repository.ProgressDelta{
		TotalItems: len(recipients),
		TotalLeads: leadCount,
	}); err != nil {
		return r.fail(job.ID, "recording totals", err)
	}

	r.Log.Info().Str("job_id", job.ID).
		Int("leads", leadCount).
		Int("items", len(recipients)).
		Dur("min_delay", job.Throttling.EffectiveMinDelay()).
		Msg("dispatch run starting")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.watchStatus(runCtx, cancel, job.ID)

	r.dispatch(runCtx, job, recipients)

	if runCtx.Err() != nil {
		// Cancelled externally; the override already set the terminal
		// status, so the partial counters stand as they are.
		r.Log.Warn().Str("job_id", job.ID).Msg("dispatch run cancelled")
		return nil
	}

	if _, err := r.Jobs.UpdateStatus(job.ID, model.StatusCompleted); err != nil {
		return err
	}
	r.Log.Info().Str("job_id", job.ID).Msg("dispatch run completed")
	return nil
}

// dispatch pulls recipients through a worker pool. The limiter is the one
// shared throttle budget: permits are spaced by the effective minimum delay
// globally, not per worker.
func (r *Runner) dispatch(ctx context.Context, job *model.CampaignJob, recipients []Recipient) {
	limiter := rate.NewLimiter(rate.Every(job.Throttling.EffectiveMinDelay()), 1)

	queue := make(chan Recipient)
	go func() {
		defer close(queue)
		for _, rec := range recipients {
			select {
			case queue <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	workers := r.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range queue {
				if err := limiter.Wait(ctx); err != nil {
					return // cancelled: drain without sending
				}
				if err := r.Sender.Send(ctx, rec.Phone, rec.RenderedText); err != nil {
					sendErr := &apperrors.TransientSendError{Phone: rec.Phone, Err: err}
					r.Log.Warn().Str("job_id", job.ID).Str("lead_id", rec.LeadID).
						Err(sendErr).Msg("send failed")
					if err := r.Jobs.RecordProgress(job.ID, repository.ProgressDelta{Failed: 1}); err != nil {
						r.Log.Error().Str("job_id", job.ID).Err(err).Msg("failed to record progress")
					}
					continue
				}
				if err := r.Jobs.RecordProgress(job.ID, repository.ProgressDelta{Sent: 1}); err != nil {
					r.Log.Error().Str("job_id", job.ID).Err(err).Msg("failed to record progress")
				}
			}
		}()
	}
	wg.Wait()
}

// watchStatus cancels the run when an operator overrides the job into a
// terminal state mid-flight. Already-issued sends are not rolled back; no
// new permits are granted after cancellation.
func (r *Runner) watchStatus(ctx context.Context, cancel context.CancelFunc, jobID string) {
	interval := r.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := r.Jobs.GetByID(jobID)
			if err != nil {
				continue
			}
			if job.Status.Terminal() {
				cancel()
				return
			}
		}
	}
}

func (r *Runner) fail(jobID, stage string, cause error) error {
	r.Log.Error().Str("job_id", jobID).Str("stage", stage).Err(cause).Msg("dispatch run failed")
	if _, err := r.Jobs.UpdateStatus(jobID, model.StatusFailed); err != nil {
		r.Log.Error().Str("job_id", jobID).Err(err).Msg("failed to mark job failed")
	}
	return apperrors.NewFatalRun(stage, cause)
}

// buildRecipients expands leads into deduplicated recipients, rendering the
// snapshot once per lead. Leads with no dialable phone are skipped and do
// not count toward total_leads.
func buildRecipients(job *model.CampaignJob, leads []model.Lead) ([]Recipient, int) {
	var out []Recipient
	leadCount := 0
	for _, lead := range leads {
		phones := phone.ExtractUniquePhones(lead)
		if len(phones) == 0 {
			continue
		}
		leadCount++
		text := render.Template(job.TemplateSnapshot, render.Context{
			Lead:     lead,
			TagsText: strings.Join(lead.Tags, ", "),
		})
		for _, p := range phones {
			out = append(out, Recipient{LeadID: lead.ID, Phone: p, RenderedText: text})
		}
	}
	return out, leadCount
}
