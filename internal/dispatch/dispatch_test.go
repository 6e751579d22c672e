package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbanflow/campaign-engine/internal/apperrors"
	"github.com/kanbanflow/campaign-engine/internal/dispatch"
	"github.com/kanbanflow/campaign-engine/internal/model"
	"github.com/kanbanflow/campaign-engine/internal/repository"
)

// --- Mocks ---

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.CampaignJob
}

func newMemJobRepo(jobs ...*model.CampaignJob) *memJobRepo {
	r := &memJobRepo{jobs: map[string]*model.CampaignJob{}}
	for _, j := range jobs {
		cp := *j
		cp.UpdatedAt = time.Now()
		r.jobs[j.ID] = &cp
	}
	return r
}

func (r *memJobRepo) Submit(job *model.CampaignJob) (*model.CampaignJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	out := cp
	return &out, true, nil
}

func (r *memJobRepo) GetByID(id string) (*model.CampaignJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NewJobNotFound(id)
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) List(limit int) ([]*model.CampaignJob, error) { return nil, nil }

func (r *memJobRepo) UpdateStatus(id string, status model.JobStatus) (*model.CampaignJob, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidation("unknown job status %q", string(status))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NewJobNotFound(id)
	}
	j.Status = status
	j.UpdatedAt = time.Now()
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) RecordProgress(id string, delta repository.ProgressDelta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return apperrors.NewJobNotFound(id)
	}
	j.SentItems += delta.Sent
	j.FailedItems += delta.Failed
	j.TotalItems += delta.TotalItems
	j.TotalLeads += delta.TotalLeads
	j.UpdatedAt = time.Now()
	return nil
}

func (r *memJobRepo) FailStalled(stallFor time.Duration) (int64, error) { return 0, nil }

type memLeadRepo struct {
	leads []model.Lead
}

func (r *memLeadRepo) Query(filter model.LeadFilter) ([]model.Lead, error) {
	return r.leads, nil
}

type failingLeadRepo struct{}

func (r *failingLeadRepo) Query(filter model.LeadFilter) ([]model.Lead, error) {
	return nil, errors.New("lead store unavailable")
}

// recordingSender captures permit grant times and can fail every nth send.
type recordingSender struct {
	mu        sync.Mutex
	times     []time.Time
	calls     int
	failEvery int
}

func (s *recordingSender) Send(ctx context.Context, phone, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.times = append(s.times, time.Now())
	if s.failEvery > 0 && s.calls%s.failEvery == 0 {
		return errors.New("provider unavailable")
	}
	return nil
}

func (s *recordingSender) grantTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.times))
	copy(out, s.times)
	return out
}

func makeLeads(n int) []model.Lead {
	leads := make([]model.Lead, n)
	for i := range leads {
		leads[i] = model.Lead{
			ID:          fmt.Sprintf("lead-%03d", i),
			Title:       fmt.Sprintf("Lead %d", i),
			Client:      "ACME",
			ClientPhone: fmt.Sprintf("119%08d", i),
		}
	}
	return leads
}

func queuedJob(id string, throttling model.Throttling) *model.CampaignJob {
	return &model.CampaignJob{
		ID:         id,
		TemplateID: "tpl-1",
		TemplateSnapshot: model.MessageTemplate{
			ID:   "tpl-1",
			Kind: model.KindText,
			Text: &model.TextContent{Text: "Oi {nome}"},
		},
		Throttling: throttling,
		Status:     model.StatusQueued,
	}
}

func newRunner(jobs *memJobRepo, leads []model.Lead, sender dispatch.Sender) *dispatch.Runner {
	return &dispatch.Runner{
		Jobs:    jobs,
		Leads:   &memLeadRepo{leads: leads},
		Sender:  sender,
		Workers: 4,
		Log:     zerolog.Nop(),
	}
}

// --- Tests ---

func TestRunCompletesAndConservesCounters(t *testing.T) {
	jobs := newMemJobRepo(queuedJob("job-1", model.Throttling{}))
	sender := &recordingSender{failEvery: 3}
	runner := newRunner(jobs, makeLeads(12), sender)

	require.NoError(t, runner.Run(context.Background(), "job-1"))

	job, err := jobs.GetByID("job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, job.Status)
	assert.Equal(t, 12, job.TotalLeads)
	assert.Equal(t, 12, job.TotalItems)
	assert.Equal(t, 4, job.FailedItems)
	assert.Equal(t, 8, job.SentItems)
	assert.Equal(t, job.TotalItems, job.SentItems+job.FailedItems)
}

func TestRunThrottleSpacingAcrossWorkers(t *testing.T) {
	const minDelay = 100 * time.Millisecond

	jobs := newMemJobRepo(queuedJob("job-1", model.Throttling{MinDelayMs: 100}))
	sender := &recordingSender{}
	runner := newRunner(jobs, makeLeads(8), sender)

	require.NoError(t, runner.Run(context.Background(), "job-1"))

	times := sender.grantTimes()
	require.Len(t, times, 8)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	// Permits are spaced globally; allow a little scheduling jitter on the
	// measurement side.
	tolerance := 20 * time.Millisecond
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.GreaterOrEqual(t, gap, minDelay-tolerance,
			"gap between permits %d and %d was %v", i-1, i, gap)
	}
}

func TestRunSkipsLeadsWithoutDialablePhones(t *testing.T) {
	leads := makeLeads(3)
	leads = append(leads, model.Lead{ID: "lead-nophone", Title: "Sem fone", ClientPhone: "123"})

	jobs := newMemJobRepo(queuedJob("job-1", model.Throttling{}))
	runner := newRunner(jobs, leads, &recordingSender{})

	require.NoError(t, runner.Run(context.Background(), "job-1"))

	job, _ := jobs.GetByID("job-1")
	assert.Equal(t, 3, job.TotalLeads)
	assert.Equal(t, 3, job.TotalItems)
}

func TestRunCancelledByStatusOverride(t *testing.T) {
	jobs := newMemJobRepo(queuedJob("job-1", model.Throttling{MinDelayMs: 50}))
	sender := &recordingSender{}
	runner := newRunner(jobs, makeLeads(40), sender)
	runner.PollInterval = 20 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- runner.Run(context.Background(), "job-1") }()

	time.Sleep(300 * time.Millisecond)
	_, err := jobs.UpdateStatus("job-1", model.StatusFailed)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	job, _ := jobs.GetByID("job-1")
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Less(t, job.SentItems+job.FailedItems, job.TotalItems,
		"cancelled run must leave a partial count")
}

func TestRunFailsWhenRecipientsExceedCap(t *testing.T) {
	jobs := newMemJobRepo(queuedJob("job-1", model.Throttling{}))
	sender := &recordingSender{}
	runner := newRunner(jobs, makeLeads(8), sender)
	runner.MaxItems = 5

	err := runner.Run(context.Background(), "job-1")
	var fatal *apperrors.FatalRunError
	require.True(t, errors.As(err, &fatal))

	job, _ := jobs.GetByID("job-1")
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Equal(t, 0, job.SentItems+job.FailedItems)
	assert.Equal(t, 0, sender.calls)
}

func TestRunFailsOnLeadStoreError(t *testing.T) {
	jobs := newMemJobRepo(queuedJob("job-1", model.Throttling{}))
	runner := &dispatch.Runner{
		Jobs:   jobs,
		Leads:  &failingLeadRepo{},
		Sender: &recordingSender{},
		Log:    zerolog.Nop(),
	}

	err := runner.Run(context.Background(), "job-1")
	var fatal *apperrors.FatalRunError
	require.True(t, errors.As(err, &fatal))

	job, _ := jobs.GetByID("job-1")
	assert.Equal(t, model.StatusFailed, job.Status)
}

func TestRunSkipsTerminalJob(t *testing.T) {
	job := queuedJob("job-1", model.Throttling{})
	job.Status = model.StatusCompleted

	jobs := newMemJobRepo(job)
	sender := &recordingSender{}
	runner := newRunner(jobs, makeLeads(3), sender)

	require.NoError(t, runner.Run(context.Background(), "job-1"))
	assert.Equal(t, 0, sender.calls)

	got, _ := jobs.GetByID("job-1")
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestRunUnknownJob(t *testing.T) {
	runner := newRunner(newMemJobRepo(), nil, &recordingSender{})
	err := runner.Run(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRunRendersPerLead(t *testing.T) {
	leads := []model.Lead{
		{ID: "l1", Title: "Maria", Client: "ACME", ClientPhone: "11911112222"},
		{ID: "l2", Title: "João", Client: "Beta", ClientPhone: "11933334444"},
	}

	var mu sync.Mutex
	got := map[string]string{}
	sender := senderFunc(func(ctx context.Context, phone, text string) error {
		mu.Lock()
		defer mu.Unlock()
		got[phone] = text
		return nil
	})

	jobs := newMemJobRepo(queuedJob("job-1", model.Throttling{}))
	runner := newRunner(jobs, leads, sender)

	require.NoError(t, runner.Run(context.Background(), "job-1"))
	assert.Equal(t, "Oi Maria", got["+5511911112222"])
	assert.Equal(t, "Oi João", got["+5511933334444"])
}

type senderFunc func(ctx context.Context, phone, text string) error

func (f senderFunc) Send(ctx context.Context, phone, text string) error {
	return f(ctx, phone, text)
}
