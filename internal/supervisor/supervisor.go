// internal/supervisor/supervisor.go
package supervisor

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/kanbanflow/campaign-engine/internal/repository"
)

// Supervisor sweeps running jobs whose progress has stalled and marks them
// failed. The dispatch runner never self-timeouts; this is the operator
// safety net from outside the run.
type Supervisor struct {
	Jobs         repository.JobRepositoryInterface
	StallTimeout time.Duration
	Log          zerolog.Logger

	cron *cron.Cron
}

func New(jobs repository.JobRepositoryInterface, stallTimeout time.Duration, log zerolog.Logger) *Supervisor {
	return &Supervisor{Jobs: jobs, StallTimeout: stallTimeout, Log: log}
}

func (s *Supervisor) Start() {
	c := cron.New()
	if _, err := c.AddFunc("@every 1m", s.Sweep); err != nil {
		s.Log.Error().Err(err).Msg("failed to schedule stall sweep")
		return
	}
	c.Start()
	s.cron = c
	s.Log.Info().Dur("stall_timeout", s.StallTimeout).Msg("stall supervisor started")
}

func (s *Supervisor) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Supervisor) Sweep() {
	n, err := s.Jobs.FailStalled(s.StallTimeout)
	if err != nil {
		s.Log.Error().Err(err).Msg("stall sweep failed")
		return
	}
	if n > 0 {
		s.Log.Warn().Int64("jobs", n).Msg("marked stalled jobs as failed")
	}
}
