// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kanbanflow/campaign-engine/internal/apperrors"
	"github.com/kanbanflow/campaign-engine/internal/config"
	"github.com/kanbanflow/campaign-engine/internal/db"
	"github.com/kanbanflow/campaign-engine/internal/dispatch"
	"github.com/kanbanflow/campaign-engine/internal/logging"
	"github.com/kanbanflow/campaign-engine/internal/queue"
	"github.com/kanbanflow/campaign-engine/internal/repository"
	"github.com/kanbanflow/campaign-engine/internal/supervisor"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	dbConn, err := db.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer dbConn.Close()

	q, err := queue.Dial(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to message queue")
	}
	defer q.Close()

	jobs := &repository.JobRepository{DB: dbConn}
	runner := &dispatch.Runner{
		Jobs:    jobs,
		Leads:   &repository.LeadRepository{DB: dbConn},
		Sender:  dispatch.NewSimulatedSender(cfg.SenderFailureRate, time.Now().UnixNano()),
		Workers: cfg.DispatchWorkers,
		Log:     log,
	}

	sup := supervisor.New(jobs, cfg.StallTimeout, log)
	sup.Start()
	defer sup.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Int("workers", cfg.DispatchWorkers).Msg("worker running, waiting for jobs")
	err = q.ConsumeJobs(ctx, func(jobID string) error {
		err := runner.Run(ctx, jobID)
		if apperrors.IsNotFound(err) {
			log.Warn().Str("job_id", jobID).Msg("queued job no longer exists")
			return nil
		}
		return err
	})
	if err != nil {
		log.Fatal().Err(err).Msg("consumer stopped")
	}
}
