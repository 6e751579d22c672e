// cmd/server/main.go
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kanbanflow/campaign-engine/internal/config"
	"github.com/kanbanflow/campaign-engine/internal/controller"
	"github.com/kanbanflow/campaign-engine/internal/db"
	"github.com/kanbanflow/campaign-engine/internal/logging"
	"github.com/kanbanflow/campaign-engine/internal/queue"
	"github.com/kanbanflow/campaign-engine/internal/repository"
	"github.com/kanbanflow/campaign-engine/internal/service"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	dbConn, err := db.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer dbConn.Close()
	log.Info().Str("db", cfg.DBName).Msg("connected to database")

	q, err := queue.Dial(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to message queue")
	}
	defer q.Close()

	campaignService := &service.CampaignService{
		Jobs:      &repository.JobRepository{DB: dbConn},
		Templates: &repository.TemplateRepository{DB: dbConn},
		Queue:     q,
		Log:       log,
	}
	campaignController := &controller.CampaignController{
		Service: campaignService,
		Log:     log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	campaignController.Routes(r)

	log.Info().Str("addr", cfg.HTTPAddr).Msg("server running")
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
