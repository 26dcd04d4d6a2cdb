package main

import (
	"context"
	"os/signal"
	"syscall"

	"conference/internal/bootstrap"
	"conference/internal/config"
	"conference/internal/logging"
	"conference/internal/notify"
)

// Worker consumes queued notifications and mails them.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env, cfg.LogLevel).With().Str("process", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open backends")
	}
	defer backends.Close()

	if backends.InProcess() {
		log.Fatal().Msg("QUEUE_BACKEND=memory is dispatched by the api process; configure redis or rabbitmq for the worker")
	}

	dispatcher := notify.NewDispatcher(backends.Queue, bootstrap.Mailer(cfg, log), log)
	log.Info().Str("queue", cfg.QueueBackend).Msg("worker started, waiting for notifications")
	if err := dispatcher.Run(ctx); err != nil {
		log.Error().Err(err).Msg("dispatcher failed")
		return
	}
	log.Info().Msg("worker stopped")
}
