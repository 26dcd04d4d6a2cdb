package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"conference/internal/account"
	"conference/internal/auth"
	"conference/internal/bootstrap"
	"conference/internal/cloudinary"
	"conference/internal/conference"
	"conference/internal/config"
	"conference/internal/content"
	"conference/internal/fees"
	"conference/internal/handler"
	"conference/internal/httpmiddleware"
	"conference/internal/logging"
	"conference/internal/notify"
	"conference/internal/papers"
	"conference/internal/payment"
	"conference/internal/registration"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env, cfg.LogLevel)

	if config.IsProduction(cfg.Env) {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()

	loc := cfg.Location()
	clock := func() time.Time { return time.Now().In(loc) }

	gateway, err := newGateway(cfg, backends, log)
	if err != nil {
		return err
	}

	publisher := notify.NewPublisher(backends.Queue, log)
	if backends.InProcess() {
		dispatcher := notify.NewDispatcher(backends.Queue, bootstrap.Mailer(cfg, log), log)
		go func() {
			if err := dispatcher.Run(ctx); err != nil {
				log.Error().Err(err).Msg("notification dispatcher stopped")
			}
		}()
	}

	var uploader papers.Uploader
	cdn := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	if cdn.Configured() {
		uploader = cdn
		log.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("cloudinary configured")
	} else {
		log.Warn().Msg("cloudinary not configured, manuscript uploads disabled")
	}

	tokens := auth.Issuer{Name: cfg.JWTIssuer, Key: cfg.JWTSigningKey, AccessTTL: cfg.AccessTTL}
	if cfg.AdminPasswordHash == "" {
		log.Warn().Msg("ADMIN_PASSWORD_HASH not set, admin sign-in disabled")
	}

	confs := conference.NewService(conference.NewRepository(backends.Docs), clock)
	feeSvc := fees.NewService(fees.NewRepository(backends.Docs), clock)
	regs := registration.NewService(registration.NewRepository(backends.Docs), confs, feeSvc, gateway, publisher, log,
		registration.Options{BaseURL: cfg.PublicBaseURL, Now: clock})
	paperSvc := papers.NewService(papers.NewRepository(backends.Docs), confs, regs, uploader, publisher, log, clock)

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if strings.EqualFold(cfg.RateLimitBackend, "redis") {
		limiter = httpmiddleware.NewRedisWindow(backends.Redis.Client, cfg.RateLimitPerMin)
	}

	router := handler.NewRouter(handler.Deps{
		Log:           log,
		Tokens:        tokens,
		Accounts:      account.NewService(backends.Docs, tokens, account.Admin{Email: cfg.AdminEmail, PasswordHash: cfg.AdminPasswordHash}, clock),
		Conferences:   confs,
		Fees:          feeSvc,
		Registrations: regs,
		Papers:        paperSvc,
		Content:       content.NewService(backends.Docs, clock),
		Gateway:       gateway,
		Limiter:       limiter,
		Health:        backends.Health,
		CORSOrigins:   cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Str("queue", cfg.QueueBackend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}

func newGateway(cfg config.App, backends *bootstrap.Backends, log zerolog.Logger) (payment.Gateway, error) {
	fx := payment.FXConfig{
		BaseURL:      cfg.FXAPIURL,
		APIKey:       cfg.FXAPIKey,
		TTL:          cfg.FXCacheTTL,
		FallbackRate: cfg.FXFallbackRate,
	}
	if backends.Redis != nil {
		fx.Shared = payment.NewRedisRateCache(backends.Redis.Client, "conference:fx:")
	}
	return payment.New(payment.Config{
		Provider: cfg.PaymentProvider,
		Signed: payment.SignedConfig{
			BaseURL:        cfg.SignedGatewayURL,
			MerchantID:     cfg.SignedMerchantID,
			Secret:         cfg.SignedSecret,
			FallbackToDemo: cfg.PaymentAuthFallbackDemo,
		},
		Bearer: payment.BearerConfig{
			BaseURL:        cfg.BearerGatewayURL,
			SecretKey:      cfg.BearerSecretKey,
			WebhookSecret:  cfg.BearerWebhookSecret,
			Currency:       cfg.BearerCurrency,
			FallbackToDemo: cfg.PaymentAuthFallbackDemo,
		},
	}, payment.NewFXRates(fx, log), log)
}
