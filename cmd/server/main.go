package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"anpr-gate-service/internal/auth"
	"anpr-gate-service/internal/config"
	"anpr-gate-service/internal/db"
	apphttp "anpr-gate-service/internal/http"
	"anpr-gate-service/internal/notifier"
	"anpr-gate-service/internal/repository"
	"anpr-gate-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	gdb, err := db.Open(cfg.Database.DSN())
	if err != nil {
		return err
	}

	repo := repository.NewDetectionRepository(gdb, cfg.Storage.ImagesDir)
	ingest := service.NewIngestService(repo, log)
	query := service.NewQueryService(repo, log)
	verifier := auth.NewDigestVerifier(cfg.Camera.Username, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	handler := apphttp.NewHandler(ingest, query, cfg, log)
	handler.Register(r, verifier.Middleware(), auth.JWTMiddleware(cfg.API.JWTSecret))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if cfg.Notifier.TelegramToken != "" {
		sender, err := notifier.NewTelegramSender(cfg.Notifier.TelegramToken, cfg.Notifier.SendTimeout, log)
		if err != nil {
			return err
		}
		dispatcher := notifier.NewDispatcher(repo, sender, notifier.Config{
			Recipients:          cfg.Notifier.Recipients,
			PollInterval:        cfg.Notifier.PollInterval,
			CycleTimeout:        cfg.Notifier.CycleTimeout,
			ConfidenceThreshold: cfg.Notifier.ConfidenceThreshold,
		}, log)

		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Run(ctx)
		}()
	} else {
		log.Warn().Msg("telegram token not configured, notification dispatcher disabled")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	wg.Wait()
	return nil
}
