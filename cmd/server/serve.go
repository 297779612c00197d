package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/persona-predict/internal/api"
	"github.com/ashureev/persona-predict/internal/assistant"
	"github.com/ashureev/persona-predict/internal/config"
	"github.com/ashureev/persona-predict/internal/csrf"
	"github.com/ashureev/persona-predict/internal/language"
	"github.com/ashureev/persona-predict/internal/middleware"
	"github.com/ashureev/persona-predict/internal/persona"
	"github.com/ashureev/persona-predict/internal/session"
	"github.com/ashureev/persona-predict/internal/store"
	"github.com/ashureev/persona-predict/internal/vocab"
	"github.com/ashureev/persona-predict/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel)

	for _, limit := range []string{cfg.RateLimits.App, cfg.RateLimits.Predict} {
		if _, _, err := middleware.ParseRate(limit); err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	audit, err := store.NewSQLite(cfg.LogDB)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := audit.Close(); closeErr != nil {
			slog.Error("Failed to close audit store", "error", closeErr)
		}
	}()

	if err := audit.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.LogDB)

	vocabStore, err := vocab.Load(cfg.I18NFile)
	if err != nil {
		return fmt.Errorf("load vocabulary: %w", err)
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		return err
	}

	orchestrator := assistant.NewOrchestrator(
		assistant.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL),
		audit,
		assistant.Options{
			AssistantID:  cfg.OpenAI.AssistantID,
			MaxPolls:     cfg.OpenAI.MaxPolls,
			PollInterval: cfg.OpenAI.PollInterval,
		},
	)

	handler := api.NewHandler(api.Deps{
		Audit:           audit,
		Predictor:       orchestrator,
		Validator:       persona.NewValidator(vocabStore.Industries(), vocabStore.BusinessProblems()),
		Guard:           csrf.NewGuard(),
		Vocab:           vocabStore,
		Resolver:        language.NewResolver(language.DefaultCode, cfg.LanguageRoutes),
		Renderer:        renderer,
		DownloadURL:     cfg.DownloadURL,
		HeroBackgrounds: cfg.HeroBackgrounds,
	})

	sessions := session.NewStore()
	router, stopLimiters, err := api.NewRouter(handler, api.RouterOptions{
		Sessions:      sessions,
		Codec:         session.NewCodec(cfg.SecretKey),
		SecureCookies: !cfg.IsDevelopment(),
		RateLimits:    cfg.RateLimits,
		BasicAuth:     cfg.BasicAuth,
	})
	if err != nil {
		return err
	}
	defer stopLimiters()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.StartSweeper(ctx, sessions, time.Minute, cfg.SessionIdleTTL)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal.
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}
