package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"support360/internal/handlers"
	"support360/internal/observability"
	"support360/internal/services"
	"support360/pkg/genai"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Support360 API server",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Monitoring.Tracing, Version)
	if err != nil {
		logger.Warnf("Tracing disabled: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	authn := newAuthenticator(cfg, st, logger)
	kb := services.NewKnowledgeService(st, logger)
	analytics := services.NewAnalyticsService(st, logger)
	gen := genai.NewClient(&genai.Config{
		BaseURL:    cfg.AI.Gemini.BaseURL,
		APIKey:     cfg.AI.Gemini.APIKey,
		Model:      cfg.AI.Gemini.Model,
		Timeout:    cfg.AI.Gemini.Timeout,
		MaxRetries: cfg.AI.Gemini.MaxRetries,
		RetryDelay: cfg.AI.Gemini.RetryDelay,
	}, logger)
	ai := services.NewAIService(gen, kb, st, cfg.AI, logger)
	if !ai.Configured() {
		logger.Info("No generative API key configured; chat uses the rule-based assistant")
	}

	hub := services.NewWebSocketHub(logger)
	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	go hub.Run(hubCtx)
	st.Subscribe(hub.Publish)

	stats := services.NewStatsWorker(st, cfg.Monitoring.StatsSchedule, logger)
	if err := stats.Start(); err != nil {
		return fmt.Errorf("start stats worker: %w", err)
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.Dependencies{
		Config:    cfg,
		Version:   Version,
		Store:     st,
		Sessions:  authn,
		Verifier:  authn,
		Tickets:   services.NewTicketService(st, logger),
		Board:     services.NewBoardService(st, logger),
		Knowledge: kb,
		Analytics: analytics,
		Export:    services.NewExportService(st, analytics, logger),
		AI:        ai,
		Hub:       hub,
		Stats:     stats,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	cancelHub()
	stats.Stop(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warnf("Tracing shutdown: %v", err)
	}

	logger.Info("Server exited")
	return nil
}
