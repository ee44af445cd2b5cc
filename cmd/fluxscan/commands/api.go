package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/fluxscan/internal/api"
	"github.com/wonny/fluxscan/internal/api/handlers"
	"github.com/wonny/fluxscan/internal/api/stream"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the REST API server",
	Long: `Start the REST API server with the live progress stream.

Without DATABASE_URL the server keeps scanners, watchlists and history in
memory; they are lost on exit.

Example:
  go run ./cmd/fluxscan api
  go run ./cmd/fluxscan api --port 9090`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default $PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	cfg, log := a.cfg, a.log
	if apiPort != "" {
		cfg.Port = apiPort
	}
	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	hub := stream.NewHub(cfg.CORSOrigins, log)
	defer hub.Close()
	runs := a.runs(hub)

	health := map[string]api.HealthFunc{}
	if a.db != nil {
		health["database"] = a.db.Ping
	}
	if a.redis.Enabled() {
		health["redis"] = pingRedis(a.redis)
	}

	router := api.NewRouter(api.Handlers{
		Scanners:   handlers.NewScannerHandler(a.scanners, log),
		Watchlists: handlers.NewWatchlistHandler(a.stores.watchlists, log),
		Scans:      handlers.NewScanHandler(runs, a.stores.results, a.stores.history, log),
		Schedules:  handlers.NewScheduleHandler(a.stores.schedules, a.location, log),
		Stream:     hub,
		Health:     health,
	}, api.RouterOptions{
		CORSOrigins:    cfg.CORSOrigins,
		MetricsEnabled: cfg.MetricsEnabled,
	}, log)

	server := api.New(cfg, log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\nServer running on http://localhost:%s\n", cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := runs.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Scans still running at shutdown")
	}

	log.Info("Server stopped")
	return nil
}
