package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"state-connector/handlers"
	"state-connector/logger"
	"state-connector/routers"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the trigger endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := serve(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
}

// serve runs the HTTP server until a signal arrives or, with
// exit_on_completion, until the first run finishes. It returns that run's
// exit code.
func serve(ctx context.Context, cfgPath string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfgPath)
	if err != nil {
		return 0, err
	}
	defer a.close()

	logger.Logger.Info("Starting State Connector...", zap.Strings("chains", a.conn.Chains()))

	// Initialize HTTP handlers
	h := handlers.NewHandler(a.conn)

	// Setup router
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h)

	// HTTP Server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Logger.Info("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", a.cfg.Server.Port))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var done chan int
	if a.cfg.Server.ExitOnCompletion {
		done = make(chan int, 1)
		go func() {
			report := <-a.conn.Reports()
			done <- report.ExitCode()
		}()
	}

	code := 0
	select {
	case <-sigCh:
		logger.Logger.Info("Shutdown signal received, exiting...")
	case code = <-done:
		logger.Logger.Info("Run completed, exiting...", zap.Int("exit_code", code))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
	}
	return code, nil
}
