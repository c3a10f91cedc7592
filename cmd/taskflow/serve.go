package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Joseda-hg/taskflow/internal/agent"
	"github.com/Joseda-hg/taskflow/internal/llm"
	"github.com/Joseda-hg/taskflow/internal/transcribe"
	"github.com/Joseda-hg/taskflow/internal/web"
)

const shutdownTimeout = 10 * time.Second

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and WebSocket chat",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "web server port")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	assistant, err := newAgent(ctx, env)
	if err != nil {
		return err
	}

	port := env.cfg.Web.Port
	if portFlag != 0 {
		port = portFlag
	}
	handler := web.NewServer(env.store, env.analyzer(), assistant, env.cfg.OwnerID, env.logger).Handler()
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		env.logger.Info("web server running", zap.String("addr", "http://localhost"+srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		env.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newAgent resolves the model backend once and builds the orchestrator.
func newAgent(ctx context.Context, a *app) (*agent.Agent, error) {
	backend, err := llm.New(ctx, a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.logger.Info("llm backend", zap.String("backend", backend.Name()))

	return agent.New(a.store, llm.WithLogging(backend, a.logger), a.logger, agent.Options{
		HistoryLimit:     a.cfg.Agent.HistoryLimit,
		ActiveTaskLimit:  a.cfg.Agent.ActiveTaskLimit,
		DefaultStartHour: a.cfg.Agent.DefaultStartHour,
		Location:         a.loc,
		Transcriber:      transcribe.New(a.cfg.Transcribe),
	}), nil
}
