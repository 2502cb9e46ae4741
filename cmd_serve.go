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

	"github.com/Cypher-0-shift/JurAI/internal/adapter/natssink"
	"github.com/Cypher-0-shift/JurAI/internal/metrics"
	"github.com/Cypher-0-shift/JurAI/internal/session"
	viewhttp "github.com/Cypher-0-shift/JurAI/internal/transport/http"
	"github.com/Cypher-0-shift/JurAI/internal/transport/ws"
)

var (
	serveFeatureID string
	serveRunID     string
)

// serveCmd runs one session behind the read-only trace view.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a session and expose its trace over HTTP and websocket",
	Long: `Starts a watch session like "jurywatch watch" and serves it:

  GET /health              liveness
  GET /v1/session          current session view
  GET /v1/sessions         registered sessions
  GET /v1/outcomes         archived outcomes
  GET /v1/session/stream   websocket feed of trace updates
  GET /metrics             Prometheus metrics

Updates are also published to NATS when nats.url is set.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFeatureID, "feature-id", "", "Feature id of the run to follow")
	serveCmd.Flags().StringVar(&serveRunID, "run-id", "", "Run id of the run to follow")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	mt := metrics.New()
	hub := ws.NewHub(logger.Named("hub"))
	opts := []session.Option{session.WithListener(hub.Publish)}

	if cfg.NATS.URL != "" {
		sink, err := natssink.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger.Named("nats"))
		if err != nil {
			return err
		}
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn("failed to close NATS sink", zap.Error(err))
			}
		}()
		opts = append(opts, session.WithListener(sink.Publish))
		logger.Info("publishing updates to NATS",
			zap.String("url", cfg.NATS.URL),
			zap.String("prefix", cfg.NATS.SubjectPrefix))
	}

	m := newManager(store, logger.Named("session"), mt, opts...)

	greeting := func(key string) any {
		if key != "" {
			if s, ok := m.Lookup(key); ok {
				return s.View()
			}
			return nil
		}
		if s := m.Latest(); s != nil {
			return s.View()
		}
		return nil
	}
	wsServer := ws.NewServer(cfg.Server, hub, greeting, logger.Named("ws"))
	server := viewhttp.NewViewServer(m, store, wsServer, mt)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
		logger.Info("trace view started", zap.String("addr", addr))
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start trace view: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s, err := m.Start(gctx, session.Route{FeatureID: serveFeatureID, RunID: serveRunID})
		if err != nil {
			return err
		}
		select {
		case <-s.Completed():
			if o := s.Outcome(); o != nil {
				logger.Info("session completed, still serving",
					zap.String("key", o.Key),
					zap.String("reason", string(o.Reason)))
			}
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down trace view")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down trace view gracefully", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	m.Wait()
	return err
}
