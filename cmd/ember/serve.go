package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/embercore/ember"
	"github.com/embercore/ember/internal/config"
	"github.com/embercore/ember/internal/metrics"
	"github.com/embercore/ember/queue"
	"github.com/embercore/ember/room"
	"github.com/embercore/ember/sandbox"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the application server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func serve(cfg *config.Config) error {
	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	q, err := buildQueue(cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	m := metrics.New()
	registry := prometheus.NewRegistry()
	if err := m.Register(registry); err != nil {
		return err
	}

	server, err := ember.NewServer(&ember.Config{
		WorkerID:     cfg.Server.WorkerID,
		PingInterval: cfg.Websocket.PingInterval,
		PingTimeout:  cfg.Websocket.PingTimeout,
		MaxPayload:   cfg.Websocket.MaxPayload,
		Logger:       logger,
		Metrics:      m,
	}, store, q)
	if err != nil {
		return err
	}
	defer server.Close()

	app, err := sandbox.NewApp()
	if err != nil {
		return err
	}
	sb := sandbox.New(app, cfg.Sandbox.Enabled, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/socket.io/", server)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	r.Group(func(r chi.Router) {
		r.Use(sb.Middleware)
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			fmt.Fprintln(w, "ember")
		})
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.Addr()),
			zap.Int("worker", cfg.Server.WorkerID),
			zap.String("room_driver", cfg.Websocket.Driver),
			zap.String("queue_driver", cfg.Queue.Driver),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		logger.Info("shutting down", zap.String("signal", s.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func buildLogger(cfg config.Log) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func buildStore(ctx context.Context, cfg *config.Config) (room.Store, error) {
	var store room.Store
	switch cfg.Websocket.Driver {
	case "redis":
		store = room.NewRedisStore(cfg.Websocket.Redis)
	default:
		store = room.NewTableStore(cfg.Websocket.Table)
	}
	if err := store.Prepare(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func buildQueue(cfg *config.Config) (queue.Queue, error) {
	switch cfg.Queue.Driver {
	case "nats":
		return queue.NewNATS(cfg.Queue.NATS.URL, cfg.Queue.NATS.Subject)
	default:
		return queue.NewLocal(cfg.Queue.Executors, cfg.Queue.Buffer), nil
	}
}
