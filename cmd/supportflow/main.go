// Command supportflow runs the live support chat service: REST API,
// websocket gateway, fanout publisher, idle-session janitor, and the
// observability endpoints.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/supportflow-dev/supportflow/internal/httpapi"
	"github.com/supportflow-dev/supportflow/internal/janitor"
	"github.com/supportflow-dev/supportflow/internal/wsgateway"
	"github.com/supportflow-dev/supportflow/pkg/chat"
	"github.com/supportflow-dev/supportflow/pkg/config"
	"github.com/supportflow-dev/supportflow/pkg/fanout"
	"github.com/supportflow-dev/supportflow/pkg/generative"
	"github.com/supportflow-dev/supportflow/pkg/observability"
	"github.com/supportflow-dev/supportflow/pkg/rules"
)

var version = "dev"

func main() {
	var configFile string

	root := &cobra.Command{
		Use:     "supportflow",
		Short:   "Live support chat service with automated assistance and admin handover",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}
	root.Flags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "path to YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	log.Info().Str("version", version).Str("store", cfg.Store).Msg("starting supportflow")

	observability.InitMetrics()
	checker := observability.NewHealthChecker()

	// Persistence
	var store chat.Store
	var redisClient *redis.Client
	switch cfg.Store {
	case "redis":
		rs, err := chat.NewRedisStore(chat.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("redis store: %w", err)
		}
		store = rs
		checker.RegisterCheck(&observability.HealthCheck{
			Name:      "redis",
			CheckFunc: rs.Ping,
			Critical:  true,
		})
	default:
		store = chat.NewMemoryStore()
	}
	defer func() { _ = store.Close() }()

	// Fanout
	var publisher fanout.Publisher = fanout.Nop{}
	if cfg.Fanout.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		publisher = fanout.NewRedisPublisherFromClient(redisClient, cfg.Fanout.ChannelPrefix)
	}
	defer func() { _ = publisher.Close() }()

	// Core service
	capability := generative.New(generative.Config{
		Enabled:           cfg.AI.Enabled,
		APIKey:            cfg.AI.APIKey,
		BaseURL:           cfg.AI.BaseURL,
		Model:             cfg.AI.Model,
		Timeout:           cfg.AI.Timeout,
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
	}, log)
	responder := chat.NewResponder(capability, rules.NewEngine())
	svc := chat.NewService(store, responder, publisher, log)
	log.Info().Bool("ai_enabled", svc.AIEnabled()).Msg("responder ready")

	// HTTP surface
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	httpapi.NewHandler(svc, log).RegisterRoutes(e)

	if redisClient != nil {
		wsgateway.New(redisClient, cfg.Fanout.ChannelPrefix, log).RegisterRoutes(e)
	}

	// Janitor
	if cfg.Janitor.Enabled {
		j := janitor.New(svc, cfg.Janitor.Schedule, cfg.Janitor.IdleAfter, log)
		if err := j.Start(); err != nil {
			return fmt.Errorf("janitor: %w", err)
		}
		defer j.Stop()
	}

	// Serve until signalled
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obsServer := observability.NewServer(cfg.MetricsPort, checker)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("port", cfg.HTTPPort).Msg("http server listening")
		if err := e.Start(fmt.Sprintf(":%d", cfg.HTTPPort)); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Int("port", cfg.MetricsPort).Msg("metrics server listening")
		if err := obsServer.Start(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("supportflow stopped")
	return nil
}
