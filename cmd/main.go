package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"go-realtime-events/internal/application/facade"
	"go-realtime-events/internal/config"
	"go-realtime-events/internal/infrastructure/auth"
	"go-realtime-events/internal/infrastructure/broker"
	"go-realtime-events/internal/infrastructure/fanout"
	"go-realtime-events/internal/infrastructure/hub"
	"go-realtime-events/internal/infrastructure/logger"
	"go-realtime-events/internal/infrastructure/server"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "path to a config file (yaml, json or toml)")
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.NewLogrusLogger(logger.NewDefaultConfig()).Fatalf("failed to load config: %v", err)
	}

	log := logger.NewLogrusLogger(newLoggerConfig(cfg))
	log = log.WithField("instance", cfg.Instance.ID)

	ctx := context.Background()
	sctx := WithSignal(ctx)

	b, err := newBroker(ctx, cfg, log)
	if err != nil {
		log.Fatalf("failed to create %s broker: %v", cfg.Broker.Driver, err)
	}

	registry := hub.NewRegistry(log)
	notifier := fanout.New(b, registry, log,
		fanout.WithInstanceID(cfg.Instance.ID),
		fanout.WithWriteTimeout(cfg.Stream.WriteTimeout),
		fanout.WithPublishTimeout(cfg.Broker.PublishTimeout),
	)

	// Start the notifier first so streams are accepted as soon as the server listens
	if err := notifier.Start(ctx); err != nil {
		log.Errorf("failed to start notifier: %v", err)
		return
	}

	authenticator := auth.NewJWTAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TenantHeader)
	notifications := facade.NewNotificationApplicationService(notifier)

	router := InitRouter(cfg, log, registry, notifier, notifications, authenticator)
	httpSrv := server.NewHTTPServer(router, server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, log)

	app := newApplication(log, httpSrv, notifier, b, cfg.Server.ShutdownTimeout)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
		os.Exit(1)
	}
}

func newLoggerConfig(cfg *config.Config) *logger.Config {
	lCfg := logger.NewDefaultConfig()
	lCfg.Level = logger.ParseLevel(cfg.Log.Level)
	lCfg.Format = cfg.Log.Format
	lCfg.Output = cfg.Log.Output
	lCfg.FilePath = cfg.Log.FilePath
	lCfg.MaxSize = cfg.Log.MaxSize
	lCfg.MaxBackups = cfg.Log.MaxBackups
	lCfg.MaxAge = cfg.Log.MaxAge
	lCfg.Compress = cfg.Log.Compress
	return lCfg
}

func newBroker(ctx context.Context, cfg *config.Config, log logger.Logger) (broker.Broker, error) {
	policy := broker.ReconnectPolicy{Min: cfg.Broker.ReconnectMin, Max: cfg.Broker.ReconnectMax}

	switch cfg.Broker.Driver {
	case "nats":
		return broker.DialNATS(cfg.Broker.NATSURL, cfg.Broker.Channel, policy, log)
	case "memory":
		log.Warn("using the in-memory broker, events stay on this instance")
		return broker.NewMemory(), nil
	default:
		client, err := broker.NewRedisClient(cfg.Broker.RedisURL)
		if err != nil {
			return nil, err
		}
		r := broker.NewRedis(client, cfg.Broker.Channel, policy, log)
		if err := r.Ping(ctx); err != nil {
			// the subscription keeps retrying; publishing fails until redis is back
			log.WithError(err).Warn("redis is not reachable yet")
		}
		return r, nil
	}
}

type Application struct {
	logger          logger.Logger
	httpSrv         server.Server
	notifier        *fanout.Notifier
	broker          broker.Broker
	shutdownTimeout time.Duration
}

func newApplication(
	logger logger.Logger,
	httpSrv *server.HTTPServer,
	notifier *fanout.Notifier,
	b broker.Broker,
	shutdownTimeout time.Duration,
) *Application {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &Application{
		logger:          logger.WithField("app", "realtime-events"),
		httpSrv:         httpSrv,
		notifier:        notifier,
		broker:          b,
		shutdownTimeout: shutdownTimeout,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg := errgroup.Group{}

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout)
		defer cancel()

		// Stop the notifier first: it closes every open stream so Shutdown does not wait on them
		if err := app.notifier.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop notifier: %v", err)
		}

		err := app.httpSrv.Stop(gracefulshutdownCtx)

		if cerr := app.broker.Close(); cerr != nil {
			app.logger.Errorf("failed to close broker: %v", cerr)
		}
		return err
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
