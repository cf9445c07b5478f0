// Package datagate собирает слой доступа к данным и сервисы из конфига
// и обслуживает служебный HTTP сервер (health, metrics).
package datagate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/datagate/internal/cache"
	"github.com/magabrotheeeer/datagate/internal/config"
	"github.com/magabrotheeeer/datagate/internal/lib/password"
	"github.com/magabrotheeeer/datagate/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/datagate/internal/lib/sl"
	"github.com/magabrotheeeer/datagate/internal/lib/tracing"
	"github.com/magabrotheeeer/datagate/internal/migrations"
	"github.com/magabrotheeeer/datagate/internal/notify"
	authservice "github.com/magabrotheeeer/datagate/internal/services/auth"
	subservice "github.com/magabrotheeeer/datagate/internal/services/subscription"
	"github.com/magabrotheeeer/datagate/internal/storage"
	"github.com/magabrotheeeer/datagate/internal/storage/instrument"
	"github.com/magabrotheeeer/datagate/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App владеет всеми ресурсами процесса и закрывает их в Close.
type App struct {
	server   *http.Server
	logger   *slog.Logger
	store    *storage.Storage
	repo     *repository.Storage
	registry *prometheus.Registry

	auth          *authservice.AuthService
	subscriptions *subservice.SubscriptionService

	closers []func(context.Context) error
}

// New создает приложение по конфигу. При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *App, err error) {
	const op = "app.datagate.New"

	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.shutdown(context.Background())
		}
	}()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.closers = append(a.closers, shutdownTracing)

	if !cfg.SkipMigrations {
		dialect, err := storage.DialectFor(cfg.Driver)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err = migrations.Run(cfg.Driver, dialect.DSN(cfg.ConnectionString)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("migrations applied", slog.String("driver", cfg.Driver))
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := instrument.NewMetrics(a.registry)
	recorder := instrument.New(logger, metrics, cfg.Instrumentation)

	queryCache, err := newQueryCache(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if c, ok := queryCache.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	db, dialect, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.store, err = storage.New(ctx, db, dialect, cfg.PoolSize, storage.Deps{
		Log:      logger,
		Cache:    queryCache,
		Recorder: recorder,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.store.Close() })

	notifier, err := a.newNotifier(ctx, cfg.Notifications)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.repo = repository.New(a.store, password.NewBcrypt(cfg.BcryptCost))
	a.auth = authservice.NewAuthService(a.repo, password.NewBcrypt(cfg.BcryptCost), notifier, cfg.Auth, logger)
	a.subscriptions = subservice.NewSubscriptionService(a.repo, cfg.SubscriptionDays, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, a.store, a.registry, cfg.Tracing)

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	logger.Info("datagate initialized",
		slog.String("driver", cfg.Driver),
		slog.Int("pool_size", cfg.PoolSize),
		slog.String("cache", cfg.Backend),
	)
	return a, nil
}

func newQueryCache(ctx context.Context, cfg *config.Config) (cache.Cache[[]storage.Row], error) {
	switch cfg.Backend {
	case config.CacheBackendRedis:
		return cache.InitServer[[]storage.Row](ctx, cfg.RedisConnection, cfg.TTL, cfg.KeyPrefix)
	default:
		return cache.NewMemory[[]storage.Row](cfg.TTL), nil
	}
}

func (a *App) newNotifier(ctx context.Context, cfg config.Notifications) (authservice.Notifier, error) {
	if cfg.AMQPURL == "" {
		a.logger.Warn("notifications are not configured, reset tokens will be logged")
		return notify.NewLogNotifier(a.logger), nil
	}
	conn, err := rabbitmq.Connect(ctx, cfg.AMQPURL, 5, 2*time.Second)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return closeAMQP(conn) })

	ch, err := rabbitmq.SetupChannel(conn, cfg.Exchange, notify.Queues(cfg))
	if err != nil {
		return nil, err
	}
	return notify.NewAMQPNotifier(ch, cfg, a.logger), nil
}

func closeAMQP(conn *amqp.Connection) error {
	if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}

// Auth сервис аутентификации.
func (a *App) Auth() *authservice.AuthService { return a.auth }

// Subscriptions сервис подписок.
func (a *App) Subscriptions() *subservice.SubscriptionService { return a.subscriptions }

// Repository доменные операции хранилища.
func (a *App) Repository() *repository.Storage { return a.repo }

// Handler служебный HTTP обработчик.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Run обслуживает HTTP до отмены ctx, затем корректно завершает работу.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.shutdown(context.Background())
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.shutdown(timeoutCtx)
		return err
	}
}

// Close освобождает ресурсы без запуска сервера.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.shutdown(ctx)
}

// shutdown закрывает ресурсы в порядке, обратном открытию.
func (a *App) shutdown(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Error("failed to release resource", sl.Err(err))
		}
	}
	a.closers = nil
}
