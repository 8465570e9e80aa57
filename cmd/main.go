package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/matchd/internal/adapters/http/api"
	"github.com/okian/matchd/internal/adapters/http/stream"
	"github.com/okian/matchd/internal/adapters/http/swagger"
	"github.com/okian/matchd/internal/adapters/mq/queue"
	"github.com/okian/matchd/internal/adapters/mq/worker"
	redissink "github.com/okian/matchd/internal/adapters/publish/redis"
	repository "github.com/okian/matchd/internal/adapters/repository"
	"github.com/okian/matchd/internal/adapters/repository/sqlite"
	service "github.com/okian/matchd/internal/app"
	"github.com/okian/matchd/internal/config"
	"github.com/okian/matchd/pkg/logger"
	"github.com/okian/matchd/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		os.Exit(1)
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	d, err := build(ctx, cfg)
	if err != nil {
		log.Error(ctx, "failed to start", logger.Error(err))
		os.Exit(1)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, d)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           d.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := d.Close(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "component shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
}

// daemon holds the running components and their shutdown order.
type daemon struct {
	svc     *service.Service
	queue   *queue.InMemoryQueue
	pool    *worker.Pool
	hub     *stream.Hub
	handler http.Handler
	closers []func() error
}

// build wires the store, the event pipeline, the service and the HTTP routes.
func build(ctx context.Context, cfg *config.Config) (*daemon, error) {
	log := logger.Get()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d := &daemon{}
	if closeStore != nil {
		d.closers = append(d.closers, closeStore)
	}

	d.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.EventQueueSize))
	d.hub = stream.NewHub()
	sinks := []worker.Sink{d.hub}

	if cfg.RedisAddr != "" {
		client, err := redissink.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			_ = d.closeAll()
			return nil, err
		}
		d.closers = append(d.closers, client.Close)
		sinks = append(sinks, redissink.New(client, redissink.WithList(cfg.RedisList), redissink.WithMaxLen(cfg.RedisMaxLen)))
		log.Info(ctx, "redis event sink enabled", logger.String("addr", cfg.RedisAddr), logger.String("list", cfg.RedisList))
	}

	// Workers outlive the signal context and stop once Close drains the queue.
	d.pool = worker.NewPool(cfg.EventWorkerCount, d.queue, sinks)
	d.pool.Start(context.WithoutCancel(ctx))

	d.svc, err = service.New(store,
		service.WithModes(cfg.ModeConfigs()...),
		service.WithPublisher(d.queue),
		service.WithReadyDeadline(cfg.ReadyDeadline()),
		service.WithNoShowPenalty(cfg.NoShowPenalty),
		service.WithTeardown(cfg.Teardown(), cfg.CancelTeardown()),
		service.WithKFactor(cfg.KFactor),
		service.WithVariance(cfg.Variance),
	)
	if err != nil {
		_ = d.pool.Shutdown(ctx)
		_ = d.closeAll()
		return nil, fmt.Errorf("create service: %w", err)
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(d.svc, api.WithMaxLimit(cfg.MaxLeaderboardLimit), api.WithStream(d.hub)).Register(ctx, mux)
	d.handler = mux

	return d, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.DefaultRating)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, st.Close, nil
	default:
		return repository.NewMemoryStore(repository.WithDefaultRating(cfg.DefaultRating)), nil, nil
	}
}

// Close stops the service first so its final events reach the queue, then
// drains the dispatchers and releases the store and Redis client.
func (d *daemon) Close(ctx context.Context) error {
	d.svc.Close()
	err := d.pool.Shutdown(ctx)
	return errors.Join(err, d.closeAll())
}

func (d *daemon) closeAll() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the gauges that are not updated on
// every state change.
func startServiceMetricsUpdater(ctx context.Context, d *daemon) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, d)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

func updateServiceMetrics(ctx context.Context, d *daemon) {
	stats := d.svc.Stats(ctx)

	if queues, ok := stats["queues"].(map[string]int); ok {
		for mode, n := range queues {
			metrics.UpdateQueueSize(mode, n)
		}
	}
	if active, ok := stats["active_matches"].(int); ok {
		metrics.UpdateActiveMatches(active)
	}
	metrics.UpdateEventQueueSize(d.queue.Len())
}
