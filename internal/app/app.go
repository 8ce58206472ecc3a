package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpserver "github.com/hordebroker/broker/internal/adapter/httpserver"
	"github.com/hordebroker/broker/internal/adapter/eventbus"
	"github.com/hordebroker/broker/internal/adapter/eventbus/kafka"
	"github.com/hordebroker/broker/internal/config"
	"github.com/hordebroker/broker/internal/domain"
	"github.com/hordebroker/broker/internal/registry"
	"github.com/hordebroker/broker/internal/scheduler"
)

// App is the fully wired process: registry, broker, background loops,
// and the HTTP server.
type App struct {
	Cfg      config.Config
	Registry *registry.Registry
	Broker   *scheduler.Broker
	HTTP     *http.Server

	closeEventBus func()
}

// New constructs an App from cfg: loads the registry snapshot if
// present, builds the event publisher (Kafka if configured, otherwise
// a no-op), and assembles the router.
func New(cfg config.Config) (*App, error) {
	limits := domain.Limits{
		StaleWindow:        time.Duration(cfg.StaleSeconds) * time.Second,
		PromptStaleWindow:  time.Duration(cfg.PromptStaleSeconds) * time.Second,
		FinishedRetention:  cfg.FinishedRetention,
		MaxLiveUserPrompts: cfg.MaxLiveUserPrompts,
	}

	reg := registry.New(limits.StaleWindow)
	if err := reg.LoadSnapshot(cfg.SnapshotDir); err != nil {
		return nil, fmt.Errorf("op=app.New: %w", err)
	}

	var pub domain.EventPublisher = eventbus.Noop{}
	var closeEventBus func()
	if cfg.EventBusEnabled() {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			slog.Error("event bus disabled: failed to construct kafka producer", slog.Any("error", err))
		} else {
			pub = producer
			closeEventBus = producer.Close
		}
	}

	broker := scheduler.New(reg, pub, limits)

	if err := httpserver.ValidateOpenAPI(); err != nil {
		return nil, fmt.Errorf("op=app.New: %w", err)
	}

	srv := httpserver.NewServer(broker, reg)
	handler := BuildRouter(cfg, srv)

	httpSrv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     handler,
		ReadTimeout: cfg.HTTPReadTimeout,
		// No server-wide WriteTimeout: POST /generate/sync legitimately
		// blocks up to PromptStaleSeconds (§4.4 step 6), far longer than
		// every other route. Per-route deadlines are enforced instead by
		// the timeout middleware in BuildRouter, which gives that one
		// route its own, much longer, budget.
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Cfg:           cfg,
		Registry:      reg,
		Broker:        broker,
		HTTP:          httpSrv,
		closeEventBus: closeEventBus,
	}, nil
}

// RunBackgroundLoops starts the snapshot writer and the prompt sweeper.
// Both stop when ctx is cancelled.
func (a *App) RunBackgroundLoops(ctx context.Context) {
	go a.Registry.RunSnapshotLoop(ctx, a.Cfg.SnapshotDir, a.Cfg.SnapshotInterval)
	go a.Broker.RunSweepLoop(ctx, a.Cfg.SweepInterval)
}

// Close releases the event-bus connection, if one was opened.
func (a *App) Close() {
	if a.closeEventBus != nil {
		a.closeEventBus()
	}
}
