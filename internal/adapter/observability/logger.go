// Package observability provides logging, metrics, and tracing for the
// broker.
package observability

import (
	"log/slog"
	"os"

	"github.com/hordebroker/broker/internal/config"
)

// SetupLogger configures the process-wide JSON slog logger. Every
// broker log line (submit/poll/submit-result/sweep) flows through a
// logger derived from this one, so service/env are attached once here
// rather than repeated at each call site.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.IsDev() {
		// Dev operators want dispatch/skip-reason detail at debug level;
		// prod stays at the default info level to keep the worker-poll
		// volume out of the log stream.
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
	return logger
}
