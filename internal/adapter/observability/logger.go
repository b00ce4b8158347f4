package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/dtq/internal/config"
)

// SetupLogger configures a JSON slog logger with service fields and installs
// it as the process default.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	// In dev, show debug level; in prod, default to info
	if !cfg.IsProduction() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(h).With(
		slog.String("service", cfg.AppName),
		slog.String("env", cfg.Environment),
	)
	slog.SetDefault(logger)
	return logger
}
