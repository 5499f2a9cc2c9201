package logging

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/edvin/sshtrust/internal/config"
)

// NewLogger creates a structured zerolog.Logger writing to w. The
// namespace is added as a context field when set, so multi-site
// deployments can tell their clients apart.
func NewLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()

	if cfg.Namespace != "" {
		ctx = ctx.Str("namespace", cfg.Namespace)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
