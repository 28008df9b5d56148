package app

import (
	"io"
	"log/slog"

	"github.com/vk/dataflow/internal/pipeline"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	loader *pipeline.Loader
}

// NewApp is the constructor for the main application. Rows go to outW, logs
// to logW. A nil registry means the built-in operator kinds.
func NewApp(outW, logW io.Writer, cfg *Config, registry *pipeline.Registry) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	if registry == nil {
		registry = pipeline.DefaultRegistry()
	}
	logger.Debug("App configured.", "pipeline", cfg.PipelinePath, "kinds", registry.Kinds())
	return &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		loader: pipeline.NewLoader(registry),
	}
}
