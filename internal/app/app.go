package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/executor"
	"github.com/vk/flowgrid/internal/flowcfg"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	config    *Config
	pipelines []*flowcfg.Pipeline
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and every pipeline
// loaded and wired, or the first configuration error encountered.
func NewApp(outW io.Writer, config *Config) (*App, error) {
	logger := newLogger(config.LogLevel, config.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	pipelines, err := flowcfg.Load(ctx, config.Path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	logger.Debug("Configuration loaded.", "pipelines", len(pipelines))

	return &App{
		outW:      outW,
		logger:    logger,
		config:    config,
		pipelines: pipelines,
	}, nil
}

// Pipelines returns the loaded pipeline set. This is primarily for testing.
func (a *App) Pipelines() []*flowcfg.Pipeline {
	return a.pipelines
}

// Run executes every loaded pipeline in declaration order and writes each
// sink's collected values to the output writer. The first failing pipeline
// stops the run.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	for _, p := range a.pipelines {
		a.logger.Info("Starting pipeline execution.", "pipeline", p.Name, "processors", len(p.Processors), "workers", a.config.Workers)

		exec, err := executor.New(p.Processors)
		if err != nil {
			return fmt.Errorf("pipeline %q: %w", p.Name, err)
		}

		runErr := exec.Execute(ctx, a.config.Workers)

		if a.config.Dump {
			dump, dumpErr := exec.Dump()
			if dumpErr != nil {
				a.logger.Warn("Failed to dump pipeline state.", "pipeline", p.Name, "error", dumpErr)
			} else {
				fmt.Fprintf(a.outW, "--- pipeline %q ---\n%s", p.Name, dump)
			}
		}

		if runErr != nil {
			return fmt.Errorf("pipeline %q: %w", p.Name, runErr)
		}
		a.logger.Info("Pipeline execution finished.", "pipeline", p.Name)

		sinkNames := make([]string, 0, len(p.Sinks))
		for name := range p.Sinks {
			sinkNames = append(sinkNames, name)
		}
		slices.Sort(sinkNames)
		for _, name := range sinkNames {
			values := p.Sinks[name].Values()
			fmt.Fprintf(a.outW, "%s.%s: %d value(s)\n", p.Name, name, len(values))
			for _, v := range values {
				if s, err := convert.Convert(v, cty.String); err == nil {
					fmt.Fprintf(a.outW, "  %s\n", s.AsString())
				} else {
					fmt.Fprintf(a.outW, "  %s\n", v.GoString())
				}
			}
		}
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}
