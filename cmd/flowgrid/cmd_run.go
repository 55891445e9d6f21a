package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vk/flowgrid/internal/app"
)

var runFlags struct {
	path      string
	workers   int
	logLevel  string
	logFormat string
	dump      bool
}

var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Execute the pipelines declared in an HCL file or directory",
	Long: `Run every pipeline found under the given path.

Usage:
  flowgrid run pipelines.hcl            # Single file as positional arg
  flowgrid run ./pipelines/             # Directory, walked recursively
  flowgrid run --path=pipelines.hcl     # Path as flag

Each sink's collected values are printed to stdout when its pipeline
finishes. Pipelines run one after another, each on its own worker pool.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.path, "path", "", "Path to an .hcl file or a directory of them")
	f.IntVar(&runFlags.workers, "workers", 4, "Number of worker goroutines per pipeline")
	f.StringVar(&runFlags.logLevel, "log-level", "info", "Logging level: 'debug', 'info', 'warn' or 'error'")
	f.StringVar(&runFlags.logFormat, "log-format", "text", "Log output format: 'text' or 'json'")
	f.BoolVar(&runFlags.dump, "dump", false, "Print each pipeline's final scheduling state as YAML")
}

func runRun(cmd *cobra.Command, args []string) error {
	path := runFlags.path
	if path == "" && len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("a pipeline path is required\n\nUsage: flowgrid run <path>\n       flowgrid run --path=pipelines.hcl")
	}

	logFormat := strings.ToLower(runFlags.logFormat)
	if logFormat != "text" && logFormat != "json" {
		return fmt.Errorf("invalid log-format: must be 'text' or 'json'")
	}
	logLevel := strings.ToLower(runFlags.logLevel)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	config, err := app.NewConfig(app.Config{
		Path:      path,
		Workers:   runFlags.workers,
		LogLevel:  logLevel,
		LogFormat: logFormat,
		Dump:      runFlags.dump,
	})
	if err != nil {
		return err
	}

	a, err := app.NewApp(os.Stdout, config)
	if err != nil {
		return err
	}
	return a.Run(cmd.Context())
}
