package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "flowgrid",
	Short: "A pull-driven pipeline engine for HCL-declared dataflows",
	Long:  "Flowgrid executes dataflow pipelines declared in HCL.\nStages exchange chunks through demand-driven ports and run\nconcurrently on a fixed pool of workers.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
