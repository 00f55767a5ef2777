// Package cmd wires configuration, logging and the stitch pipeline into the
// clipstitch command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"clipstitch/config"
	"clipstitch/fetch"
	"clipstitch/ffmpeg"
	"clipstitch/job"
	"clipstitch/logging"
	"clipstitch/stitch"

	"github.com/spf13/cobra"
)

var Version = "0.1.0"

// NewRootCmd builds the command tree. Without a subcommand the server starts.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clipstitch",
		Short: "Join short video clips with crossfades, captions and a voice-over",
		Long: `clipstitch downloads two or three clips, crossfades them into one video,
optionally burns in captions and mixes a voice-over, and returns a single mp4.

It runs as an HTTP service (serve) or renders one request file locally (stitch).`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().String("config", "", "Path to a config file (yaml)")
	root.PersistentFlags().String("port", "", "Listen port, overrides PORT")

	root.AddCommand(newServeCmd(), newStitchCmd(), newVersionCmd())
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	root := NewRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipstitch version %s\n", Version)
		},
	}
}

// loadConfig reads the config file named by --config, then applies --port.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	return cfg, nil
}

// pipeline is everything a stitch needs, built once per process.
type pipeline struct {
	jobs     *job.Manager
	stitcher *stitch.Stitcher
}

func newPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	runner, err := ffmpeg.NewRunner(cfg, logging.WithComponent(logger, "ffmpeg"))
	if err != nil {
		return nil, fmt.Errorf("initialize ffmpeg runner: %w", err)
	}
	fetcher := fetch.New(cfg.MaxInputSize, logging.WithComponent(logger, "fetch"))
	jobs := job.NewManager(cfg, logger)

	s, err := stitch.New(cfg, jobs, fetcher, runner, runner, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize stitcher: %w", err)
	}
	return &pipeline{jobs: jobs, stitcher: s}, nil
}
