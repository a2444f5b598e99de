package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/oxford-data-processes/aws-utils/aws"
	"github.com/oxford-data-processes/aws-utils/config"
	"github.com/oxford-data-processes/aws-utils/metrics"
)

// app carries the state shared by every subcommand. cfg is filled from the
// environment and then overridden by flags before any command runs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	stdout io.Writer
	stderr io.Writer

	output    string
	logLevel  string
	logFormat string
	stats     bool

	newClients func(ctx context.Context, cfg config.AWS) (*aws.Clients, error)
	clientsMem *aws.Clients
}

func newApp() *app {
	return &app{
		metrics: metrics.NewMetrics(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		newClients: func(ctx context.Context, cfg config.AWS) (*aws.Clients, error) {
			awsCfg, err := cfg.Load(ctx)
			if err != nil {
				return nil, err
			}
			return aws.NewClients(awsCfg), nil
		},
	}
}

// clients builds the service clients on first use so commands that fail
// validation never touch the credential chain.
func (a *app) clients(ctx context.Context) (*aws.Clients, error) {
	if a.clientsMem != nil {
		return a.clientsMem, nil
	}
	c, err := a.newClients(ctx, a.cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS clients: %w", err)
	}
	a.clientsMem = c
	return c, nil
}

// Execute runs the CLI.
func Execute() int {
	a := newApp()
	rootCmd := newRootCmd(a)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	var region, profile, endpoint string

	rootCmd := &cobra.Command{
		Use:           "awsutil",
		Short:         "Utilities for Athena, SQS, S3 and friends",
		Long:          "Command-line access to the aws-utils components: Athena queries, queue drains, notifications, events, partitions and action logs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg == nil {
				cfg, err := config.FromEnv()
				if err != nil {
					return err
				}
				a.cfg = cfg
			}

			// flag > env > default
			if cmd.Flags().Changed("region") {
				a.cfg.AWS.Region = region
			}
			if cmd.Flags().Changed("profile") {
				a.cfg.AWS.Profile = profile
			}
			if cmd.Flags().Changed("endpoint-url") {
				a.cfg.AWS.Endpoint = endpoint
			}

			logger, err := newLogger(a.stderr, a.logLevel, a.logFormat)
			if err != nil {
				return err
			}
			a.logger = logger
			slog.SetDefault(logger)

			switch a.output {
			case "text", "json":
				return nil
			default:
				return fmt.Errorf("unsupported output format %q (want text or json)", a.output)
			}
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if !a.stats {
				return nil
			}
			report := a.metrics.GenerateReport()
			if a.output == "json" {
				return printJSON(a.stderr, report)
			}
			_, err := fmt.Fprintln(a.stderr, report.String())
			return err
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&region, "region", "", "AWS region (defaults to AWS_REGION)")
	flags.StringVar(&profile, "profile", "", "Shared config profile (defaults to AWS_PROFILE)")
	flags.StringVar(&endpoint, "endpoint-url", "", "Custom service endpoint, e.g. LocalStack")
	flags.StringVarP(&a.output, "output", "o", "text", "Output format (text, json)")
	flags.StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "text", "Log format (text, json)")
	flags.BoolVar(&a.stats, "stats", false, "Print a run report to stderr")

	rootCmd.AddCommand(
		newQueryCmd(a),
		newDrainCmd(a),
		newNotifyCmd(a),
		newPublishCmd(a),
		newPartitionCmd(a),
		newInvokeCmd(a),
		newFindDBCmd(a),
		newFindAPICmd(a),
		newLogCmd(a),
		newLogsCmd(a),
		newCSVCmd(a),
	)

	return rootCmd
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
}
