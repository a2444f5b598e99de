package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxford-data-processes/aws-utils/query"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		database  string
		workgroup string
		bucket    string
		maxWait   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query SQL",
		Short: "Run an Athena query and print its rows",
		Example: `  awsutil query "SELECT sku, qty FROM stock LIMIT 10" --database sales
  awsutil query "SELECT count(*) AS n FROM stock" -o json --max-wait 2m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			athenaCfg := a.cfg.Athena
			if cmd.Flags().Changed("database") {
				athenaCfg.Database = database
			}
			if cmd.Flags().Changed("workgroup") {
				athenaCfg.Workgroup = workgroup
			}
			if cmd.Flags().Changed("output-bucket") {
				athenaCfg.OutputBucket = bucket
			}
			if cmd.Flags().Changed("max-wait") {
				athenaCfg.MaxWait = maxWait
			}
			if err := athenaCfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			clients, err := a.clients(cmd.Context())
			if err != nil {
				return err
			}

			runner := query.NewRunner(clients.Athena, athenaCfg,
				query.WithLogger(a.logger),
				query.WithMetrics(a.metrics),
			)
			rows, err := runner.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printRows(rows)
		},
	}

	cmd.Flags().StringVar(&database, "database", "", "Athena database (defaults to ATHENA_DATABASE)")
	cmd.Flags().StringVar(&workgroup, "workgroup", "", "Athena workgroup (defaults to ATHENA_WORKGROUP)")
	cmd.Flags().StringVar(&bucket, "output-bucket", "", "Bucket for query results (defaults to ATHENA_OUTPUT_BUCKET)")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 0, "Give up after this long; 0 waits until the query finishes")

	return cmd
}
