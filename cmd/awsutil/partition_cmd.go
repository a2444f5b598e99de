package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oxford-data-processes/aws-utils/catalog"
)

func newPartitionCmd(a *app) *cobra.Command {
	var database, table, bucket, values string
	var force bool

	cmd := &cobra.Command{
		Use:   "partition",
		Short: "Register a parquet partition in the Glue Data Catalog",
		Example: `  awsutil partition --database sales --table stock --bucket lake --values year=2024,month=06,day=01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := catalog.ParsePartition(values)
			if err != nil {
				return err
			}
			if database == "" {
				database = a.cfg.Athena.Database
			}
			if database == "" {
				return fmt.Errorf("database is required (--database or ATHENA_DATABASE)")
			}

			clients, err := a.clients(cmd.Context())
			if err != nil {
				return err
			}

			c := catalog.New(clients.Glue, a.cfg.AWS.AccountID, a.logger)
			created := true
			if force {
				err = c.AddPartition(cmd.Context(), database, table, bucket, keys)
			} else {
				created, err = c.EnsurePartition(cmd.Context(), database, table, bucket, keys)
			}
			if err != nil {
				return err
			}

			location := catalog.PartitionLocation(bucket, table, keys)
			if a.output == "json" {
				return printJSON(a.stdout, map[string]any{"location": location, "created": created})
			}
			if !created {
				_, err = fmt.Fprintf(a.stdout, "partition already registered: %s\n", location)
				return err
			}
			_, err = fmt.Fprintf(a.stdout, "partition added: %s\n", location)
			return err
		},
	}

	cmd.Flags().StringVar(&database, "database", "", "Glue database (defaults to ATHENA_DATABASE)")
	cmd.Flags().StringVar(&table, "table", "", "Glue table")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket holding the table data")
	cmd.Flags().StringVar(&values, "values", "", "Ordered partition keys, e.g. year=2024,month=06")
	cmd.Flags().BoolVar(&force, "force", false, "Create without checking for an existing partition")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("values")

	return cmd
}
