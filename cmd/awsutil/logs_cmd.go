package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oxford-data-processes/aws-utils/actionlog"
	"github.com/oxford-data-processes/aws-utils/storage"
)

func newLogCmd(a *app) *cobra.Command {
	var bucket, project, action, user string

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Record a user action in a project's S3 action log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clients, err := a.clients(cmd.Context())
			if err != nil {
				return err
			}

			store := storage.NewStore(clients.S3, nil, storage.WithLogger(a.logger))
			entry, err := actionlog.New(store, actionlog.WithLogger(a.logger)).Record(cmd.Context(), bucket, project, action, user)
			if err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(a.stdout, entry)
			}
			_, err = fmt.Fprintf(a.stdout, "recorded %s at %s\n", entry.Action, entry.Timestamp)
			return err
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket holding the logs")
	cmd.Flags().StringVar(&project, "project", "", "Project name")
	cmd.Flags().StringVar(&action, "action", "", "Action description")
	cmd.Flags().StringVar(&user, "user", "", "User who performed the action")
	for _, name := range []string{"bucket", "project", "action", "user"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func newLogsCmd(a *app) *cobra.Command {
	var bucket, project string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List a project's recorded actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clients, err := a.clients(cmd.Context())
			if err != nil {
				return err
			}

			store := storage.NewStore(clients.S3, nil, storage.WithLogger(a.logger))
			entries, err := actionlog.New(store, actionlog.WithLogger(a.logger)).List(cmd.Context(), bucket, project)
			if err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(a.stdout, entries)
			}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{e.Timestamp, e.User, e.Action}
			}
			return printTable(a.stdout, []string{"TIMESTAMP", "USER", "ACTION"}, rows)
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket holding the logs")
	cmd.Flags().StringVar(&project, "project", "", "Project name")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func newCSVCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "csv S3_URI",
		Short: "Print the records of a CSV object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := storage.ParseURI(args[0])
			if err != nil {
				return err
			}

			clients, err := a.clients(cmd.Context())
			if err != nil {
				return err
			}

			store := storage.NewStore(clients.S3, clients.Streamer, storage.WithLogger(a.logger))
			records, err := store.LoadCSV(cmd.Context(), loc.Bucket, loc.Key)
			if err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(a.stdout, records)
			}
			if len(records) == 0 {
				return nil
			}
			return printTable(a.stdout, records[0], records[1:])
		},
	}
}
