package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oxford-data-processes/aws-utils/archive"
	"github.com/oxford-data-processes/aws-utils/queue"
)

func newDrainCmd(a *app) *cobra.Command {
	var (
		queueURL     string
		deleteAfter  bool
		require      bool
		archiveTable string
	)

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Receive every message from a queue, ordered by embedded timestamp",
		Long: `Receive batches until the queue returns an empty response and print the
messages sorted by the first YYYY-MM-DDTHH:MM:SS timestamp in each body.

With --archive-table the messages are written to DynamoDB before they are
deleted, so --delete never loses a message that failed to archive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueCfg := a.cfg.Queue
			if cmd.Flags().Changed("queue-url") {
				queueCfg.URL = queueURL
			}
			if cmd.Flags().Changed("delete") {
				queueCfg.DeleteAfterDrain = deleteAfter
			}
			if cmd.Flags().Changed("require") {
				queueCfg.RequireMessages = require
			}
			if queueCfg.URL == "" {
				return fmt.Errorf("queue URL is required (--queue-url or SQS_QUEUE_URL)")
			}
			if err := queueCfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			archiveCfg := a.cfg.Archive
			if cmd.Flags().Changed("archive-table") {
				archiveCfg.TableName = archiveTable
			}
			archiving := archiveCfg.TableName != ""
			if archiving {
				if err := archiveCfg.Validate(); err != nil {
					return fmt.Errorf("invalid configuration: %w", err)
				}
			}

			clients, err := a.clients(cmd.Context())
			if err != nil {
				return err
			}

			// Deletion is deferred until the archive write has succeeded.
			deleteAfterDrain := queueCfg.DeleteAfterDrain
			if archiving {
				queueCfg.DeleteAfterDrain = false
			}

			drainer := queue.NewDrainer(clients.SQS, queueCfg,
				queue.WithLogger(a.logger),
				queue.WithMetrics(a.metrics),
			)
			msgs, err := drainer.DrainAll(cmd.Context(), queueCfg.URL)
			if err != nil {
				return err
			}

			if archiving {
				archiver := archive.NewArchiver(clients.DynamoDB, archiveCfg, archive.WithLogger(a.logger))
				if _, err := archiver.Write(cmd.Context(), queueCfg.URL, msgs); err != nil {
					return err
				}
				if deleteAfterDrain {
					drainer.Delete(cmd.Context(), queueCfg.URL, msgs)
				}
			}

			if a.output == "json" {
				return printJSON(a.stdout, msgs)
			}
			rows := make([][]string, len(msgs))
			for i, m := range msgs {
				rows[i] = []string{m.Timestamp, m.ID, m.Body}
			}
			return printTable(a.stdout, []string{"TIMESTAMP", "ID", "BODY"}, rows)
		},
	}

	cmd.Flags().StringVar(&queueURL, "queue-url", "", "Queue URL (defaults to SQS_QUEUE_URL)")
	cmd.Flags().BoolVar(&deleteAfter, "delete", false, "Delete messages after draining")
	cmd.Flags().BoolVar(&require, "require", false, "Fail when the queue is empty")
	cmd.Flags().StringVar(&archiveTable, "archive-table", "", "Archive drained messages to this DynamoDB table (defaults to ARCHIVE_TABLE_NAME)")

	return cmd
}
