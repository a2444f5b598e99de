package main

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/oxford-data-processes/aws-utils/events"
	"github.com/oxford-data-processes/aws-utils/notify"
)

func newNotifyCmd(a *app) *cobra.Command {
	var topicARN, topicName, subject string

	cmd := &cobra.Command{
		Use:   "notify MESSAGE",
		Short: "Publish a message to an SNS topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notifyCfg := a.cfg.Notify
			if cmd.Flags().Changed("topic-arn") {
				notifyCfg.TopicARN = topicARN
			}
			if cmd.Flags().Changed("topic-name") {
				notifyCfg.TopicName = topicName
			}
			if cmd.Flags().Changed("subject") {
				notifyCfg.Subject = subject
			}
			arn, err := notifyCfg.ResolveTopicARN(a.cfg.AWS.Region, a.cfg.AWS.AccountID)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			clients, err := a.clients(cmd.Context())
			if err != nil {
				return err
			}

			id, err := notify.NewNotifier(clients.SNS, arn, notifyCfg.Subject, a.logger).Send(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(a.stdout, map[string]string{"messageId": id, "topicArn": arn})
			}
			_, err = fmt.Fprintln(a.stdout, id)
			return err
		},
	}

	cmd.Flags().StringVar(&topicARN, "topic-arn", "", "Topic ARN (defaults to SNS_TOPIC_ARN)")
	cmd.Flags().StringVar(&topicName, "topic-name", "", "Topic name, combined with region and AWS_ACCOUNT_ID")
	cmd.Flags().StringVar(&subject, "subject", "", "Message subject (defaults to SNS_SUBJECT)")

	return cmd
}

func newPublishCmd(a *app) *cobra.Command {
	var bus, source, detailType, schema string

	cmd := &cobra.Command{
		Use:   "publish DETAIL_JSON",
		Short: "Put a JSON event on an EventBridge bus",
		Example: `  awsutil publish '{"event_type":"S3PutObject","bucket":"feeds","object_key":"stock/a.csv"}' \
    --bus loader-event-bus --source com.oxforddataprocesses --detail-type S3PutObject --schema S3PutObject`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var detail map[string]any
			if err := json.Unmarshal([]byte(args[0]), &detail); err != nil {
				return fmt.Errorf("detail must be a JSON object: %w", err)
			}

			if schema != "" {
				doc, err := events.Schema(schema)
				if err != nil {
					return err
				}
				if err := events.Validate(detail, doc); err != nil {
					return err
				}
			}

			clients, err := a.clients(cmd.Context())
			if err != nil {
				return err
			}

			id, err := events.NewPublisher(clients.EventBridge, a.logger).Publish(cmd.Context(), bus, source, detailType, detail)
			if err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(a.stdout, map[string]string{"eventId": id, "eventBus": bus})
			}
			_, err = fmt.Fprintln(a.stdout, id)
			return err
		},
	}

	cmd.Flags().StringVar(&bus, "bus", "", "Event bus name")
	cmd.Flags().StringVar(&source, "source", "", "Event source")
	cmd.Flags().StringVar(&detailType, "detail-type", "", "Event detail type")
	cmd.Flags().StringVar(&schema, "schema", "", "Validate the detail against this embedded schema first")
	_ = cmd.MarkFlagRequired("bus")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("detail-type")

	return cmd
}
