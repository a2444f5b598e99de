// Package notify publishes plain-text notifications to an SNS topic.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/oxford-data-processes/aws-utils/aws"
)

// Notifier sends messages to one topic with a fixed subject.
type Notifier struct {
	client   aws.SNSClient
	topicARN string
	subject  string
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. An empty subject omits the Subject field.
func NewNotifier(client aws.SNSClient, topicARN, subject string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:   client,
		topicARN: topicARN,
		subject:  subject,
		logger:   logger,
	}
}

// Send publishes message and returns the SNS message ID.
func (n *Notifier) Send(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("notification message is empty")
	}

	in := &sns.PublishInput{
		TopicArn: &n.topicARN,
		Message:  &message,
	}
	if n.subject != "" {
		in.Subject = &n.subject
	}

	out, err := n.client.Publish(ctx, in)
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", n.topicARN, err)
	}

	id := sdkaws.ToString(out.MessageId)
	n.logger.InfoContext(ctx, "notification sent", "topic", n.topicARN, "messageId", id)
	return id, nil
}
