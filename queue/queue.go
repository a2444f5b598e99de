// Package queue drains an SQS queue into a slice of messages ordered by the
// timestamp embedded in each message body.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/oxford-data-processes/aws-utils/aws"
	"github.com/oxford-data-processes/aws-utils/config"
	"github.com/oxford-data-processes/aws-utils/metrics"
)

// ErrNoMessages is returned by DrainAll in strict mode when the first receive
// comes back empty.
var ErrNoMessages = errors.New("no messages received from queue")

var timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// Message is a received queue message. Timestamp is empty when the body
// carries none.
type Message struct {
	ID            string            `json:"id"`
	Body          string            `json:"body"`
	ReceiptHandle string            `json:"receiptHandle"`
	Timestamp     string            `json:"timestamp,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// ExtractTimestamp returns the first YYYY-MM-DDTHH:MM:SS substring of body.
func ExtractTimestamp(body string) (string, bool) {
	ts := timestampPattern.FindString(body)
	return ts, ts != ""
}

// Drainer receives every available message from a queue.
type Drainer struct {
	client  aws.SQSClient
	cfg     config.Queue
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Drainer.
type Option func(*Drainer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Drainer) { d.logger = l }
}

// WithMetrics shares a metrics collector with the drainer.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Drainer) { d.metrics = m }
}

// NewDrainer creates a Drainer. cfg is expected to have passed Validate.
func NewDrainer(client aws.SQSClient, cfg config.Queue, opts ...Option) *Drainer {
	d := &Drainer{
		client:  client,
		cfg:     cfg,
		metrics: metrics.NewMetrics(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Metrics returns the collector the drainer records into.
func (d *Drainer) Metrics() *metrics.Metrics {
	return d.metrics
}

// DrainAll receives batches until the first empty response and returns every
// message sorted by timestamp. Messages without a timestamp come last, and
// ties keep their receive order. When DeleteAfterDrain is set the received
// messages are deleted before returning.
func (d *Drainer) DrainAll(ctx context.Context, queueURL string) ([]Message, error) {
	msgs := make([]Message, 0)

	for batch := 0; ; batch++ {
		start := time.Now()
		out, err := d.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              &queueURL,
			MaxNumberOfMessages:   d.cfg.MaxMessages,
			WaitTimeSeconds:       d.cfg.WaitTimeSeconds,
			MessageAttributeNames: []string{"All"},
		})
		d.metrics.RecordRemoteTime(time.Since(start))
		if err != nil {
			d.metrics.RecordError()
			return nil, fmt.Errorf("failed to receive messages from %s: %w", queueURL, err)
		}
		if len(out.Messages) == 0 {
			break
		}

		d.metrics.RecordReceived(len(out.Messages))
		d.logger.DebugContext(ctx, "received batch", "queue", queueURL, "batch", batch, "messages", len(out.Messages))
		for _, m := range out.Messages {
			msgs = append(msgs, fromSQS(m))
		}
	}

	if len(msgs) == 0 && d.cfg.RequireMessages {
		return nil, fmt.Errorf("%s: %w", queueURL, ErrNoMessages)
	}

	SortByTimestamp(msgs)

	if d.cfg.DeleteAfterDrain {
		d.Delete(ctx, queueURL, msgs)
	}

	d.logger.InfoContext(ctx, "queue drained", "queue", queueURL, "messages", len(msgs))
	return msgs, nil
}

// Delete removes each message by receipt handle. Failures are logged and
// counted, and the remaining messages are still attempted. It returns the
// number of messages deleted.
func (d *Drainer) Delete(ctx context.Context, queueURL string, msgs []Message) int {
	deleted := 0
	for _, m := range msgs {
		start := time.Now()
		_, err := d.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &queueURL,
			ReceiptHandle: sdkaws.String(m.ReceiptHandle),
		})
		d.metrics.RecordRemoteTime(time.Since(start))
		if err != nil {
			d.metrics.RecordDeleteFailure()
			d.logger.WarnContext(ctx, "failed to delete message", "queue", queueURL, "messageId", m.ID, "error", err)
			continue
		}
		d.metrics.RecordDeleted()
		deleted++
	}
	return deleted
}

// SortByTimestamp orders msgs ascending by Timestamp in place. Messages with
// no timestamp sort after all others. The sort is stable.
func SortByTimestamp(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i].Timestamp, msgs[j].Timestamp
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})
}

func fromSQS(m types.Message) Message {
	msg := Message{
		ID:            sdkaws.ToString(m.MessageId),
		Body:          sdkaws.ToString(m.Body),
		ReceiptHandle: sdkaws.ToString(m.ReceiptHandle),
	}
	msg.Timestamp, _ = ExtractTimestamp(msg.Body)

	if len(m.MessageAttributes) > 0 {
		msg.Attributes = make(map[string]string, len(m.MessageAttributes))
		for name, v := range m.MessageAttributes {
			msg.Attributes[name] = sdkaws.ToString(v.StringValue)
		}
	}
	return msg
}
