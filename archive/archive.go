// Package archive stores drained queue messages in a DynamoDB table so a
// drain can be audited or replayed after the messages are deleted.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"

	"github.com/oxford-data-processes/aws-utils/aws"
	"github.com/oxford-data-processes/aws-utils/config"
	"github.com/oxford-data-processes/aws-utils/queue"
)

// ErrUnprocessed is returned when DynamoDB still reports unprocessed items
// after the retry budget is spent.
var ErrUnprocessed = errors.New("unprocessed items remain after retries")

const defaultMaxRetries = 8

// Record is the stored form of a message. The table's key is (queue, message_id).
type Record struct {
	Queue      string            `dynamodbav:"queue"`
	MessageID  string            `dynamodbav:"message_id"`
	Body       string            `dynamodbav:"body"`
	Timestamp  string            `dynamodbav:"timestamp,omitempty"`
	Attributes map[string]string `dynamodbav:"attributes,omitempty"`
	ArchivedAt string            `dynamodbav:"archived_at"`
}

// Archiver writes records with BatchWriteItem.
type Archiver struct {
	client     aws.DynamoDBClient
	tableName  string
	batchSize  int
	maxRetries uint64
	newBackOff func() backoff.BackOff
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) { a.logger = l }
}

// WithBackOff replaces the exponential backoff used between retries.
func WithBackOff(newBackOff func() backoff.BackOff, maxRetries uint64) Option {
	return func(a *Archiver) {
		a.newBackOff = newBackOff
		a.maxRetries = maxRetries
	}
}

// NewArchiver creates an Archiver. cfg is expected to have passed Validate.
func NewArchiver(client aws.DynamoDBClient, cfg config.Archive, opts ...Option) *Archiver {
	a := &Archiver{
		client:     client,
		tableName:  cfg.TableName,
		batchSize:  cfg.BatchSize,
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			return b
		},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// isThrottlingError reports whether err is a DynamoDB capacity error that
// clears by waiting.
func isThrottlingError(err error) bool {
	var throughputErr *types.ProvisionedThroughputExceededException
	var requestLimitErr *types.RequestLimitExceeded
	return errors.As(err, &throughputErr) || errors.As(err, &requestLimitErr)
}

// Write stores msgs in batches of at most BatchSize and returns how many
// were written. Throttling and unprocessed items are retried with backoff;
// any other error stops the write.
func (a *Archiver) Write(ctx context.Context, queueURL string, msgs []queue.Message) (int, error) {
	archivedAt := a.now().UTC().Format(time.RFC3339)
	written := 0

	for i := 0; i < len(msgs); i += a.batchSize {
		end := min(i+a.batchSize, len(msgs))

		requests := make([]types.WriteRequest, 0, end-i)
		for _, m := range msgs[i:end] {
			item, err := attributevalue.MarshalMap(Record{
				Queue:      queueURL,
				MessageID:  m.ID,
				Body:       m.Body,
				Timestamp:  m.Timestamp,
				Attributes: m.Attributes,
				ArchivedAt: archivedAt,
			})
			if err != nil {
				return written, fmt.Errorf("failed to marshal message %s: %w", m.ID, err)
			}
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		if err := a.writeBatch(ctx, requests); err != nil {
			return written, err
		}
		written += len(requests)
	}

	a.logger.InfoContext(ctx, "messages archived", "table", a.tableName, "queue", queueURL, "count", written)
	return written, nil
}

func (a *Archiver) writeBatch(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{a.tableName: requests}

	op := func() error {
		out, err := a.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			if isThrottlingError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("failed to write batch to %s: %w", a.tableName, err))
		}
		if len(out.UnprocessedItems) > 0 {
			pending = out.UnprocessedItems
			return ErrUnprocessed
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(a.newBackOff(), a.maxRetries), ctx)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		a.logger.DebugContext(ctx, "retrying batch write", "table", a.tableName, "pending", len(pending[a.tableName]), "wait", wait, "error", err)
	})
	if err != nil {
		return fmt.Errorf("failed to archive batch: %w", err)
	}
	return nil
}
