package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type queuedMessage struct {
	id            string
	body          string
	receiptHandle string
	attributes    map[string]types.MessageAttributeValue
	inFlight      bool
}

// SQSClient is a stateful in-memory queue implementing aws.SQSClient.
// Received messages stay in flight until deleted and are never redelivered,
// as if the visibility timeout outlasted the test.
type SQSClient struct {
	mu       sync.Mutex
	queues   map[string][]*queuedMessage
	nextID   int
	receives int
	// DeleteErrors fails DeleteMessage for the listed message IDs
	DeleteErrors map[string]error
}

// NewSQSClient creates an empty mock SQS client
func NewSQSClient() *SQSClient {
	return &SQSClient{
		queues:       make(map[string][]*queuedMessage),
		DeleteErrors: make(map[string]error),
	}
}

func (m *SQSClient) enqueue(queueURL, body string, attrs map[string]types.MessageAttributeValue) string {
	m.nextID++
	msg := &queuedMessage{
		id:            fmt.Sprintf("msg-%04d", m.nextID),
		body:          body,
		receiptHandle: fmt.Sprintf("rh-%04d", m.nextID),
		attributes:    attrs,
	}
	m.queues[queueURL] = append(m.queues[queueURL], msg)
	return msg.id
}

// Send enqueues a single message body and returns its ID
func (m *SQSClient) Send(queueURL, body string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueue(queueURL, body, nil)
}

// SendMessageBatch enqueues every entry.
func (m *SQSClient) SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	if len(params.Entries) > 10 {
		return nil, &types.TooManyEntriesInBatchRequest{Message: aws.String("too many entries")}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := &sqs.SendMessageBatchOutput{}
	for _, e := range params.Entries {
		id := m.enqueue(aws.ToString(params.QueueUrl), aws.ToString(e.MessageBody), e.MessageAttributes)
		out.Successful = append(out.Successful, types.SendMessageBatchResultEntry{
			Id:        e.Id,
			MessageId: aws.String(id),
		})
	}
	return out, nil
}

// ReceiveMessage hands out up to MaxNumberOfMessages visible messages in
// send order.
func (m *SQSClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receives++

	limit := int(params.MaxNumberOfMessages)
	if limit <= 0 {
		limit = 1
	}

	out := &sqs.ReceiveMessageOutput{}
	for _, msg := range m.queues[aws.ToString(params.QueueUrl)] {
		if len(out.Messages) == limit {
			break
		}
		if msg.inFlight {
			continue
		}
		msg.inFlight = true
		out.Messages = append(out.Messages, types.Message{
			MessageId:         aws.String(msg.id),
			Body:              aws.String(msg.body),
			ReceiptHandle:     aws.String(msg.receiptHandle),
			MessageAttributes: msg.attributes,
		})
	}
	return out, nil
}

// DeleteMessage removes the message holding the receipt handle.
func (m *SQSClient) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueURL := aws.ToString(params.QueueUrl)
	handle := aws.ToString(params.ReceiptHandle)
	msgs := m.queues[queueURL]
	for i, msg := range msgs {
		if msg.receiptHandle != handle {
			continue
		}
		if err := m.DeleteErrors[msg.id]; err != nil {
			return nil, err
		}
		m.queues[queueURL] = append(msgs[:i], msgs[i+1:]...)
		return &sqs.DeleteMessageOutput{}, nil
	}
	return nil, &types.ReceiptHandleIsInvalid{Message: aws.String("unknown receipt handle " + handle)}
}

// Len returns the number of messages still stored for the queue, in flight
// or not.
func (m *SQSClient) Len(queueURL string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[queueURL])
}

// Receives returns how many ReceiveMessage calls were made
func (m *SQSClient) Receives() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receives
}
