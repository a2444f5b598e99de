package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Notification is a message published to the mock topic.
type Notification struct {
	TopicARN string
	Subject  string
	Message  string
}

// SNSClient records published notifications.
type SNSClient struct {
	mu        sync.Mutex
	published []Notification
}

// NewSNSClient creates a mock SNS client
func NewSNSClient() *SNSClient {
	return &SNSClient{}
}

// Publish implements aws.SNSClient.
func (m *SNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.published = append(m.published, Notification{
		TopicARN: aws.ToString(params.TopicArn),
		Subject:  aws.ToString(params.Subject),
		Message:  aws.ToString(params.Message),
	})
	return &sns.PublishOutput{MessageId: aws.String(fmt.Sprintf("sns-%04d", len(m.published)))}, nil
}

// Published returns every notification in publish order.
func (m *SNSClient) Published() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.published...)
}
