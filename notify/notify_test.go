package notify

import (
	"context"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type mockSNSClient struct {
	inputs []*sns.PublishInput
	err    error
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{MessageId: sdkaws.String("msg-1")}, nil
}

const topic = "arn:aws:sns:eu-west-2:123456789012:stock-notifications"

func TestSend(t *testing.T) {
	client := &mockSNSClient{}
	n := NewNotifier(client, topic, "Stock Feed Processed", nil)

	id, err := n.Send(context.Background(), "feed processed: 42 rows")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if id != "msg-1" {
		t.Errorf("expected message ID msg-1, got %q", id)
	}

	in := client.inputs[0]
	if sdkaws.ToString(in.TopicArn) != topic {
		t.Errorf("unexpected topic %q", sdkaws.ToString(in.TopicArn))
	}
	if sdkaws.ToString(in.Subject) != "Stock Feed Processed" {
		t.Errorf("unexpected subject %q", sdkaws.ToString(in.Subject))
	}
	if sdkaws.ToString(in.Message) != "feed processed: 42 rows" {
		t.Errorf("unexpected message %q", sdkaws.ToString(in.Message))
	}
}

func TestSendWithoutSubject(t *testing.T) {
	client := &mockSNSClient{}
	if _, err := NewNotifier(client, topic, "", nil).Send(context.Background(), "hi"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if client.inputs[0].Subject != nil {
		t.Errorf("expected no subject, got %q", *client.inputs[0].Subject)
	}
}

func TestSendEmptyMessage(t *testing.T) {
	client := &mockSNSClient{}
	if _, err := NewNotifier(client, topic, "s", nil).Send(context.Background(), ""); err == nil {
		t.Error("expected error for empty message")
	}
	if len(client.inputs) != 0 {
		t.Error("expected no publish call")
	}
}

func TestSendError(t *testing.T) {
	client := &mockSNSClient{err: errors.New("topic does not exist")}
	if _, err := NewNotifier(client, topic, "s", nil).Send(context.Background(), "hi"); !errors.Is(err, client.err) {
		t.Errorf("expected wrapped publish error, got %v", err)
	}
}
