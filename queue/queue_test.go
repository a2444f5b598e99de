package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/go-cmp/cmp"

	"github.com/oxford-data-processes/aws-utils/config"
)

// mockSQSClient serves the configured batches in order, then empty responses.
type mockSQSClient struct {
	batches    [][]types.Message
	receiveErr error
	deleteErrs map[string]error // keyed by receipt handle

	receives []*sqs.ReceiveMessageInput
	deleted  []string
}

func (m *mockSQSClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.receives = append(m.receives, params)
	if m.receiveErr != nil {
		return nil, m.receiveErr
	}
	if len(m.batches) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (m *mockSQSClient) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	handle := sdkaws.ToString(params.ReceiptHandle)
	if err := m.deleteErrs[handle]; err != nil {
		return nil, err
	}
	m.deleted = append(m.deleted, handle)
	return &sqs.DeleteMessageOutput{}, nil
}

func (m *mockSQSClient) SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	return &sqs.SendMessageBatchOutput{}, nil
}

func sqsMessage(id, body string) types.Message {
	return types.Message{
		MessageId:     sdkaws.String(id),
		Body:          sdkaws.String(body),
		ReceiptHandle: sdkaws.String("rh-" + id),
	}
}

func testConfig() config.Queue {
	return config.Queue{MaxMessages: 10, WaitTimeSeconds: 5}
}

const queueURL = "https://sqs.eu-west-2.amazonaws.com/123456789012/stock-queue"

func TestDrainAllOrdersByTimestamp(t *testing.T) {
	client := &mockSQSClient{batches: [][]types.Message{
		{
			sqsMessage("2", `{"ts":"2024-01-02T00:00:00"}`),
			sqsMessage("1", `{"ts":"2024-01-01T00:00:00"}`),
		},
		{
			sqsMessage("3", `{"ts":"2024-01-03T00:00:00"}`),
		},
	}}

	msgs, err := NewDrainer(client, testConfig()).DrainAll(context.Background(), queueURL)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	var got []string
	for _, m := range msgs {
		got = append(got, m.Timestamp)
	}
	want := []string{"2024-01-01T00:00:00", "2024-01-02T00:00:00", "2024-01-03T00:00:00"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("timestamps mismatch (-want +got):\n%s", diff)
	}

	if len(client.receives) != 3 {
		t.Errorf("expected 3 receive calls, got %d", len(client.receives))
	}
	in := client.receives[0]
	if in.MaxNumberOfMessages != 10 || in.WaitTimeSeconds != 5 {
		t.Errorf("unexpected receive parameters: max=%d wait=%d", in.MaxNumberOfMessages, in.WaitTimeSeconds)
	}
	if diff := cmp.Diff([]string{"All"}, in.MessageAttributeNames); diff != "" {
		t.Errorf("attribute names mismatch (-want +got):\n%s", diff)
	}
	if len(client.deleted) != 0 {
		t.Errorf("expected no deletes, got %v", client.deleted)
	}
}

func TestDrainAllMissingTimestamp(t *testing.T) {
	client := &mockSQSClient{batches: [][]types.Message{{
		sqsMessage("a", "no timestamp here"),
		sqsMessage("b", "stock update at 2024-03-01T09:30:00 and 2024-01-01T00:00:00"),
		sqsMessage("c", "also without one"),
	}}}

	msgs, err := NewDrainer(client, testConfig()).DrainAll(context.Background(), queueURL)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	want := []Message{
		{ID: "b", Body: "stock update at 2024-03-01T09:30:00 and 2024-01-01T00:00:00", ReceiptHandle: "rh-b", Timestamp: "2024-03-01T09:30:00"},
		{ID: "a", Body: "no timestamp here", ReceiptHandle: "rh-a"},
		{ID: "c", Body: "also without one", ReceiptHandle: "rh-c"},
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestDrainAllEqualTimestampsKeepReceiveOrder(t *testing.T) {
	tests := []struct {
		name    string
		batches [][]types.Message
		want    []string
	}{
		{
			name: "ties across batches",
			batches: [][]types.Message{
				{
					sqsMessage("a", "2024-01-02T00:00:00 early"),
					sqsMessage("b", "2024-01-05T12:00:00 tie one"),
					sqsMessage("x", "no timestamp"),
					sqsMessage("c", "2024-01-05T12:00:00 tie two"),
				},
				{
					sqsMessage("d", "2024-01-01T00:00:00 earliest"),
					sqsMessage("e", "2024-01-05T12:00:00 tie three"),
					sqsMessage("f", "2024-01-09T00:00:00 latest"),
					sqsMessage("y", "still no timestamp"),
				},
			},
			want: []string{"d", "a", "b", "c", "e", "f", "x", "y"},
		},
		{
			name: "every message shares one timestamp",
			batches: [][]types.Message{
				{
					sqsMessage("3", "2024-06-01T10:00:00"),
					sqsMessage("1", "2024-06-01T10:00:00"),
				},
				{
					sqsMessage("2", "2024-06-01T10:00:00"),
					sqsMessage("0", "2024-06-01T10:00:00"),
				},
			},
			want: []string{"3", "1", "2", "0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockSQSClient{batches: tt.batches}
			msgs, err := NewDrainer(client, testConfig()).DrainAll(context.Background(), queueURL)
			if err != nil {
				t.Fatalf("drain failed: %v", err)
			}

			got := make([]string, len(msgs))
			for i, m := range msgs {
				got[i] = m.ID
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSortByTimestampStable(t *testing.T) {
	var msgs []Message
	for i := 0; i < 40; i++ {
		ts := "2024-01-01T00:00:00"
		if i%4 == 0 {
			ts = ""
		}
		msgs = append(msgs, Message{ID: fmt.Sprintf("m%02d", i), Timestamp: ts})
	}
	msgs = append([]Message{{ID: "late", Timestamp: "2024-02-01T00:00:00"}}, msgs...)

	SortByTimestamp(msgs)

	var ties, untimed []string
	for _, m := range msgs {
		switch m.Timestamp {
		case "2024-01-01T00:00:00":
			ties = append(ties, m.ID)
		case "":
			untimed = append(untimed, m.ID)
		}
	}
	if msgs[len(ties)].ID != "late" {
		t.Errorf("msgs[%d] = %s, want late after the tied group", len(ties), msgs[len(ties)].ID)
	}
	for i := 1; i < len(ties); i++ {
		if ties[i-1] > ties[i] {
			t.Fatalf("tied messages reordered: %v", ties)
		}
	}
	for i := 1; i < len(untimed); i++ {
		if untimed[i-1] > untimed[i] {
			t.Fatalf("untimestamped messages reordered: %v", untimed)
		}
	}
}

func TestDrainAllLengthMatchesReceived(t *testing.T) {
	client := &mockSQSClient{batches: [][]types.Message{
		{sqsMessage("1", "x"), sqsMessage("2", "y"), sqsMessage("3", "z")},
		{sqsMessage("4", "x")},
		{},
		{sqsMessage("never", "after empty")},
	}}

	d := NewDrainer(client, testConfig())
	msgs, err := d.DrainAll(context.Background(), queueURL)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(msgs) != 4 {
		t.Errorf("expected 4 messages, got %d", len(msgs))
	}
	if got := d.Metrics().GenerateReport().Received; got != 4 {
		t.Errorf("expected 4 received in metrics, got %d", got)
	}
}

func TestDrainAllEmptyQueue(t *testing.T) {
	client := &mockSQSClient{}

	msgs, err := NewDrainer(client, testConfig()).DrainAll(context.Background(), queueURL)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", msgs)
	}
}

func TestDrainAllStrictMode(t *testing.T) {
	cfg := testConfig()
	cfg.RequireMessages = true

	_, err := NewDrainer(&mockSQSClient{}, cfg).DrainAll(context.Background(), queueURL)
	if !errors.Is(err, ErrNoMessages) {
		t.Errorf("expected ErrNoMessages, got %v", err)
	}
}

func TestDrainAllReceiveError(t *testing.T) {
	boom := errors.New("access denied")
	client := &mockSQSClient{receiveErr: boom}

	msgs, err := NewDrainer(client, testConfig()).DrainAll(context.Background(), queueURL)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped receive error, got %v", err)
	}
	if msgs != nil {
		t.Errorf("expected no messages, got %v", msgs)
	}
}

func TestDrainAllDeletesFailOpen(t *testing.T) {
	client := &mockSQSClient{
		batches: [][]types.Message{{
			sqsMessage("1", "2024-01-01T00:00:00"),
			sqsMessage("2", "2024-01-02T00:00:00"),
			sqsMessage("3", "2024-01-03T00:00:00"),
		}},
		deleteErrs: map[string]error{"rh-2": errors.New("receipt handle expired")},
	}
	cfg := testConfig()
	cfg.DeleteAfterDrain = true

	d := NewDrainer(client, cfg)
	msgs, err := d.DrainAll(context.Background(), queueURL)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("expected all 3 messages returned, got %d", len(msgs))
	}
	if diff := cmp.Diff([]string{"rh-1", "rh-3"}, client.deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}

	report := d.Metrics().GenerateReport()
	if report.Deleted != 2 || report.DeleteFailures != 1 {
		t.Errorf("expected 2 deleted and 1 failure, got %d and %d", report.Deleted, report.DeleteFailures)
	}
}

func TestDrainAllAttributes(t *testing.T) {
	m := sqsMessage("1", "2024-01-01T00:00:00")
	m.MessageAttributes = map[string]types.MessageAttributeValue{
		"source": {DataType: sdkaws.String("String"), StringValue: sdkaws.String("feed")},
	}
	client := &mockSQSClient{batches: [][]types.Message{{m}}}

	msgs, err := NewDrainer(client, testConfig()).DrainAll(context.Background(), queueURL)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if got := msgs[0].Attributes["source"]; got != "feed" {
		t.Errorf("expected attribute source=feed, got %q", got)
	}
}

func TestExtractTimestamp(t *testing.T) {
	testCases := []struct {
		body   string
		want   string
		wantOK bool
	}{
		{`{"created":"2023-11-05T14:03:59Z"}`, "2023-11-05T14:03:59", true},
		{"2023-11-05 14:03:59", "", false},
		{"", "", false},
		{"first 2020-01-01T00:00:00 second 2019-01-01T00:00:00", "2020-01-01T00:00:00", true},
	}

	for _, tc := range testCases {
		got, ok := ExtractTimestamp(tc.body)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("ExtractTimestamp(%q) = %q, %v; want %q, %v", tc.body, got, ok, tc.want, tc.wantOK)
		}
	}
}
