package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/oxford-data-processes/aws-utils/aws"
	"github.com/oxford-data-processes/aws-utils/config"
	"github.com/oxford-data-processes/aws-utils/metrics"
)

type fakeAthena struct {
	rows [][]*string
}

func (f *fakeAthena) StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	return &athena.StartQueryExecutionOutput{QueryExecutionId: sdkaws.String("q-1")}, nil
}

func (f *fakeAthena) GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	return &athena.GetQueryExecutionOutput{
		QueryExecution: &athenatypes.QueryExecution{
			Status: &athenatypes.QueryExecutionStatus{State: athenatypes.QueryExecutionStateSucceeded},
		},
	}, nil
}

func (f *fakeAthena) GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	rows := make([]athenatypes.Row, len(f.rows))
	for i, cells := range f.rows {
		data := make([]athenatypes.Datum, len(cells))
		for j, c := range cells {
			data[j] = athenatypes.Datum{VarCharValue: c}
		}
		rows[i] = athenatypes.Row{Data: data}
	}
	return &athena.GetQueryResultsOutput{ResultSet: &athenatypes.ResultSet{Rows: rows}}, nil
}

type fakeSQS struct {
	batches [][]sqstypes.Message
	calls   int
	deleted []string
	log     *[]string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	defer func() { f.calls++ }()
	if f.calls >= len(f.batches) {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	return &sqs.ReceiveMessageOutput{Messages: f.batches[f.calls]}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, *params.ReceiptHandle)
	if f.log != nil {
		*f.log = append(*f.log, "delete")
	}
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	return &sqs.SendMessageBatchOutput{}, nil
}

type fakeDynamoDB struct {
	err   error
	items int
	log   *[]string
}

func (f *fakeDynamoDB) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if f.log != nil {
		*f.log = append(*f.log, "archive")
	}
	if f.err != nil {
		return nil, f.err
	}
	for _, reqs := range params.RequestItems {
		f.items += len(reqs)
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.AWS.Region = "eu-west-2"
	cfg.Athena.Database = "sales"
	cfg.Athena.OutputBucket = "results-bucket"
	cfg.Athena.PollInterval = time.Millisecond
	cfg.Queue.WaitTimeSeconds = 0
	return cfg
}

func sqsMessage(id, body string) sqstypes.Message {
	return sqstypes.Message{
		MessageId:     sdkaws.String(id),
		Body:          sdkaws.String(body),
		ReceiptHandle: sdkaws.String("rh-" + id),
	}
}

// runCLI executes the root command against the given clients and returns
// stdout, stderr and the command error.
func runCLI(t *testing.T, clients *aws.Clients, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{
		cfg:     testConfig(),
		metrics: metrics.NewMetrics(),
		stdout:  &stdout,
		stderr:  &stderr,
		newClients: func(ctx context.Context, cfg config.AWS) (*aws.Clients, error) {
			return clients, nil
		},
	}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestQueryCommandJSON(t *testing.T) {
	athenaFake := &fakeAthena{rows: [][]*string{
		{sdkaws.String("sku"), sdkaws.String("qty")},
		{sdkaws.String("A1"), sdkaws.String("5")},
		{sdkaws.String("B2"), nil},
	}}

	stdout, _, err := runCLI(t, &aws.Clients{Athena: athenaFake}, "query", "SELECT sku, qty FROM stock", "-o", "json")
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	var got []map[string]*string
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	want := []map[string]*string{
		{"sku": sdkaws.String("A1"), "qty": sdkaws.String("5")},
		{"sku": sdkaws.String("B2"), "qty": nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryCommandText(t *testing.T) {
	athenaFake := &fakeAthena{rows: [][]*string{
		{sdkaws.String("sku"), sdkaws.String("qty")},
		{sdkaws.String("B2"), nil},
	}}

	stdout, _, err := runCLI(t, &aws.Clients{Athena: athenaFake}, "query", "SELECT 1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), stdout)
	}
	if fields := strings.Fields(lines[0]); !cmp.Equal(fields, []string{"qty", "sku"}) {
		t.Errorf("header = %v, want [qty sku]", fields)
	}
	if fields := strings.Fields(lines[1]); !cmp.Equal(fields, []string{"NULL", "B2"}) {
		t.Errorf("row = %v, want [NULL B2]", fields)
	}
}

func TestQueryCommandNoRows(t *testing.T) {
	athenaFake := &fakeAthena{rows: [][]*string{{sdkaws.String("sku")}}}

	stdout, _, err := runCLI(t, &aws.Clients{Athena: athenaFake}, "query", "SELECT sku FROM empty")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if strings.TrimSpace(stdout) != "(no rows)" {
		t.Errorf("stdout = %q, want (no rows)", stdout)
	}
}

func TestQueryCommandRequiresSQL(t *testing.T) {
	_, _, err := runCLI(t, &aws.Clients{Athena: &fakeAthena{}}, "query")
	if err == nil {
		t.Fatal("expected an argument error")
	}
}

func TestQueryCommandValidatesConfig(t *testing.T) {
	_, _, err := runCLI(t, &aws.Clients{Athena: &fakeAthena{}}, "query", "SELECT 1", "--output-bucket", "bucket/with/path")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("got %v, want an invalid configuration error", err)
	}
}

func TestInvalidOutputFormat(t *testing.T) {
	_, _, err := runCLI(t, &aws.Clients{Athena: &fakeAthena{}}, "query", "SELECT 1", "-o", "yaml")
	if err == nil || !strings.Contains(err.Error(), "unsupported output format") {
		t.Fatalf("got %v, want an output format error", err)
	}
}

func TestStatsReport(t *testing.T) {
	athenaFake := &fakeAthena{rows: [][]*string{
		{sdkaws.String("n")},
		{sdkaws.String("1")},
	}}

	_, stderr, err := runCLI(t, &aws.Clients{Athena: athenaFake}, "query", "SELECT 1 AS n", "--stats", "--log-level", "error")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if stderr == "" {
		t.Error("expected a report on stderr")
	}
}

func TestDrainCommand(t *testing.T) {
	sqsFake := &fakeSQS{batches: [][]sqstypes.Message{
		{
			sqsMessage("m1", "stock update 2024-06-01T10:00:05"),
			sqsMessage("m2", "no timestamp here"),
		},
		{sqsMessage("m3", "stock update 2024-06-01T09:59:59")},
	}}

	stdout, _, err := runCLI(t, &aws.Clients{SQS: sqsFake},
		"drain", "--queue-url", "https://sqs.eu-west-2.amazonaws.com/123456789012/feed", "-o", "json")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	var got []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	if diff := cmp.Diff([]string{"m3", "m1", "m2"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if len(sqsFake.deleted) != 0 {
		t.Errorf("deleted %v without --delete", sqsFake.deleted)
	}
}

func TestDrainCommandRequiresURL(t *testing.T) {
	_, _, err := runCLI(t, &aws.Clients{SQS: &fakeSQS{}}, "drain")
	if err == nil || !strings.Contains(err.Error(), "queue URL is required") {
		t.Fatalf("got %v, want a missing URL error", err)
	}
}

func TestDrainCommandArchivesBeforeDelete(t *testing.T) {
	var calls []string
	sqsFake := &fakeSQS{
		batches: [][]sqstypes.Message{{
			sqsMessage("m1", "2024-06-01T10:00:00"),
			sqsMessage("m2", "2024-06-01T10:00:01"),
		}},
		log: &calls,
	}
	ddbFake := &fakeDynamoDB{log: &calls}

	_, _, err := runCLI(t, &aws.Clients{SQS: sqsFake, DynamoDB: ddbFake},
		"drain", "--queue-url", "https://sqs.eu-west-2.amazonaws.com/123456789012/feed",
		"--archive-table", "feed-archive", "--delete")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if diff := cmp.Diff([]string{"archive", "delete", "delete"}, calls); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	if ddbFake.items != 2 {
		t.Errorf("archived %d items, want 2", ddbFake.items)
	}
	if diff := cmp.Diff([]string{"rh-m1", "rh-m2"}, sqsFake.deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
}

func TestDrainCommandKeepsMessagesWhenArchiveFails(t *testing.T) {
	sqsFake := &fakeSQS{batches: [][]sqstypes.Message{{sqsMessage("m1", "2024-06-01T10:00:00")}}}
	ddbFake := &fakeDynamoDB{err: errors.New("validation failed")}

	_, _, err := runCLI(t, &aws.Clients{SQS: sqsFake, DynamoDB: ddbFake},
		"drain", "--queue-url", "https://sqs.eu-west-2.amazonaws.com/123456789012/feed",
		"--archive-table", "feed-archive", "--delete")
	if err == nil {
		t.Fatal("expected the archive error")
	}
	if len(sqsFake.deleted) != 0 {
		t.Errorf("deleted %v after a failed archive", sqsFake.deleted)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "text info", level: "info", format: "text"},
		{name: "json debug", level: "debug", format: "json"},
		{name: "bad level", level: "loud", format: "text", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newLogger(&bytes.Buffer{}, tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("newLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
