// Package events publishes JSON events to EventBridge buses and validates
// event details against JSON schemas.
package events

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	json "github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/oxford-data-processes/aws-utils/aws"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrUnknownSchema is returned by Schema for names with no embedded schema.
var ErrUnknownSchema = errors.New("unknown event schema")

// PublishError is returned when EventBridge accepts the request but rejects
// the entry.
type PublishError struct {
	EventBus     string
	FailedCount  int32
	ErrorCode    string
	ErrorMessage string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish event to %s: %d failed entries (%s: %s)",
		e.EventBus, e.FailedCount, e.ErrorCode, e.ErrorMessage)
}

// ValidationError lists every schema violation of a detail.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "event detail failed validation: " + strings.Join(e.Problems, "; ")
}

// Schema returns the embedded schema with the given name, e.g. "S3PutObject".
func Schema(name string) ([]byte, error) {
	data, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	return data, nil
}

// Validate checks detail against a JSON schema document.
func Validate(detail any, schema []byte) error {
	doc, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to encode event detail: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to validate event detail: %w", err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{}
	for _, desc := range result.Errors() {
		verr.Problems = append(verr.Problems, desc.String())
	}
	return verr
}

// Publisher puts single events on EventBridge buses.
type Publisher struct {
	client aws.EventBridgeClient
	logger *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(client aws.EventBridgeClient, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, logger: logger}
}

// Publish encodes detail as JSON and puts it on bus. It returns the event ID
// assigned by EventBridge, or a *PublishError when the entry was rejected.
func (p *Publisher) Publish(ctx context.Context, bus, source, detailType string, detail any) (string, error) {
	data, err := json.Marshal(detail)
	if err != nil {
		return "", fmt.Errorf("failed to encode event detail: %w", err)
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: &bus,
			Source:       &source,
			DetailType:   &detailType,
			Detail:       sdkaws.String(string(data)),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to put event on %s: %w", bus, err)
	}

	if out.FailedEntryCount != 0 {
		perr := &PublishError{EventBus: bus, FailedCount: out.FailedEntryCount}
		for _, e := range out.Entries {
			if e.ErrorCode != nil {
				perr.ErrorCode = sdkaws.ToString(e.ErrorCode)
				perr.ErrorMessage = sdkaws.ToString(e.ErrorMessage)
				break
			}
		}
		return "", perr
	}

	var id string
	if len(out.Entries) > 0 {
		id = sdkaws.ToString(out.Entries[0].EventId)
	}
	p.logger.InfoContext(ctx, "event published", "bus", bus, "source", source, "detailType", detailType, "eventId", id)
	return id, nil
}
