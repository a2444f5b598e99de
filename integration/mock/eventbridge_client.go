package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

// Event is an entry accepted by the mock event bus.
type Event struct {
	ID         string
	Source     string
	DetailType string
	Detail     string
}

// EventBridgeClient records PutEvents entries per bus. Buses listed in
// MissingBuses reject their entries the way EventBridge does for an unknown
// bus: the request succeeds and the entry carries an error code.
type EventBridgeClient struct {
	mu           sync.Mutex
	buses        map[string][]Event
	nextID       int
	MissingBuses map[string]bool
}

// NewEventBridgeClient creates a mock EventBridge client
func NewEventBridgeClient() *EventBridgeClient {
	return &EventBridgeClient{
		buses:        make(map[string][]Event),
		MissingBuses: make(map[string]bool),
	}
}

// PutEvents implements aws.EventBridgeClient.
func (m *EventBridgeClient) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := &eventbridge.PutEventsOutput{}
	for _, e := range params.Entries {
		bus := aws.ToString(e.EventBusName)
		if m.MissingBuses[bus] {
			out.FailedEntryCount++
			out.Entries = append(out.Entries, types.PutEventsResultEntry{
				ErrorCode:    aws.String("ResourceNotFoundException"),
				ErrorMessage: aws.String("Event bus " + bus + " does not exist."),
			})
			continue
		}

		m.nextID++
		id := fmt.Sprintf("evt-%04d", m.nextID)
		m.buses[bus] = append(m.buses[bus], Event{
			ID:         id,
			Source:     aws.ToString(e.Source),
			DetailType: aws.ToString(e.DetailType),
			Detail:     aws.ToString(e.Detail),
		})
		out.Entries = append(out.Entries, types.PutEventsResultEntry{EventId: aws.String(id)})
	}
	return out, nil
}

// Events returns the entries accepted on a bus, in order.
func (m *EventBridgeClient) Events(bus string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.buses[bus]...)
}
