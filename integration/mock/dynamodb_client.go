package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBClient is a mock implementation of aws.DynamoDBClient for testing.
// Items are stored per table under a composite key built from the archive
// key attributes queue and message_id.
type DynamoDBClient struct {
	mu          sync.RWMutex
	tableData   map[string]map[string]map[string]types.AttributeValue
	batchWrites []dynamodb.BatchWriteItemInput

	failMu          sync.Mutex
	failNextWrite   bool
	unprocessedNext int
}

// NewDynamoDBClient creates a new mock DynamoDB client
func NewDynamoDBClient() *DynamoDBClient {
	return &DynamoDBClient{
		tableData: make(map[string]map[string]map[string]types.AttributeValue),
	}
}

// compositeKey joins the archive key attributes into a single map key.
func compositeKey(item map[string]types.AttributeValue) string {
	return attributeToString(item["queue"]) + "#" + attributeToString(item["message_id"])
}

// attributeToString converts an AttributeValue to a string for key generation
func attributeToString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		return ""
	}
}

// SetFailNextWrite configures the client to fail the next write operation
func (m *DynamoDBClient) SetFailNextWrite(fail bool) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.failNextWrite = fail
}

// SetUnprocessedNext makes the next write hand back its last n requests as
// unprocessed items.
func (m *DynamoDBClient) SetUnprocessedNext(n int) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.unprocessedNext = n
}

// shouldFail safely checks and resets the failure flags
func (m *DynamoDBClient) shouldFail() (bool, int) {
	m.failMu.Lock()
	defer m.failMu.Unlock()

	fail, unprocessed := m.failNextWrite, m.unprocessedNext
	m.failNextWrite = false
	m.unprocessedNext = 0
	return fail, unprocessed
}

// BatchWriteItem stores put requests and applies delete requests.
func (m *DynamoDBClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batchWrites = append(m.batchWrites, *params)

	fail, unprocessed := m.shouldFail()
	if fail {
		return nil, fmt.Errorf("simulated batch write failure")
	}

	out := &dynamodb.BatchWriteItemOutput{
		UnprocessedItems: make(map[string][]types.WriteRequest),
	}
	for tableName, writeRequests := range params.RequestItems {
		if _, exists := m.tableData[tableName]; !exists {
			m.tableData[tableName] = make(map[string]map[string]types.AttributeValue)
		}

		if unprocessed > 0 {
			cut := max(len(writeRequests)-unprocessed, 0)
			out.UnprocessedItems[tableName] = writeRequests[cut:]
			writeRequests = writeRequests[:cut]
		}

		for _, writeRequest := range writeRequests {
			if writeRequest.PutRequest != nil {
				item := writeRequest.PutRequest.Item
				m.tableData[tableName][compositeKey(item)] = item
			}
			if writeRequest.DeleteRequest != nil {
				delete(m.tableData[tableName], compositeKey(writeRequest.DeleteRequest.Key))
			}
		}
	}

	return out, nil
}

// Items returns the stored items of a table ordered by composite key.
func (m *DynamoDBClient) Items(tableName string) []map[string]types.AttributeValue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data := m.tableData[tableName]
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		items[i] = data[k]
	}
	return items
}

// GetBatchWrites returns the batch write requests that were made
func (m *DynamoDBClient) GetBatchWrites() []dynamodb.BatchWriteItemInput {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]dynamodb.BatchWriteItemInput(nil), m.batchWrites...)
}
