package mock

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
)

type execution struct {
	input  athena.StartQueryExecutionInput
	polls  int
	result *QueryResult
}

// QueryResult is the outcome a mock query settles into.
type QueryResult struct {
	// Header names the columns and becomes the first row of the first page
	Header []string
	Rows   [][]*string
	// FinalState defaults to SUCCEEDED
	FinalState types.QueryExecutionState
	Reason     string
}

// AthenaClient is a stateful mock of aws.AthenaClient. Each execution
// reports QUEUED, then RUNNING for RunningPolls polls, then its final state.
// Results are served in pages of PageSize rows, counting the header.
type AthenaClient struct {
	mu           sync.Mutex
	executions   map[string]*execution
	tokens       map[string]string
	results      map[string]*QueryResult
	nextID       int
	RunningPolls int
	PageSize     int
}

// NewAthenaClient creates a mock Athena client
func NewAthenaClient() *AthenaClient {
	return &AthenaClient{
		executions: make(map[string]*execution),
		tokens:     make(map[string]string),
		results:    make(map[string]*QueryResult),
		PageSize:   1000,
	}
}

// SetResult registers the outcome for an exact query string.
func (m *AthenaClient) SetResult(sql string, result QueryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[sql] = &result
}

// StartQueryExecution registers an execution. A repeated client request
// token returns the original execution ID.
func (m *AthenaClient) StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token := aws.ToString(params.ClientRequestToken); token != "" {
		if id, ok := m.tokens[token]; ok {
			return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String(id)}, nil
		}
	}

	result, ok := m.results[aws.ToString(params.QueryString)]
	if !ok {
		return nil, &types.InvalidRequestException{Message: aws.String("no result registered for query")}
	}

	m.nextID++
	id := fmt.Sprintf("qe-%04d", m.nextID)
	m.executions[id] = &execution{input: *params, result: result}
	if token := aws.ToString(params.ClientRequestToken); token != "" {
		m.tokens[token] = id
	}
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String(id)}, nil
}

// GetQueryExecution advances the execution one step per call.
func (m *AthenaClient) GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := aws.ToString(params.QueryExecutionId)
	exec, ok := m.executions[id]
	if !ok {
		return nil, &types.InvalidRequestException{Message: aws.String("unknown execution " + id)}
	}

	status := &types.QueryExecutionStatus{}
	switch {
	case exec.polls == 0:
		status.State = types.QueryExecutionStateQueued
	case exec.polls <= m.RunningPolls:
		status.State = types.QueryExecutionStateRunning
	default:
		status.State = exec.result.FinalState
		if status.State == "" {
			status.State = types.QueryExecutionStateSucceeded
		}
		if exec.result.Reason != "" {
			status.StateChangeReason = aws.String(exec.result.Reason)
		}
	}
	exec.polls++

	return &athena.GetQueryExecutionOutput{
		QueryExecution: &types.QueryExecution{
			QueryExecutionId: aws.String(id),
			Query:            exec.input.QueryString,
			WorkGroup:        exec.input.WorkGroup,
			Status:           status,
		},
	}, nil
}

// GetQueryResults serves the header plus rows in pages.
func (m *AthenaClient) GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := aws.ToString(params.QueryExecutionId)
	exec, ok := m.executions[id]
	if !ok {
		return nil, &types.InvalidRequestException{Message: aws.String("unknown execution " + id)}
	}

	all := make([]types.Row, 0, len(exec.result.Rows)+1)
	header := make([]types.Datum, len(exec.result.Header))
	for i, name := range exec.result.Header {
		header[i] = types.Datum{VarCharValue: aws.String(name)}
	}
	all = append(all, types.Row{Data: header})
	for _, cells := range exec.result.Rows {
		data := make([]types.Datum, len(cells))
		for i, c := range cells {
			data[i] = types.Datum{VarCharValue: c}
		}
		all = append(all, types.Row{Data: data})
	}

	start := 0
	if token := aws.ToString(params.NextToken); token != "" {
		n, err := strconv.Atoi(token)
		if err != nil {
			return nil, &types.InvalidRequestException{Message: aws.String("bad token " + token)}
		}
		start = n
	}
	end := min(start+m.PageSize, len(all))

	out := &athena.GetQueryResultsOutput{
		ResultSet: &types.ResultSet{Rows: all[start:end]},
	}
	if end < len(all) {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

// Started returns the inputs of every execution started so far.
func (m *AthenaClient) Started() []athena.StartQueryExecutionInput {
	m.mu.Lock()
	defer m.mu.Unlock()

	inputs := make([]athena.StartQueryExecutionInput, 0, len(m.executions))
	for i := 1; i <= m.nextID; i++ {
		inputs = append(inputs, m.executions[fmt.Sprintf("qe-%04d", i)].input)
	}
	return inputs
}
