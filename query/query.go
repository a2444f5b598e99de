// Package query runs SQL against Athena: it submits a query, polls until the
// execution reaches a terminal state and flattens the paginated result set
// into rows keyed by column name.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/google/uuid"

	"github.com/oxford-data-processes/aws-utils/aws"
	"github.com/oxford-data-processes/aws-utils/config"
	"github.com/oxford-data-processes/aws-utils/metrics"
)

// Status is the observed state of a query execution. The runner never
// changes it, it only reads what Athena reports.
type Status int

const (
	StatusRunning Status = iota // Queued or running
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusSucceeded:
		return "SUCCEEDED"
	case StatusFailed:
		return "FAILED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

func statusFromState(state types.QueryExecutionState) Status {
	switch state {
	case types.QueryExecutionStateSucceeded:
		return StatusSucceeded
	case types.QueryExecutionStateFailed:
		return StatusFailed
	case types.QueryExecutionStateCancelled:
		return StatusCancelled
	default:
		return StatusRunning
	}
}

// Row maps a column name to a cell value. A nil value means Athena returned
// no value for the cell.
type Row map[string]*string

// QueryExecutionError is returned when a query ends in a terminal state other
// than SUCCEEDED.
type QueryExecutionError struct {
	QueryID string
	Status  Status
	Reason  string // StateChangeReason reported by Athena, if any
}

func (e *QueryExecutionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("query %s finished with status %s: %s", e.QueryID, e.Status, e.Reason)
	}
	return fmt.Sprintf("query %s finished with status %s", e.QueryID, e.Status)
}

// ErrPollTimeout is returned when MaxWait elapses before the query reaches a
// terminal state.
var ErrPollTimeout = errors.New("query did not reach a terminal state in time")

// Runner submits queries with a fixed execution context.
type Runner struct {
	client   aws.AthenaClient
	cfg      config.Athena
	metrics  *metrics.Metrics
	logger   *slog.Logger
	newToken func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for poll and page progress.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics shares a metrics collector with the runner.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a Runner. cfg is expected to have passed Validate.
func NewRunner(client aws.AthenaClient, cfg config.Athena, opts ...Option) *Runner {
	r := &Runner{
		client:   client,
		cfg:      cfg,
		metrics:  metrics.NewMetrics(),
		logger:   slog.Default(),
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metrics returns the collector the runner records into.
func (r *Runner) Metrics() *metrics.Metrics {
	return r.metrics
}

// Run submits sql, waits for it to finish and returns every data row.
// A query that ends FAILED or CANCELLED yields a *QueryExecutionError and no rows.
func (r *Runner) Run(ctx context.Context, sql string) ([]Row, error) {
	id, err := r.Submit(ctx, sql)
	if err != nil {
		return nil, err
	}
	if err := r.Wait(ctx, id); err != nil {
		return nil, err
	}
	return r.Results(ctx, id)
}

// Submit starts the query and returns its execution ID.
func (r *Runner) Submit(ctx context.Context, sql string) (string, error) {
	start := time.Now()
	out, err := r.client.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString:        &sql,
		ClientRequestToken: sdkaws.String(r.newToken()),
		QueryExecutionContext: &types.QueryExecutionContext{
			Database: sdkaws.String(r.cfg.Database),
		},
		ResultConfiguration: &types.ResultConfiguration{
			OutputLocation: sdkaws.String(r.cfg.OutputLocation()),
		},
		WorkGroup: sdkaws.String(r.cfg.Workgroup),
	})
	r.metrics.RecordRemoteTime(time.Since(start))
	if err != nil {
		r.metrics.RecordError()
		return "", fmt.Errorf("failed to start query: %w", err)
	}
	if out.QueryExecutionId == nil {
		r.metrics.RecordError()
		return "", fmt.Errorf("start query returned no execution ID")
	}

	r.logger.DebugContext(ctx, "query submitted", "queryId", *out.QueryExecutionId, "workgroup", r.cfg.Workgroup)
	return *out.QueryExecutionId, nil
}

// Wait polls the execution every PollInterval until it is terminal. It returns
// nil only for SUCCEEDED.
func (r *Runner) Wait(ctx context.Context, id string) error {
	var deadline time.Time
	if r.cfg.MaxWait > 0 {
		deadline = time.Now().Add(r.cfg.MaxWait)
	}

	for {
		status, reason, err := r.status(ctx, id)
		if err != nil {
			return err
		}
		if status.Terminal() {
			r.logger.DebugContext(ctx, "query finished", "queryId", id, "status", status.String())
			if status != StatusSucceeded {
				return &QueryExecutionError{QueryID: id, Status: status, Reason: reason}
			}
			return nil
		}

		if !deadline.IsZero() && time.Now().Add(r.cfg.PollInterval).After(deadline) {
			r.metrics.RecordError()
			return fmt.Errorf("query %s: %w", id, ErrPollTimeout)
		}

		select {
		case <-time.After(r.cfg.PollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Runner) status(ctx context.Context, id string) (Status, string, error) {
	start := time.Now()
	out, err := r.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: &id,
	})
	r.metrics.RecordRemoteTime(time.Since(start))
	r.metrics.RecordPoll()
	if err != nil {
		r.metrics.RecordError()
		return StatusRunning, "", fmt.Errorf("failed to get status of query %s: %w", id, err)
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return StatusRunning, "", nil
	}

	st := out.QueryExecution.Status
	return statusFromState(st.State), sdkaws.ToString(st.StateChangeReason), nil
}

// Results pages through the result set of a finished query. The first row of
// the first non-empty page names the columns; every later row, on any page,
// is data.
func (r *Runner) Results(ctx context.Context, id string) ([]Row, error) {
	var (
		header    []string
		nextToken *string
	)
	rows := make([]Row, 0)

	for page := 0; ; page++ {
		start := time.Now()
		out, err := r.client.GetQueryResults(ctx, &athena.GetQueryResultsInput{
			QueryExecutionId: &id,
			NextToken:        nextToken,
		})
		r.metrics.RecordRemoteTime(time.Since(start))
		if err != nil {
			r.metrics.RecordError()
			return nil, fmt.Errorf("failed to get results page %d of query %s: %w", page, id, err)
		}
		r.metrics.RecordPage()

		var pageRows []types.Row
		if out.ResultSet != nil {
			pageRows = out.ResultSet.Rows
		}
		if header == nil && len(pageRows) > 0 {
			header = columnNames(pageRows[0])
			pageRows = pageRows[1:]
		}

		for _, raw := range pageRows {
			if len(raw.Data) != len(header) {
				r.metrics.RecordError()
				return nil, fmt.Errorf("query %s: row %d has %d cells, header has %d",
					id, len(rows), len(raw.Data), len(header))
			}
			row := make(Row, len(header))
			for i, datum := range raw.Data {
				row[header[i]] = datum.VarCharValue
			}
			rows = append(rows, row)
		}
		r.metrics.RecordRows(len(pageRows))

		if sdkaws.ToString(out.NextToken) == "" {
			break
		}
		nextToken = out.NextToken
	}

	r.logger.DebugContext(ctx, "query results fetched", "queryId", id, "rows", len(rows))
	return rows, nil
}

func columnNames(header types.Row) []string {
	names := make([]string, len(header.Data))
	for i, d := range header.Data {
		names[i] = sdkaws.ToString(d.VarCharValue)
	}
	return names
}
