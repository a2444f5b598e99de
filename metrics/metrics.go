// Package metrics collects counters for query runs and queue drains and
// renders them as a report for the command line.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Metrics collects counters shared by the query runner and the drainer.
// It uses atomic operations for thread-safe counter updates.
type Metrics struct {
	mu sync.RWMutex

	polls          int64 // Status polls issued
	pages          int64 // Result pages fetched
	rows           int64 // Data rows produced
	received       int64 // Messages received
	deleted        int64 // Messages deleted
	deleteFailures int64 // Deletes that failed and were skipped
	errors         int64 // Operations that returned an error

	remoteTime time.Duration // Total time spent waiting on remote calls
	startTime  time.Time
}

// NewMetrics creates a new Metrics instance with initialized counters
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// RecordPoll increments the status poll counter
func (m *Metrics) RecordPoll() {
	atomic.AddInt64(&m.polls, 1)
}

// RecordPage increments the result page counter
func (m *Metrics) RecordPage() {
	atomic.AddInt64(&m.pages, 1)
}

// RecordRows adds n to the data row counter
func (m *Metrics) RecordRows(n int) {
	atomic.AddInt64(&m.rows, int64(n))
}

// RecordReceived adds n to the received message counter
func (m *Metrics) RecordReceived(n int) {
	atomic.AddInt64(&m.received, int64(n))
}

// RecordDeleted increments the deleted message counter
func (m *Metrics) RecordDeleted() {
	atomic.AddInt64(&m.deleted, 1)
}

// RecordDeleteFailure increments the failed delete counter
func (m *Metrics) RecordDeleteFailure() {
	atomic.AddInt64(&m.deleteFailures, 1)
}

// RecordError increments the errors counter
func (m *Metrics) RecordError() {
	atomic.AddInt64(&m.errors, 1)
}

// RecordRemoteTime adds d to the time spent in remote calls
func (m *Metrics) RecordRemoteTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteTime += d
}

// Report is a point-in-time snapshot of the counters.
type Report struct {
	StartTime      time.Time     `json:"startTime"`
	EndTime        time.Time     `json:"endTime"`
	Polls          int64         `json:"polls"`
	Pages          int64         `json:"pages"`
	Rows           int64         `json:"rows"`
	Received       int64         `json:"received"`
	Deleted        int64         `json:"deleted"`
	DeleteFailures int64         `json:"deleteFailures"`
	Errors         int64         `json:"errors"`
	RemoteTime     time.Duration `json:"remoteTime"`
	Duration       time.Duration `json:"duration"`
}

// GenerateReport snapshots the counters.
func (m *Metrics) GenerateReport() Report {
	endTime := time.Now()

	m.mu.RLock()
	remote := m.remoteTime
	m.mu.RUnlock()

	return Report{
		StartTime:      m.startTime,
		EndTime:        endTime,
		Polls:          atomic.LoadInt64(&m.polls),
		Pages:          atomic.LoadInt64(&m.pages),
		Rows:           atomic.LoadInt64(&m.rows),
		Received:       atomic.LoadInt64(&m.received),
		Deleted:        atomic.LoadInt64(&m.deleted),
		DeleteFailures: atomic.LoadInt64(&m.deleteFailures),
		Errors:         atomic.LoadInt64(&m.errors),
		RemoteTime:     remote,
		Duration:       endTime.Sub(m.startTime),
	}
}

// MarshalJSON renders durations as strings.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		RemoteTime string `json:"remoteTime"`
		Duration   string `json:"duration"`
	}{
		Alias:      Alias(r),
		RemoteTime: r.RemoteTime.String(),
		Duration:   r.Duration.String(),
	})
}

// String returns a human-readable summary of the report.
func (r Report) String() string {
	return fmt.Sprintf(
		"Completed in %s (%s in remote calls)\n"+
			"Polls: %d, pages: %d, rows: %d\n"+
			"Messages received: %d, deleted: %d, delete failures: %d\n"+
			"Errors: %d",
		r.Duration,
		r.RemoteTime,
		r.Polls,
		r.Pages,
		r.Rows,
		r.Received,
		r.Deleted,
		r.DeleteFailures,
		r.Errors,
	)
}
