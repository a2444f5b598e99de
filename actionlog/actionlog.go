// Package actionlog records user actions per project as JSON objects in S3
// under logs/<project>/<timestamp>.json and reads them back.
package actionlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"github.com/oxford-data-processes/aws-utils/storage"
)

// TimestampLayout is the layout of Entry.Timestamp and of the object name.
const TimestampLayout = "2006-01-02T15:04:05"

const defaultConcurrency = 8

// Entry is a single logged action.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	User      string `json:"user"`
}

// Store is the subset of storage.Store the log needs.
type Store interface {
	PutJSON(ctx context.Context, bucket, key string, v any) error
	LoadJSON(ctx context.Context, bucket, key string, v any) error
	List(ctx context.Context, bucket, prefix string) ([]storage.Object, error)
}

// Logger writes and lists action entries.
type Logger struct {
	store       Store
	location    *time.Location
	now         func() time.Time
	concurrency int
	logger      *slog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithLocation sets the zone timestamps are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(l *Logger) { l.location = loc }
}

// WithConcurrency bounds the parallel object reads in List.
func WithConcurrency(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(sl *slog.Logger) Option {
	return func(l *Logger) { l.logger = sl }
}

// New creates a Logger. Timestamps are rendered in Europe/London unless
// WithLocation is given.
func New(store Store, opts ...Option) *Logger {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		loc = time.UTC
	}
	l := &Logger{
		store:       store,
		location:    loc,
		now:         time.Now,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Prefix returns the key prefix holding a project's entries.
func Prefix(project string) string {
	return "logs/" + project + "/"
}

// Record writes one entry and returns it. Entries recorded within the same
// second for a project share a key, and the later one wins.
func (l *Logger) Record(ctx context.Context, bucket, project, action, user string) (Entry, error) {
	if project == "" {
		return Entry{}, fmt.Errorf("project name is required")
	}

	entry := Entry{
		Timestamp: l.now().In(l.location).Format(TimestampLayout),
		Action:    action,
		User:      user,
	}
	key := Prefix(project) + entry.Timestamp + ".json"
	if err := l.store.PutJSON(ctx, bucket, key, entry); err != nil {
		return Entry{}, fmt.Errorf("failed to record action for project %s: %w", project, err)
	}

	l.logger.InfoContext(ctx, "action recorded", "project", project, "action", action, "user", user, "key", key)
	return entry, nil
}

// List loads every entry of a project in key order, which is chronological.
// A project with no entries yields an empty slice.
func (l *Logger) List(ctx context.Context, bucket, project string) ([]Entry, error) {
	objects, err := l.store.List(ctx, bucket, Prefix(project))
	if err != nil {
		return nil, fmt.Errorf("failed to list logs for project %s: %w", project, err)
	}

	entries := make([]Entry, len(objects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, obj := range objects {
		g.Go(func() error {
			if err := l.store.LoadJSON(gctx, bucket, obj.Key, &entries[i]); err != nil {
				return fmt.Errorf("failed to load log %s: %w", obj.Key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.logger.DebugContext(ctx, "logs loaded", "project", project, "entries", len(entries))
	return entries, nil
}
