// Package router turns S3 object-created notifications into EventBridge
// events. Each route names a downstream Lambda and the key prefixes it cares
// about; a matching object is announced on that Lambda's event bus.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"gopkg.in/yaml.v3"

	"github.com/oxford-data-processes/aws-utils/events"
)

const (
	// Source is the EventBridge source of every routed event.
	Source = "com.oxforddataprocesses"
	// EventType is both the detail type and the detail's event_type field.
	EventType = "S3PutObject"
)

// ErrNoRecords is returned for notifications that carry no S3 records.
var ErrNoRecords = errors.New("S3 event has no records")

// Detail is the payload published for an object.
type Detail struct {
	EventType string `json:"event_type"`
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"object_key"`
}

// NewDetail builds the detail for an object.
func NewDetail(bucket, key string) Detail {
	return Detail{EventType: EventType, Bucket: bucket, ObjectKey: key}
}

// Route sends objects under any of Prefixes to LambdaName's event bus.
type Route struct {
	Name       string   `yaml:"-"`
	LambdaName string   `yaml:"lambda_name"`
	Prefixes   []string `yaml:"prefixes"`
}

// EventBus returns the bus the route publishes to.
func (r Route) EventBus() string {
	return r.LambdaName + "-event-bus"
}

// LoadRoutes reads a YAML mapping of route name to route, for example:
//
//	stock_feed:
//	  lambda_name: stock-feed-loader
//	  prefixes: ["feeds/stock/"]
//
// Routes are returned sorted by name.
func LoadRoutes(r io.Reader) ([]Route, error) {
	var raw map[string]Route
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("route config is empty")
		}
		return nil, fmt.Errorf("failed to decode route config: %w", err)
	}

	routes := make([]Route, 0, len(raw))
	for name, route := range raw {
		if route.LambdaName == "" {
			return nil, fmt.Errorf("route %s: lambda_name is required", name)
		}
		route.Name = name
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Name < routes[j].Name })
	return routes, nil
}

// ExtractS3Info returns the bucket and decoded key of a record.
func ExtractS3Info(record lambdaevents.S3EventRecord) (bucket, key string) {
	key = record.S3.Object.URLDecodedKey
	if key == "" {
		key = record.S3.Object.Key
	}
	return record.S3.Bucket.Name, key
}

// MatchesPrefix reports whether key starts with any of prefixes.
func MatchesPrefix(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// Publisher is satisfied by *events.Publisher.
type Publisher interface {
	Publish(ctx context.Context, bus, source, detailType string, detail any) (string, error)
}

// Router validates and publishes details for incoming S3 notifications.
type Router struct {
	publisher Publisher
	routes    []Route
	schema    []byte
	logger    *slog.Logger
}

// New creates a Router using the embedded S3PutObject schema.
func New(publisher Publisher, routes []Route, logger *slog.Logger) (*Router, error) {
	schema, err := events.Schema(EventType)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		publisher: publisher,
		routes:    routes,
		schema:    schema,
		logger:    logger,
	}, nil
}

// Handle processes every record of the notification. For each record the
// detail is validated first, then published once per matching route. The
// first failure stops processing.
func (r *Router) Handle(ctx context.Context, evt lambdaevents.S3Event) error {
	if len(evt.Records) == 0 {
		return ErrNoRecords
	}

	for _, record := range evt.Records {
		bucket, key := ExtractS3Info(record)
		detail := NewDetail(bucket, key)
		if err := events.Validate(detail, r.schema); err != nil {
			return fmt.Errorf("s3://%s/%s: %w", bucket, key, err)
		}

		for _, route := range r.routes {
			if !MatchesPrefix(key, route.Prefixes) {
				continue
			}
			r.logger.InfoContext(ctx, "routing object", "route", route.Name, "lambda", route.LambdaName, "bucket", bucket, "key", key)
			if _, err := r.publisher.Publish(ctx, route.EventBus(), Source, EventType, detail); err != nil {
				return fmt.Errorf("failed to publish event for %s: %w", route.LambdaName, err)
			}
		}
	}
	return nil
}
