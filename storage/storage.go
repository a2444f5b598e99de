// Package storage reads and writes S3 objects: CSV files streamed line by
// line, JSON documents and prefix listings.
package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"
	"github.com/gurre/s3streamer"

	"github.com/oxford-data-processes/aws-utils/aws"
)

var (
	// ErrInvalidURI is returned for strings that are not s3://bucket/key.
	ErrInvalidURI = errors.New("invalid S3 URI")
	// ErrObjectNotFound is returned when the requested key does not exist.
	ErrObjectNotFound = errors.New("S3 object not found")
)

var s3URIPattern = regexp.MustCompile(`^s3://([^/]+)/(.+)$`)

// Location addresses a single S3 object.
type Location struct {
	Bucket string
	Key    string
}

// ParseURI splits s3://bucket/key into its parts.
func ParseURI(uri string) (Location, error) {
	matches := s3URIPattern.FindStringSubmatch(uri)
	if len(matches) != 3 {
		return Location{}, fmt.Errorf("%w: %s (must be s3://bucket/key)", ErrInvalidURI, uri)
	}
	return Location{Bucket: matches[1], Key: matches[2]}, nil
}

func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// Object describes one entry of a listing.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Store wraps an S3 client and a line streamer.
type Store struct {
	client   aws.S3Client
	streamer s3streamer.Streamer
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store. streamer is only needed for LoadCSV.
func NewStore(client aws.S3Client, streamer s3streamer.Streamer, opts ...Option) *Store {
	s := &Store{
		client:   client,
		streamer: streamer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadCSV streams the object and parses every non-empty line as one CSV
// record. Quoted fields may contain commas but not line breaks.
func (s *Store) LoadCSV(ctx context.Context, bucket, key string) ([][]string, error) {
	if s.streamer == nil {
		return nil, fmt.Errorf("no streamer configured for CSV loading")
	}

	records := make([][]string, 0)
	err := s.streamer.Stream(ctx, bucket, key, 0, func(line []byte, _ int64) error {
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			return nil
		}
		r := csv.NewReader(bytes.NewReader(line))
		r.FieldsPerRecord = -1
		record, err := r.Read()
		if err != nil {
			return fmt.Errorf("failed to parse CSV line %d: %w", len(records)+1, err)
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load CSV s3://%s/%s: %w", bucket, key, err)
	}

	s.logger.DebugContext(ctx, "loaded CSV", "bucket", bucket, "key", key, "records", len(records))
	return records, nil
}

// LoadJSON decodes the object into v. A missing key yields ErrObjectNotFound.
func (s *Store) LoadJSON(ctx context.Context, bucket, key string, v any) error {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	if resp.Body == nil {
		return fmt.Errorf("response body for s3://%s/%s is nil", bucket, key)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// PutJSON encodes v and writes it to the object.
func (s *Store) PutJSON(ctx context.Context, bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode s3://%s/%s: %w", bucket, key, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: sdkaws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", bucket, key, err)
	}

	s.logger.DebugContext(ctx, "wrote JSON", "bucket", bucket, "key", key, "bytes", len(data))
	return nil
}

// List returns every object under prefix in key order.
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	objects := make([]Object, 0)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &bucket,
		Prefix: &prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:          sdkaws.ToString(obj.Key),
				Size:         sdkaws.ToInt64(obj.Size),
				LastModified: sdkaws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}
