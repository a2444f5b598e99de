package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is an in-memory implementation of aws.S3Client. It also streams
// objects line by line so it can stand in for s3streamer.Streamer.
type S3Client struct {
	mu sync.RWMutex
	// Maps bucket/key to file content
	Files map[string][]byte
	// Maps bucket/key to content type
	ContentTypes map[string]string
	// PageSize caps ListObjectsV2 pages; zero means 1000
	PageSize int

	now func() time.Time
}

// NewS3Client creates a new mock S3 client
func NewS3Client() *S3Client {
	return &S3Client{
		Files:        make(map[string][]byte),
		ContentTypes: make(map[string]string),
		now:          time.Now,
	}
}

// LoadDir uploads every regular file under dir into bucket, keyed by its
// slash-separated path relative to dir.
func (m *S3Client) LoadDir(bucket, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("test data directory does not exist: %s", dir)
	}

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		m.AddFile(bucket, filepath.ToSlash(rel), data)
		return nil
	})
}

// AddFile stores content under bucket/key
func (m *S3Client) AddFile(bucket, key string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[bucket+"/"+key] = content
}

// File returns the content stored under bucket/key
func (m *S3Client) File(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.Files[bucket+"/"+key]
	return content, ok
}

// GetObject implements the S3Client interface for reading objects
func (m *S3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	content, ok := m.File(aws.ToString(params.Bucket), aws.ToString(params.Key))
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("key not found: " + aws.ToString(params.Key))}
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(content)),
		ContentLength: aws.Int64(int64(len(content))),
	}, nil
}

// PutObject implements the S3Client interface for writing objects
func (m *S3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	var content []byte
	if params.Body != nil {
		data, err := io.ReadAll(params.Body)
		if err != nil {
			return nil, fmt.Errorf("mock S3: failed to read body: %w", err)
		}
		content = data
	}

	bucketKey := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[bucketKey] = content
	m.ContentTypes[bucketKey] = aws.ToString(params.ContentType)

	return &s3.PutObjectOutput{ETag: aws.String(fmt.Sprintf("\"%x\"", len(content)))}, nil
}

// ListObjectsV2 returns keys under the prefix in lexical order. The
// continuation token is the index of the next key.
func (m *S3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	bucket := aws.ToString(params.Bucket) + "/"
	prefix := aws.ToString(params.Prefix)

	m.mu.RLock()
	var keys []string
	for bucketKey := range m.Files {
		key, ok := strings.CutPrefix(bucketKey, bucket)
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sizes := make(map[string]int64, len(keys))
	for _, k := range keys {
		sizes[k] = int64(len(m.Files[bucket+k]))
	}
	m.mu.RUnlock()
	sort.Strings(keys)

	start := 0
	if token := aws.ToString(params.ContinuationToken); token != "" {
		n, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("mock S3: bad continuation token %q", token)
		}
		start = n
	}
	pageSize := m.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	end := min(start+pageSize, len(keys))

	out := &s3.ListObjectsV2Output{
		KeyCount:    aws.Int32(int32(end - start)),
		IsTruncated: aws.Bool(end < len(keys)),
	}
	modified := m.now()
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(sizes[k]),
			LastModified: aws.Time(modified),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}
