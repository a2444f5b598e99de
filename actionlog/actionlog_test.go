package actionlog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/oxford-data-processes/aws-utils/storage"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	loadErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) PutJSON(ctx context.Context, bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memoryStore) LoadJSON(ctx context.Context, bucket, key string, v any) error {
	if m.loadErr != nil {
		return m.loadErr
	}
	m.mu.Lock()
	data, ok := m.objects[bucket+"/"+key]
	m.mu.Unlock()
	if !ok {
		return storage.ErrObjectNotFound
	}
	return json.Unmarshal(data, v)
}

func (m *memoryStore) List(ctx context.Context, bucket, prefix string) ([]storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Object
	for k := range m.objects {
		key, ok := strings.CutPrefix(k, bucket+"/")
		if ok && strings.HasPrefix(key, prefix) {
			out = append(out, storage.Object{Key: key})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func fixedClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func TestRecordUsesLondonTime(t *testing.T) {
	store := newMemoryStore()
	l := New(store)
	l.now = fixedClock(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))

	entry, err := l.Record(context.Background(), "bucket", "stock-feed", "upload", "alice")
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if entry.Timestamp != "2024-07-01T13:00:00" {
		t.Errorf("expected BST timestamp, got %s", entry.Timestamp)
	}
	data, ok := store.objects["bucket/logs/stock-feed/2024-07-01T13:00:00.json"]
	if !ok {
		t.Fatalf("expected object at logs/stock-feed/2024-07-01T13:00:00.json, have %v", store.objects)
	}
	if got := string(data); got != `{"timestamp":"2024-07-01T13:00:00","action":"upload","user":"alice"}` {
		t.Errorf("unexpected body: %s", got)
	}
}

func TestRecordWinterTime(t *testing.T) {
	store := newMemoryStore()
	l := New(store)
	l.now = fixedClock(time.Date(2024, 1, 15, 8, 30, 5, 0, time.UTC))

	entry, err := l.Record(context.Background(), "bucket", "p", "a", "u")
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if entry.Timestamp != "2024-01-15T08:30:05" {
		t.Errorf("expected GMT timestamp, got %s", entry.Timestamp)
	}
}

func TestRecordRequiresProject(t *testing.T) {
	if _, err := New(newMemoryStore()).Record(context.Background(), "bucket", "", "a", "u"); err == nil {
		t.Error("expected error for empty project")
	}
}

func TestListReturnsEntriesInOrder(t *testing.T) {
	store := newMemoryStore()
	l := New(store, WithLocation(time.UTC), WithConcurrency(2))
	l.now = fixedClock(
		time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 9, 0, 1, 0, time.UTC),
		time.Date(2024, 3, 1, 9, 0, 2, 0, time.UTC),
	)

	ctx := context.Background()
	for _, action := range []string{"upload", "process", "publish"} {
		if _, err := l.Record(ctx, "bucket", "stock-feed", action, "bob"); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	if err := store.PutJSON(ctx, "bucket", "logs/other/2024-03-01T09:00:00.json", Entry{Action: "ignored"}); err != nil {
		t.Fatal(err)
	}

	entries, err := l.List(ctx, "bucket", "stock-feed")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	want := []Entry{
		{Timestamp: "2024-03-01T09:00:00", Action: "upload", User: "bob"},
		{Timestamp: "2024-03-01T09:00:01", Action: "process", User: "bob"},
		{Timestamp: "2024-03-01T09:00:02", Action: "publish", User: "bob"},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestListEmptyProject(t *testing.T) {
	entries, err := New(newMemoryStore()).List(context.Background(), "bucket", "nothing")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", entries)
	}
}

func TestListLoadError(t *testing.T) {
	store := newMemoryStore()
	store.objects["bucket/logs/p/2024-01-01T00:00:00.json"] = []byte(`{}`)
	store.loadErr = errors.New("throttled")

	if _, err := New(store).List(context.Background(), "bucket", "p"); !errors.Is(err, store.loadErr) {
		t.Errorf("expected wrapped load error, got %v", err)
	}
}
