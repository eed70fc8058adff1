package journal

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"mintforge/internal/mint"
)

// Record is one persisted run summary.
type Record struct {
	RunID     string          `json:"runId"`
	Network   string          `json:"network"`
	Contract  string          `json:"contract"`
	State     string          `json:"state"`
	DryRun    bool            `json:"dryRun"`
	CreatedAt time.Time       `json:"createdAt"`
	Summary   json.RawMessage `json:"summary"`
}

// FromResult converts a mint result into a journal record.
func FromResult(res mint.Result) (Record, error) {
	summary, err := json.Marshal(res)
	if err != nil {
		return Record{}, err
	}
	return Record{
		RunID:     res.RunID,
		Network:   res.Network,
		Contract:  res.Contract,
		State:     string(res.State),
		DryRun:    res.DryRun,
		CreatedAt: res.FinishedAt,
		Summary:   summary,
	}, nil
}

// Store abstracts run-history persistence.
type Store interface {
	Save(ctx context.Context, rec Record) error
	List(ctx context.Context, limit int) ([]Record, error)
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
	}
}

func (m *MemoryStore) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[rec.RunID] = rec
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortAndClip(m.data, limit), nil
}

// FileStore persists records to a JSON file. Suitable for a single-host
// setup; multi-instance deployments should use Postgres.
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]Record
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		data: make(map[string]Record),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &f.data)
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, blob, 0o600)
}

func (f *FileStore) Save(_ context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[rec.RunID] = rec
	return f.persist()
}

func (f *FileStore) List(_ context.Context, limit int) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortAndClip(f.data, limit), nil
}

func sortAndClip(data map[string]Record, limit int) []Record {
	out := make([]Record, 0, len(data))
	for _, rec := range data {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
