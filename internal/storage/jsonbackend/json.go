package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FranksOps/linkscout/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

// jsonBackend appends one Record per line. The file is a log: the last
// line for an id is the current record, and it is replayed on open.
type jsonBackend struct {
	mu    sync.Mutex
	file  *os.File
	index *storage.Index
}

// New creates a new NDJSON-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}

	index, err := replay(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("replay %s: %w", filePath, err)
	}

	return &jsonBackend{file: f, index: index}, nil
}

func replay(r io.Reader) (*storage.Index, error) {
	index := storage.NewIndex()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec storage.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.ID == "" || rec.Contact == nil {
			return nil, fmt.Errorf("line %d: missing id or contactInfo", line)
		}
		index.Put(&rec)
	}
	return index, scanner.Err()
}

func (b *jsonBackend) Save(ctx context.Context, rec *storage.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, _ := b.index.Get(rec.ID)
	out := storage.Upsert(stored, rec)

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}
	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", rec.ID, err)
	}
	b.index.Put(out)
	return nil
}

func (b *jsonBackend) Get(ctx context.Context, id string) (*storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Get(id)
}

func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Query(filter), nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
