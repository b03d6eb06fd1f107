package csvbackend

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu    sync.Mutex
	file  *os.File
	index *storage.Index
}

// headers defines the CSV column order. The flat columns are for
// spreadsheets; contact_json is what gets read back.
var headers = []string{
	"id",
	"domain",
	"url",
	"state",
	"emails",
	"social_profiles",
	"contact_forms",
	"phone_numbers",
	"contact_person",
	"run_id",
	"updated_at",
	"contact_json",
}

const listSep = ";"

// New creates a new CSV-backed storage.Backend. Rows are appended; the last
// row for an id wins when the file is read back.
func New(filePath string) (storage.Backend, error) {
	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}

	// Check if file is empty to write headers
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", filePath, err)
	}

	index := storage.NewIndex()
	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	} else if err := replay(f, index); err != nil {
		f.Close()
		return nil, fmt.Errorf("replay %s: %w", filePath, err)
	}

	return &csvBackend{file: f, index: index}, nil
}

func replay(r io.Reader, index *storage.Index) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(row) != len(headers) {
			continue // skip malformed rows
		}
		rec, err := decode(row)
		if err != nil {
			return err
		}
		index.Put(rec)
	}
}

func decode(row []string) (*storage.Record, error) {
	var ci contact.ContactInfo
	if err := json.Unmarshal([]byte(row[11]), &ci); err != nil {
		return nil, fmt.Errorf("row %s: %w", row[0], err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, row[10])
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", row[0], err)
	}
	return &storage.Record{
		ID:        row[0],
		Domain:    row[1],
		URL:       row[2],
		State:     row[3],
		Contact:   &ci,
		RunID:     row[9],
		UpdatedAt: updatedAt,
	}, nil
}

func encode(rec *storage.Record) ([]string, error) {
	ci := rec.Contact
	data, err := json.Marshal(ci)
	if err != nil {
		return nil, err
	}
	socials := make([]string, 0, len(ci.SocialProfiles))
	for _, sp := range ci.SocialProfiles {
		socials = append(socials, sp.URL)
	}
	person := ""
	if ci.ContactPerson != nil {
		person = ci.ContactPerson.Name
		if ci.ContactPerson.Title != "" {
			person += " (" + ci.ContactPerson.Title + ")"
		}
	}
	return []string{
		rec.ID,
		rec.Domain,
		rec.URL,
		rec.State,
		strings.Join(ci.Emails, listSep),
		strings.Join(socials, listSep),
		strings.Join(ci.ContactForms, listSep),
		strings.Join(ci.PhoneNumbers, listSep),
		person,
		rec.RunID,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(data),
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, rec *storage.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, _ := b.index.Get(rec.ID)
	out := storage.Upsert(stored, rec)

	row, err := encode(out)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write %s: %w", rec.ID, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", rec.ID, err)
	}

	b.index.Put(out)
	return nil
}

func (b *csvBackend) Get(ctx context.Context, id string) (*storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Get(id)
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Query(filter), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
