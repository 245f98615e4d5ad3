package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"nora/internal/domain"
)

// DefaultKey is the entry holding the serialized card.
const DefaultKey = "nora_customer_memory"

var ErrMalformedRecord = errors.New("stored customer record is malformed")

// FileStore keeps string values under named keys in one JSON file, and the
// card as the serialized value of a single key.
type FileStore struct {
	path string
	key  string
}

func NewFileStore(path, key string) *FileStore {
	if key == "" {
		key = DefaultKey
	}
	return &FileStore{path: path, key: key}
}

func (f *FileStore) Load(_ context.Context) (domain.CustomerRecord, error) {
	entries, err := f.readEntries()
	if err != nil {
		return domain.CustomerRecord{}, err
	}
	raw, ok := entries[f.key]
	if !ok || raw == "" {
		return domain.CustomerRecord{}, nil
	}

	var rec domain.CustomerRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.CustomerRecord{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return rec, nil
}

func (f *FileStore) Save(_ context.Context, rec domain.CustomerRecord) error {
	entries, err := f.readEntries()
	if err != nil {
		if !errors.Is(err, ErrMalformedRecord) {
			return err
		}
		entries = map[string]string{}
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode customer record: %w", err)
	}
	entries[f.key] = string(value)

	contents, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode memory file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, contents, 0o600); err != nil {
		return fmt.Errorf("failed to write memory file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace memory file: %w", err)
	}
	return nil
}

func (f *FileStore) readEntries() (map[string]string, error) {
	contents, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read memory file %q: %w", f.path, err)
	}

	var entries map[string]string
	if err := json.Unmarshal(contents, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	// A JSON null decodes into a nil map.
	if entries == nil {
		entries = map[string]string{}
	}
	return entries, nil
}
