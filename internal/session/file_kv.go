package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// sessionFile is the on-disk layout of a FileKV
type sessionFile struct {
	Entries     map[string]string `json:"entries"`
	LastUpdated string            `json:"lastUpdated"`
}

// FileKV keeps entries in a single JSON file, rewritten atomically on every change
type FileKV struct {
	path string
	mu   sync.Mutex
}

// NewFileKV returns a FileKV stored at path. The file is created on first write.
func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

// Path returns the backing file path
func (f *FileKV) Path() string { return f.path }

func (f *FileKV) load() (*sessionFile, error) {
	state := &sessionFile{Entries: map[string]string{}}

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	if state.Entries == nil {
		state.Entries = map[string]string{}
	}
	return state, nil
}

func (f *FileKV) save(state *sessionFile) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	state.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to set session file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// loadForWrite starts over from an empty state when the file is corrupt
func (f *FileKV) loadForWrite() (*sessionFile, error) {
	state, err := f.load()
	if err == nil {
		return state, nil
	}
	if isCorrupt(err) {
		return &sessionFile{Entries: map[string]string{}}, nil
	}
	return nil, err
}

func (f *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := state.Entries[key]
	return v, ok, nil
}

func (f *FileKV) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.loadForWrite()
	if err != nil {
		return err
	}
	state.Entries[key] = value
	return f.save(state)
}

func (f *FileKV) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.loadForWrite()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(state.Entries, k)
	}
	return f.save(state)
}
