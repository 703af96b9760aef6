package filters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FilePersister stores the filter state as YAML on disk.
type FilePersister struct {
	path string
}

// NewFilePersister stores state at path, creating parent directories on save.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Path returns the file location.
func (f *FilePersister) Path() string {
	return f.path
}

func (f *FilePersister) Load(context.Context) (State, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("read %s: %w", f.path, err)
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return State{}, false, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return state, true, nil
}

func (f *FilePersister) Save(_ context.Context, state State) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode filter state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(f.path), err)
	}

	// Replace atomically via a sibling temp file.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
