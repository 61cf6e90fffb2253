// Package storage keeps JSON documents in a directory. Writes go through a
// temporary file and a rename so readers never see a half-written file.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("file not found")

// Dir is a directory of files addressed by file name.
type Dir struct {
	path string
	mu   sync.Mutex
}

func NewDir(path string) *Dir {
	return &Dir{path: path}
}

func (d *Dir) Path() string { return d.path }

// Write marshals v with two-space indentation and atomically replaces name.
func (d *Dir) Write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	data = append(data, '\n')
	return d.WriteRaw(name, data)
}

// WriteRaw atomically replaces name with data.
func (d *Dir) WriteRaw(name string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", d.path, err)
	}

	tmp, err := os.CreateTemp(d.path, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", name, err)
	}

	if err := os.Rename(tmpName, filepath.Join(d.path, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

// Read unmarshals name into v. A missing file yields ErrNotFound.
func (d *Dir) Read(name string, v any) error {
	data, err := d.ReadRaw(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return nil
}

func (d *Dir) ReadRaw(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.path, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// Exists reports whether name is present as a regular file.
func (d *Dir) Exists(name string) (bool, error) {
	info, err := os.Stat(filepath.Join(d.path, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// List returns the sorted names of the JSON files in the directory.
// A missing directory is treated as empty.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d.path, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
