package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

// FileStore persists the schedule as a flat JSON object.
type FileStore struct {
	path string
}

// NewFileStore creates a store at path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the saved schedule. A missing file yields the defaults;
// keys absent from the file keep their default values.
func (f *FileStore) Load() (model.ScheduleConfig, error) {
	cfg := model.DefaultSchedule()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read schedule: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return model.DefaultSchedule(), fmt.Errorf("decode schedule %s: %w", f.path, err)
	}
	return cfg, nil
}

// Save rewrites the whole file through a temp file and rename.
func (f *FileStore) Save(cfg model.ScheduleConfig) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create schedule dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".schedule-*.json")
	if err != nil {
		return fmt.Errorf("create temp schedule: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write schedule: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close schedule: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace schedule: %w", err)
	}
	return nil
}
