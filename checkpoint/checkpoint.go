package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/siegeai/siegeinfer/schema"
)

var (
	ErrConfigMismatch = errors.New("checkpoint was written with a different configuration")
)

// State is everything needed to resume a reduction: the schema so far and the
// documents already folded into it.
type State struct {
	RunID     uuid.UUID
	Config    schema.Config
	Schema    schema.Schema
	Processed *Index
	Documents int
	UpdatedAt time.Time
}

type stateFile struct {
	RunID     uuid.UUID      `json:"runID"`
	Config    schema.Config  `json:"config"`
	Schema    schema.Encoded `json:"schema"`
	Processed *Index         `json:"processed"`
	Documents int            `json:"documents"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func NewState(cfg schema.Config) *State {
	return &State{
		RunID:     uuid.New(),
		Config:    cfg,
		Schema:    schema.NewUnknown(),
		Processed: NewIndex(),
	}
}

// Load reads the state at path. A missing file gives a fresh state for cfg; a file
// written under another configuration fails with ErrConfigMismatch.
func Load(path string, cfg schema.Config) (*State, error) {
	bs, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("no checkpoint, starting fresh", "path", path)
		return NewState(cfg), nil
	} else if err != nil {
		return nil, err
	}

	var f stateFile
	if err := json.Unmarshal(bs, &f); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	if f.Config != cfg {
		return nil, fmt.Errorf("%w: have %+v, want %+v", ErrConfigMismatch, f.Config, cfg)
	}
	if f.Schema.Schema != nil {
		if err := cfg.Validate(f.Schema.Schema); err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", path, err)
		}
	}

	s := &State{
		RunID:     f.RunID,
		Config:    f.Config,
		Schema:    f.Schema.Schema,
		Processed: f.Processed,
		Documents: f.Documents,
		UpdatedAt: f.UpdatedAt,
	}
	if s.Schema == nil {
		s.Schema = schema.NewUnknown()
	}
	if s.Processed == nil {
		s.Processed = NewIndex()
	}

	slog.Info("resumed checkpoint", "path", path, "run", s.RunID, "documents", s.Documents, "processed", s.Processed.Len())
	return s, nil
}

// Save writes the state to path atomically: readers see either the previous file or
// the new one.
func (s *State) Save(path string) error {
	s.UpdatedAt = time.Now().UTC()
	bs, err := json.Marshal(&stateFile{
		RunID:     s.RunID,
		Config:    s.Config,
		Schema:    schema.Encoded{Schema: s.Schema},
		Processed: s.Processed,
		Documents: s.Documents,
		UpdatedAt: s.UpdatedAt,
	})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(bs); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}

	slog.Debug("saved checkpoint", "path", path, "documents", s.Documents)
	return nil
}
