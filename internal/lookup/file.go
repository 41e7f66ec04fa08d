package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/textio"
)

// FileSink writes lookup tables as indented JSON files
type FileSink struct {
	path string
	dir  string
}

// NewFileSink creates a file sink. Tables go to path when it is set, else
// next to the run's output as <output>_lookup.json, else to
// <dir>/<run_id>_lookup.json.
func NewFileSink(path, dir string) *FileSink {
	return &FileSink{path: path, dir: dir}
}

// Save writes the table as a JSON object with sorted keys
func (s *FileSink) Save(_ context.Context, run Run, table anonymizer.IdentityTable) (string, error) {
	var path string
	switch {
	case s.path != "":
		path = s.path
	case run.OutputPath != "":
		path = textio.LookupPath(run.OutputPath)
	case s.dir != "":
		path = s.runPath(run.ID)
	default:
		return "", fmt.Errorf("file sink needs an output path, lookup.path or lookup.dir")
	}

	data, err := json.MarshalIndent(table, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode lookup table: %w", err)
	}

	if err := textio.Save(path, string(data)); err != nil {
		return "", fmt.Errorf("failed to save lookup table: %w", err)
	}
	return path, nil
}

// Load reads a table saved under the run directory
func (s *FileSink) Load(_ context.Context, runID string) (anonymizer.IdentityTable, error) {
	// Run ids are UUIDs; anything else could escape the directory
	if s.dir == "" || uuid.Validate(runID) != nil {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(s.runPath(runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lookup table: %w", err)
	}

	table := anonymizer.NewIdentityTable()
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to decode lookup table: %w", err)
	}
	return table, nil
}

// Close does nothing
func (s *FileSink) Close() error { return nil }

func (s *FileSink) runPath(runID string) string {
	return filepath.Join(s.dir, runID+"_lookup.json")
}
