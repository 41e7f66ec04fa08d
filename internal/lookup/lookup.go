package lookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/config"
)

// ErrNotFound is returned by Load when no table was stored for a run
var ErrNotFound = errors.New("lookup table not found")

// Run identifies the anonymization run a lookup table belongs to
type Run struct {
	ID         string
	Mode       anonymizer.Mode
	OutputPath string // file the anonymized text was written to, if any
	CreatedAt  time.Time
}

// Sink persists name_to_id lookup tables
type Sink interface {
	// Save stores table and returns a description of where it went
	Save(ctx context.Context, run Run, table anonymizer.IdentityTable) (string, error)
	Close() error
}

// Loader is implemented by sinks that can read a stored table back
type Loader interface {
	Load(ctx context.Context, runID string) (anonymizer.IdentityTable, error)
}

// New creates the sink selected by cfg.Sink
func New(cfg config.LookupConfig, log *zap.Logger) (Sink, error) {
	switch cfg.Sink {
	case "", "file":
		return NewFileSink(cfg.Path, cfg.Dir), nil
	case "redis":
		sink, err := NewRedisSink(cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "postgres":
		sink, err := NewPostgresSink(cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "none":
		return NopSink{}, nil
	default:
		return nil, fmt.Errorf("unknown lookup sink: %s", cfg.Sink)
	}
}

// NopSink discards lookup tables
type NopSink struct{}

// Save does nothing
func (NopSink) Save(context.Context, Run, anonymizer.IdentityTable) (string, error) {
	return "discarded", nil
}

// Close does nothing
func (NopSink) Close() error { return nil }
