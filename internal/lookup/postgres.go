package lookup

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/config"
)

// insertChunkSize keeps multi-row inserts well under Postgres' parameter limit
const insertChunkSize = 500

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresSink stores lookup tables in a Postgres table keyed by run id
type PostgresSink struct {
	db     *sqlx.DB
	table  string
	logger *zap.Logger
}

type lookupRow struct {
	Original   string `db:"original"`
	Substitute string `db:"substitute"`
}

// NewPostgresSink connects to Postgres and makes sure the table exists
func NewPostgresSink(cfg config.PostgresConfig, logger *zap.Logger) (*PostgresSink, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	sink, err := newPostgresSink(db, cfg.Table, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sink.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize lookup table: %w", err)
	}

	logger.Info("Postgres lookup sink initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.String("table", sink.table),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return sink, nil
}

func newPostgresSink(db *sqlx.DB, table string, logger *zap.Logger) (*PostgresSink, error) {
	if table == "" {
		table = "identity_lookups"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid lookup table name: %q", table)
	}
	return &PostgresSink{db: db, table: table, logger: logger}, nil
}

// EnsureSchema creates the lookup table if it does not exist
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id     TEXT NOT NULL,
			original   TEXT NOT NULL,
			substitute TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (run_id, original)
		)`, s.table)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

// Save inserts the table's entries; existing (run_id, original) rows are kept
func (s *PostgresSink) Save(ctx context.Context, run Run, table anonymizer.IdentityTable) (string, error) {
	location := "postgres:" + s.table + "/" + run.ID
	if len(table) == 0 {
		return location, nil
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	start := time.Now()
	var inserted int64

	for _, chunk := range lo.Chunk(table.Originals(), insertChunkSize) {
		valueStrings := make([]string, 0, len(chunk))
		valueArgs := make([]interface{}, 0, len(chunk)*4)

		for i, original := range chunk {
			valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4))
			valueArgs = append(valueArgs, run.ID, original, table[original], createdAt)
		}

		query := fmt.Sprintf(`
			INSERT INTO %s (run_id, original, substitute, created_at)
			VALUES %s
			ON CONFLICT (run_id, original) DO NOTHING`,
			s.table, strings.Join(valueStrings, ","))

		res, err := s.db.ExecContext(ctx, query, valueArgs...)
		if err != nil {
			s.logger.Error("Lookup insert failed", zap.String("run_id", run.ID), zap.Error(err))
			return "", fmt.Errorf("failed to insert lookup rows: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			s.logger.Warn("Could not get rows affected", zap.Error(err))
			n = int64(len(chunk))
		}
		inserted += n
	}

	s.logger.Info("Lookup table stored",
		zap.String("run_id", run.ID),
		zap.Int64("inserted", inserted),
		zap.Int64("duplicates_skipped", int64(len(table))-inserted),
		zap.Duration("duration", time.Since(start)))

	return location, nil
}

// Load reads the table stored for runID
func (s *PostgresSink) Load(ctx context.Context, runID string) (anonymizer.IdentityTable, error) {
	query := fmt.Sprintf(`SELECT original, substitute FROM %s WHERE run_id = $1 ORDER BY original`, s.table)

	var rows []lookupRow
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to load lookup table: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	table := make(anonymizer.IdentityTable, len(rows))
	for _, r := range rows {
		table[r.Original] = r.Substitute
	}
	return table, nil
}

// Close closes the database connection
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// maskDatabaseURL hides the password in a database URL for logging
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "postgres://***"
	}
	return u.Redacted()
}
