package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/logger"
)

// maxLineSize bounds a single JSON lines record
const maxLineSize = 16 << 20

// Pipeline anonymizes structured datasets record by record. All records of
// a file share one identity table.
type Pipeline struct {
	mode   anonymizer.Mode
	rules  *anonymizer.Rules
	gen    anonymizer.Generator
	config config.BatchConfig
	logger *logger.Logger

	table anonymizer.IdentityTable
	stats *ProcessingStats
	mu    sync.RWMutex
}

// NewPipeline creates a new dataset pipeline
func NewPipeline(
	mode anonymizer.Mode,
	rules *anonymizer.Rules,
	gen anonymizer.Generator,
	cfg config.BatchConfig,
	log *logger.Logger,
) (*Pipeline, error) {
	if !mode.Valid() {
		return nil, &anonymizer.UnsupportedModeError{Mode: string(mode)}
	}
	if rules == nil {
		rules = anonymizer.DefaultRules()
	}
	if gen == nil {
		gen = anonymizer.NewFakeGenerator(0)
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = []string{"text"}
	}

	return &Pipeline{
		mode:   mode,
		rules:  rules,
		gen:    gen,
		config: cfg,
		logger: log.WithComponent("batch"),
		table:  anonymizer.NewIdentityTable(),
		stats:  &ProcessingStats{StartTime: time.Now()},
	}, nil
}

// Lookup returns the identity table shared by every record processed so far
func (p *Pipeline) Lookup() anonymizer.IdentityTable {
	return p.table
}

// ProcessFile anonymizes a dataset file (CSV, Parquet, or JSON lines) and
// writes the result to outPath in the same format
func (p *Pipeline) ProcessFile(ctx context.Context, inPath, outPath string) (*ProcessingResult, error) {
	format := DetectFileFormat(inPath)

	p.logger.Info("Starting batch pipeline",
		zap.String("input", inPath),
		zap.String("output", outPath),
		zap.String("format", string(format)),
		zap.String("mode", string(p.mode)),
		zap.Strings("fields", p.config.Fields),
		zap.Int("batch_size", p.config.BatchSize))

	start := time.Now()
	result := &ProcessingResult{}
	p.resetStats()

	in, err := os.Open(inPath)
	if err != nil {
		return result, fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return result, fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return result, fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, in, out, result)
	case FormatParquet:
		err = p.processParquet(ctx, in, out, result)
	case FormatJSON:
		err = p.processJSON(ctx, in, out, result)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}

	result.Duration = time.Since(start)
	result.Lookup = p.table

	if err != nil {
		p.logger.Error("Batch pipeline failed",
			zap.String("input", inPath),
			zap.Int64("records", result.TotalRecords),
			zap.Error(err))
		// A partially written dataset is never left behind
		_ = out.Close()
		if rmErr := os.Remove(outPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			p.logger.Warn("Failed to remove partial output", zap.String("output", outPath), zap.Error(rmErr))
		}
		return result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	p.logger.Info("Batch pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("matches", result.Matches),
		zap.Int64("replaced", result.Replaced),
		zap.Int("identities", len(p.table)),
		zap.Duration("total_duration", result.Duration))

	return result, out.Close()
}

// anonymize runs the engine over one field value
func (p *Pipeline) anonymize(text string, result *ProcessingResult) (string, error) {
	res, err := anonymizer.New(text, p.mode, p.rules,
		anonymizer.WithGenerator(p.gen),
		anonymizer.WithLogger(p.logger),
		anonymizer.WithIdentityTable(p.table),
	).Run()
	if err != nil {
		return "", err
	}

	result.Matches += int64(res.Matches)
	result.Replaced += int64(res.Replaced)
	result.Warnings += int64(len(res.Warnings))
	return res.Text, nil
}

// processCSV anonymizes the configured columns of a CSV file with a header row
func (p *Pipeline) processCSV(ctx context.Context, in io.Reader, out io.Writer, result *ProcessingResult) error {
	reader := csv.NewReader(in)
	writer := csv.NewWriter(out)

	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make([]int, 0, len(p.config.Fields))
	for _, field := range p.config.Fields {
		idx := lo.IndexOf(header, field)
		if idx < 0 {
			return fmt.Errorf("field %q not found in CSV header %v", field, header)
		}
		columns = append(columns, idx)
	}

	p.logger.Debug("CSV header detected", zap.Strings("columns", header))

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	return processBatches(ctx, p, result,
		func() ([][]string, error) {
			var batch [][]string
			for len(batch) < p.config.BatchSize {
				record, err := reader.Read()
				if err == io.EOF {
					break
				}
				if err != nil {
					var parseErr *csv.ParseError
					if errors.As(err, &parseErr) {
						p.logger.Warn("Failed to read CSV record", zap.Error(err))
						result.ProcessedFailed++
						result.Errors = append(result.Errors, err.Error())
						continue
					}
					return nil, err
				}
				batch = append(batch, record)
			}
			return batch, nil
		},
		func(batch [][]string) error {
			for _, record := range batch {
				for _, col := range columns {
					text, err := p.anonymize(record[col], result)
					if err != nil {
						return err
					}
					record[col] = text
				}
			}
			if err := writer.WriteAll(batch); err != nil {
				return fmt.Errorf("failed to write CSV records: %w", err)
			}
			return nil
		})
}

// processJSON anonymizes the configured string fields of a JSON lines file
func (p *Pipeline) processJSON(ctx context.Context, in io.Reader, out io.Writer, result *ProcessingResult) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	bw := bufio.NewWriter(out)
	encoder := json.NewEncoder(bw)
	encoder.SetEscapeHTML(false)

	err := processBatches(ctx, p, result,
		func() ([]map[string]interface{}, error) {
			var batch []map[string]interface{}
			for len(batch) < p.config.BatchSize && scanner.Scan() {
				line := bytes.TrimSpace(scanner.Bytes())
				if len(line) == 0 {
					continue
				}

				decoder := json.NewDecoder(bytes.NewReader(line))
				decoder.UseNumber()

				var record map[string]interface{}
				if err := decoder.Decode(&record); err != nil {
					p.logger.Warn("Failed to read JSON record", zap.Error(err))
					result.ProcessedFailed++
					result.Errors = append(result.Errors, err.Error())
					continue
				}
				batch = append(batch, record)
			}
			if err := scanner.Err(); err != nil {
				return nil, err
			}
			return batch, nil
		},
		func(batch []map[string]interface{}) error {
			for _, record := range batch {
				for _, field := range p.config.Fields {
					value, ok := record[field].(string)
					if !ok {
						continue
					}
					text, err := p.anonymize(value, result)
					if err != nil {
						return err
					}
					record[field] = text
				}
				if err := encoder.Encode(record); err != nil {
					return fmt.Errorf("failed to write JSON record: %w", err)
				}
			}
			return nil
		})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// processParquet anonymizes the text column of a Parquet file of Documents
func (p *Pipeline) processParquet(ctx context.Context, in *os.File, out io.Writer, result *ProcessingResult) error {
	reader := parquet.NewGenericReader[Document](in)
	defer reader.Close()

	writer := parquet.NewGenericWriter[Document](out)

	done := false
	err := processBatches(ctx, p, result,
		func() ([]Document, error) {
			if done {
				return nil, nil
			}
			batch := make([]Document, p.config.BatchSize)
			n, err := reader.Read(batch)
			if err == io.EOF {
				done = true
			} else if err != nil {
				return nil, err
			}
			return batch[:n], nil
		},
		func(batch []Document) error {
			for i := range batch {
				text, err := p.anonymize(batch[i].Text, result)
				if err != nil {
					return err
				}
				batch[i].Text = text
			}
			if _, err := writer.Write(batch); err != nil {
				return fmt.Errorf("failed to write Parquet rows: %w", err)
			}
			return nil
		})
	if err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// processBatches reads and handles batches until readBatch returns an empty
// batch. Cancellation is checked between batches; a handler error aborts.
func processBatches[T any](
	ctx context.Context,
	p *Pipeline,
	result *ProcessingResult,
	readBatch func() ([]T, error),
	handle func([]T) error,
) error {
	var reported int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		p.recordBatch(len(batch))

		if err := handle(batch); err != nil {
			result.ProcessedFailed += int64(len(batch))
			result.Errors = append(result.Errors, err.Error())
			return err
		}

		result.TotalRecords += int64(len(batch))
		result.ProcessedOK += int64(len(batch))

		if every := int64(p.config.ProgressReport); every > 0 && result.TotalRecords/every > reported {
			reported = result.TotalRecords / every
			p.reportProgress(result)
		}
	}
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	stats := p.GetStats()

	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Int64("matches", result.Matches),
		zap.Float64("rate_per_sec", stats.ProcessingRate),
		zap.Duration("elapsed", time.Since(stats.StartTime)))
}

func (p *Pipeline) recordBatch(size int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.RecordsRead += int64(size)
	p.stats.CurrentBatch++
	if elapsed := time.Since(p.stats.StartTime).Seconds(); elapsed > 0 {
		p.stats.ProcessingRate = float64(p.stats.RecordsRead) / elapsed
	}
}

// resetStats resets processing statistics
func (p *Pipeline) resetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats = &ProcessingStats{
		StartTime: time.Now(),
	}
}

// GetStats returns current processing statistics
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Create a copy
	stats := *p.stats
	return &stats
}
