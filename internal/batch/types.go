package batch

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
)

// Document is one row of a Parquet dataset
type Document struct {
	ID   string `parquet:"id" json:"id"`
	Text string `parquet:"text" json:"text"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords    int64                    `json:"total_records"`
	ProcessedOK     int64                    `json:"processed_ok"`
	ProcessedFailed int64                    `json:"processed_failed"`
	Matches         int64                    `json:"matches"`
	Replaced        int64                    `json:"replaced"`
	Warnings        int64                    `json:"warnings"`
	Duration        time.Duration            `json:"duration"`
	Errors          []string                 `json:"errors,omitempty"`
	Lookup          anonymizer.IdentityTable `json:"-"`
}

// ProcessingStats tracks real-time processing statistics
type ProcessingStats struct {
	StartTime      time.Time `json:"start_time"`
	RecordsRead    int64     `json:"records_read"`
	CurrentBatch   int64     `json:"current_batch"`
	ProcessingRate float64   `json:"processing_rate"` // records per second
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV // Default to CSV
	}
}
