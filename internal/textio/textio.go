package textio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

const utf8BOM = "\ufeff"

// Document is a decoded input file
type Document struct {
	Text       string
	Encoding   string
	Confidence int // chardet confidence, 100 when the bytes were valid UTF-8
}

// Load reads path and decodes it to UTF-8, detecting the source encoding
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("input file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	doc, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return doc, nil
}

// Decode converts raw bytes to UTF-8 text. Valid UTF-8 is used as-is;
// anything else goes through charset detection.
func Decode(raw []byte) (*Document, error) {
	if utf8.Valid(raw) {
		return &Document{
			Text:       strings.TrimPrefix(string(raw), utf8BOM),
			Encoding:   "UTF-8",
			Confidence: 100,
		}, nil
	}

	result, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to detect encoding: %w", err)
	}

	enc, err := lookupEncoding(result.Charset)
	if err != nil {
		return nil, err
	}

	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode as %s: %w", result.Charset, err)
	}

	return &Document{
		Text:       strings.TrimPrefix(string(decoded), utf8BOM),
		Encoding:   result.Charset,
		Confidence: result.Confidence,
	}, nil
}

// lookupEncoding resolves a detector charset name, trying the WHATWG names
// first and the IANA registry second.
func lookupEncoding(name string) (encoding.Encoding, error) {
	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported encoding: %s", name)
	}
	return enc, nil
}

// Save writes text to path as UTF-8, creating parent directories
func Save(path, text string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// LookupPath returns where the name_to_id lookup table for an output file
// is written: the output path without its extension plus "_lookup.json".
func LookupPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + "_lookup.json"
}
