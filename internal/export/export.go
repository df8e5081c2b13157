// Package export writes the theorem dataset as Parquet or JSON Lines and
// uploads the files to S3-compatible object storage.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"mathmine/internal/store"
)

// Format is an export file format.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatJSONL   Format = "jsonl"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatParquet:
		return FormatParquet, nil
	case FormatJSONL, "json":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want parquet or jsonl)", s)
	}
}

// FileName returns the dataset file name for a format.
func FileName(base string, format Format) string {
	return base + "." + string(format)
}

// WriteFile writes records to path. JSON Lines are gzipped when path ends
// in ".gz".
func WriteFile(path string, format Format, records []store.Theorem) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	switch format {
	case FormatParquet:
		return ParquetFile(path, records)
	case FormatJSONL:
		return jsonlFile(path, records)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// WriteJSONL writes one JSON object per record.
func WriteJSONL(w io.Writer, records []store.Theorem) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("encode record %d: %w", records[i].ID, err)
		}
	}
	return nil
}

func jsonlFile(path string, records []store.Theorem) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if !strings.HasSuffix(path, ".gz") {
		return WriteJSONL(f, records)
	}
	zw := gzip.NewWriter(f)
	if err := WriteJSONL(zw, records); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
