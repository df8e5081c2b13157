package export

import (
	"fmt"
	"io"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"mathmine/internal/store"
)

const parquetParallelism = 4

// Row is the Parquet schema of a dataset record.
type Row struct {
	ID           int64  `parquet:"name=id, type=INT64"`
	PaperLink    string `parquet:"name=paper_link, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Env          string `parquet:"name=env, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Label        string `parquet:"name=label, type=BYTE_ARRAY, convertedtype=UTF8"`
	DisplayLabel string `parquet:"name=display_label, type=BYTE_ARRAY, convertedtype=UTF8"`
	Number       string `parquet:"name=number, type=BYTE_ARRAY, convertedtype=UTF8"`
	Context      string `parquet:"name=context, type=BYTE_ARRAY, convertedtype=UTF8"`
	Theorem      string `parquet:"name=theorem, type=BYTE_ARRAY, convertedtype=UTF8"`
	Explanation  string `parquet:"name=unique_answer_explanation, type=BYTE_ARRAY, convertedtype=UTF8"`
	RunID        string `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	CreatedAt    int64  `parquet:"name=created_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

func toRow(t store.Theorem) Row {
	var created int64
	if !t.CreatedAt.IsZero() {
		created = t.CreatedAt.UnixMilli()
	}
	return Row{
		ID:           t.ID,
		PaperLink:    t.PaperLink,
		Env:          t.Env,
		Label:        t.Label,
		DisplayLabel: t.DisplayLabel,
		Number:       t.Number,
		Context:      t.Context,
		Theorem:      t.Content,
		Explanation:  t.Explanation,
		RunID:        t.RunID,
		CreatedAt:    created,
	}
}

// WriteParquet writes records to w as one snappy-compressed Parquet file.
func WriteParquet(w io.Writer, records []store.Theorem) error {
	pf := writerfile.NewWriterFile(w)
	return writeParquet(pf, records)
}

// ParquetFile writes records to a local Parquet file.
func ParquetFile(path string, records []store.Theorem) error {
	pf, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return writeParquet(pf, records)
}

func writeParquet(pf source.ParquetFile, records []store.Theorem) error {
	pw, err := writer.NewParquetWriter(pf, new(Row), parquetParallelism)
	if err != nil {
		_ = pf.Close()
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range records {
		if err := pw.Write(toRow(r)); err != nil {
			_ = pw.WriteStop()
			_ = pf.Close()
			return fmt.Errorf("write record %d: %w", r.ID, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pf.Close()
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return pf.Close()
}
