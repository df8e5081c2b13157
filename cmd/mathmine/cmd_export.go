package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mathmine/internal/export"
	"mathmine/internal/logging"
	"mathmine/internal/store"
)

var (
	exportFormat string
	exportOut    string
	exportRun    string
	exportUpload bool
)

// exportCmd writes the dataset to disk and optionally uploads it
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export theorems as Parquet or JSONL",
	Long: `Writes the theorem records to a file. A JSONL path ending in .gz is
gzip-compressed. --upload copies the file to the S3-compatible bucket
configured under export.s3.

Examples:
  mathmine export --format parquet
  mathmine export --format jsonl --out exports/theorems.jsonl.gz --upload`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "parquet", "Output format: parquet or jsonl")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default <export.dir>/theorems.<format>)")
	exportCmd.Flags().StringVar(&exportRun, "run", "", "Only theorems of this extraction run")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "Upload the file to object storage")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	if exportUpload {
		if err := cfg.ValidateS3(); err != nil {
			return err
		}
	}

	path := exportOut
	if path == "" {
		path = filepath.Join(cfg.Export.Dir, export.FileName("theorems", format))
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.ListTheorems(ctx, store.TheoremFilter{RunID: exportRun})
	if err != nil {
		return err
	}
	if err := export.WriteFile(path, format, records); err != nil {
		return err
	}
	log := logging.For(logger, logging.CategoryExport)
	log.Info("dataset exported", zap.String("path", path), zap.Int("records", len(records)))
	fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %d records to %s\n", styles.Success.Render("✓"), len(records), path)

	if !exportUpload {
		return nil
	}
	uploader, err := export.NewUploader(cfg.Export.S3, log)
	if err != nil {
		return err
	}
	keys, err := uploader.Upload(ctx, path)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "%s uploaded s3://%s/%s\n", styles.Success.Render("✓"), cfg.Export.S3.Bucket, key)
	}
	return nil
}
