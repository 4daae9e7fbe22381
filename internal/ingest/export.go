package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lox/hruclean/internal/models"
)

func WriteHRUs(w io.Writer, hrus []models.HRU) error {
	return writeCSV(w, hrus)
}

func WriteSubBasins(w io.Writer, subbasins []models.SubBasin) error {
	return writeCSV(w, subbasins)
}

func WriteSummary(w io.Writer, summary []models.SubBasinSummary) error {
	return writeCSV(w, summary)
}

func writeCSV(w io.Writer, v any) error {
	b, err := csvutil.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	_, err = w.Write(b)
	return err
}

// WriteHRUsParquet writes the table as a single snappy-compressed row group.
func WriteHRUsParquet(w io.Writer, hrus []models.HRU) (err error) {
	rowGroup := int64(len(hrus))
	if rowGroup == 0 {
		rowGroup = 1
	}
	pw, err := writer.NewParquetWriterFromWriter(w, new(models.HRU), rowGroup)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, h := range hrus {
		if err := pw.Write(h); err != nil {
			return fmt.Errorf("write hru %d: %w", h.ID, err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("finalize parquet: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet: %w", err)
	}
	return nil
}

// WriteFile creates path (and its directory) and hands it to write.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
