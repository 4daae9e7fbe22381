package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/jszwec/csvutil"

	"github.com/lox/hruclean/internal/models"
)

var ErrSchema = errors.New("schema error")

var (
	requiredHRUColumns      = []string{"ID", "SBID", "Area", "LandUse"}
	requiredSubBasinColumns = []string{"SBID"}
)

func LoadHRUs(r io.Reader) ([]models.HRU, error) {
	var hrus []models.HRU
	if err := decodeTable(r, "hru", requiredHRUColumns, models.HRU{}, func(dec *csvutil.Decoder) error {
		var h models.HRU
		if err := dec.Decode(&h); err != nil {
			return err
		}
		hrus = append(hrus, h)
		return nil
	}); err != nil {
		return nil, err
	}

	flagged := 0
	for i := range hrus {
		if flags := ValidateHRU(&hrus[i]); len(flags) > 0 {
			log.Printf("ingest: hru %d flagged: %s", hrus[i].ID, QualityFlagsToJSON(flags))
			flagged++
		}
	}
	log.Printf("ingest: parsed %d HRUs (%d flagged)", len(hrus), flagged)
	return hrus, nil
}

func LoadSubBasins(r io.Reader) ([]models.SubBasin, error) {
	var subbasins []models.SubBasin
	if err := decodeTable(r, "sub-basin", requiredSubBasinColumns, models.SubBasin{}, func(dec *csvutil.Decoder) error {
		var sb models.SubBasin
		if err := dec.Decode(&sb); err != nil {
			return err
		}
		subbasins = append(subbasins, sb)
		return nil
	}); err != nil {
		return nil, err
	}
	log.Printf("ingest: parsed %d sub-basins", len(subbasins))
	return subbasins, nil
}

// decodeTable checks the header against the record type and calls next once
// per data row. Row errors are collected so a malformed file reports every
// bad row at once.
func decodeTable(r io.Reader, table string, required []string, record any, next func(*csvutil.Decoder) error) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s table: %w", table, err)
	}

	dec, err := csvutil.NewDecoder(csv.NewReader(bytes.NewReader(data)))
	if err == io.EOF {
		return fmt.Errorf("%w: %s table is empty", ErrSchema, table)
	}
	if err != nil {
		return fmt.Errorf("read %s header: %w", table, err)
	}

	if err := checkHeader(table, dec.Header(), required, record); err != nil {
		return err
	}

	var merr *multierror.Error
	for row := 1; ; row++ {
		err := next(dec)
		if err == io.EOF {
			break
		}
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%w: %s row %d: %v", ErrSchema, table, row, err))
		}
	}
	return merr.ErrorOrNil()
}

func checkHeader(table string, header, required []string, record any) error {
	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[col] = true
	}

	var merr *multierror.Error
	for _, col := range required {
		if !present[col] {
			merr = multierror.Append(merr, fmt.Errorf("%w: %s table missing column %q", ErrSchema, table, col))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return err
	}

	known, err := csvutil.Header(record, "csv")
	if err != nil {
		return fmt.Errorf("%s header: %w", table, err)
	}
	knownSet := make(map[string]bool, len(known))
	for _, col := range known {
		knownSet[col] = true
	}
	var ignored []string
	for _, col := range header {
		if !knownSet[col] {
			ignored = append(ignored, col)
		}
	}
	if len(ignored) > 0 {
		log.Printf("ingest: %s table: ignoring columns %s", table, strings.Join(ignored, ", "))
	}
	return nil
}
