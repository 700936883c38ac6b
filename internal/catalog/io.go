package catalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadCSV loads a catalog from a headered CSV file. The header names the
// columns (x,y,flux or RA,Dec,flux, optionally id); normalization happens
// through FromColumns.
func ReadCSV(path string) (*Catalog, Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Pixel, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, Pixel, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, Pixel, &ValidationError{Catalog: path, Reason: "empty file"}
	}

	header := records[0]
	cols := make(Columns, len(header))
	for j, h := range header {
		vals := make([]float64, 0, len(records)-1)
		for i, rec := range records[1:] {
			if j >= len(rec) {
				return nil, Pixel, &ValidationError{Catalog: path, Reason: fmt.Sprintf("row %d is short", i+2)}
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
			if err != nil {
				return nil, Pixel, &ValidationError{Catalog: path, Field: h, Reason: fmt.Sprintf("row %d: %v", i+2, err)}
			}
			vals = append(vals, v)
		}
		cols[strings.TrimSpace(h)] = vals
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return FromColumns(name, cols)
}

// WriteCSV stores a pixel catalog with an id,x,y,flux header.
func WriteCSV(path string, c *Catalog) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "x", "y", "flux"}); err != nil {
		return err
	}
	for _, s := range c.Sources {
		rec := []string{
			strconv.Itoa(s.ID),
			strconv.FormatFloat(s.X, 'f', -1, 64),
			strconv.FormatFloat(s.Y, 'f', -1, 64),
			strconv.FormatFloat(s.Flux, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
