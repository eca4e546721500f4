// Package layers reads and writes the files a run consumes and produces:
// event tables, context layers, the primary LOI shapefile, the two reports
// and the GeoJSON intermediate artifacts.
package layers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jengzang/loi-backend-go/internal/analysis"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for file extensions no reader or writer handles
var ErrUnsupportedFormat = fmt.Errorf("%w: unsupported file format", analysis.ErrInvalidInput)

// CheckEventsFormat reports whether ReadEvents can read path, by extension.
func CheckEventsFormat(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".csv":
		return nil
	}
	return fmt.Errorf("%w: %s (want .xlsx or .csv)", ErrUnsupportedFormat, filepath.Base(path))
}

// ReadEvents reads the event table at path (.xlsx or .csv). The first row is
// the header; columns are bound by name.
func ReadEvents(path string, fields models.FieldNames) ([]models.RawEvent, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s has no header row", analysis.ErrInvalidInput, filepath.Base(path))
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := col[name]; !dup {
			col[name] = i
		}
	}
	for _, name := range []string{fields.Latitude, fields.Longitude, fields.AccountID} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%w: %s is missing column %q", analysis.ErrInvalidInput, filepath.Base(path), name)
		}
	}

	bound := map[string]bool{
		fields.Latitude: true, fields.Longitude: true, fields.AccountID: true,
		fields.AccountName: true, fields.SourceAddress: true,
	}
	cell := func(r []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(r) {
			return ""
		}
		return r[i]
	}

	events := make([]models.RawEvent, 0, len(rows)-1)
	for i, r := range rows[1:] {
		if blank(r) {
			continue
		}
		ev := models.RawEvent{
			Row:           i + 1,
			Latitude:      cell(r, fields.Latitude),
			Longitude:     cell(r, fields.Longitude),
			AccountID:     cell(r, fields.AccountID),
			AccountName:   cell(r, fields.AccountName),
			SourceAddress: cell(r, fields.SourceAddress),
		}
		for name, j := range col {
			if bound[name] || name == "" || j >= len(r) || r[j] == "" {
				continue
			}
			if ev.Metadata == nil {
				ev.Metadata = make(map[string]string)
			}
			ev.Metadata[name] = r[j]
		}
		events = append(events, ev)
	}
	return events, nil
}

func readTable(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readWorkbook(path)
	case ".csv":
		return readCSV(path)
	default:
		return nil, CheckEventsFormat(path)
	}
}

// readWorkbook returns the rows of the first sheet
func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", analysis.ErrInvalidInput, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: %s has no sheets", analysis.ErrInvalidInput, filepath.Base(path))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %s: %v", analysis.ErrInvalidInput, sheets[0], err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open csv: %v", analysis.ErrInvalidInput, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", analysis.ErrInvalidInput, err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func blank(r []string) bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
