package layers

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jengzang/loi-backend-go/internal/analysis"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/xuri/excelize/v2"
)

// Report suffixes appended to the output base name
const (
	AddressReport = "Address"
	AccountReport = "Accounts"
)

// Table is a header plus rows of int, float64 or string cells
type Table struct {
	Header []string
	Rows   [][]interface{}
}

func locationHeader(fields models.FieldNames) []string {
	return []string{
		analysis.FieldRank,
		analysis.FieldIncidents,
		analysis.FieldIdentities,
		analysis.FieldIncidentIx,
		analysis.FieldIdentityIx,
		analysis.FieldScore,
		fields.PoliceStation,
	}
}

// AddressTable lays out the address report
func AddressTable(rows []models.AddressJoinRow, fields models.FieldNames) Table {
	t := Table{Header: append(locationHeader(fields), fields.Address)}
	for _, r := range rows {
		t.Rows = append(t.Rows, []interface{}{
			r.Rank, r.IncidentCount, r.IdentityCount,
			r.IncidentIndex, r.IdentityIndex, r.CompositeScore,
			r.PoliceJurisdiction, r.Address,
		})
	}
	return t
}

// AccountTable lays out the account report
func AccountTable(rows []models.AccountJoinRow, fields models.FieldNames) Table {
	t := Table{Header: append(locationHeader(fields), fields.AccountID, fields.AccountName, fields.SourceAddress)}
	for _, r := range rows {
		t.Rows = append(t.Rows, []interface{}{
			r.Rank, r.IncidentCount, r.IdentityCount,
			r.IncidentIndex, r.IdentityIndex, r.CompositeScore,
			r.PoliceJurisdiction, r.AccountID, r.AccountName, r.SourceAddress,
		})
	}
	return t
}

// ReportPath returns <dir>/<base>_<suffix>.<format>
func ReportPath(dir, base, suffix, format string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", base, suffix, format))
}

// WriteTable writes t as .xlsx or .csv depending on the extension of path
func WriteTable(path string, t Table) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return writeWorkbook(path, t)
	case ".csv":
		return writeCSV(path, t)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

func writeWorkbook(path string, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeCSV(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		return err
	}
	rec := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i, v := range row {
			rec[i] = formatCell(v)
		}
		if err := w.Write(rec[:len(row)]); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return f.Close()
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
