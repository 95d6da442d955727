package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

type Quoting string

const (
	// QuotingStandard quotes fields that contain delimiters, quotes or
	// line breaks (RFC 4180) and ends every record with a newline.
	QuotingStandard Quoting = "standard"
	// QuotingLegacy joins fields with commas verbatim and records with "\n",
	// without a trailing newline. Embedded commas are not escaped.
	QuotingLegacy Quoting = "legacy"
)

func WriteCSV(w io.Writer, t Table, q Quoting) error {
	switch q {
	case QuotingLegacy:
		lines := make([]string, 0, len(t.Rows)+1)
		lines = append(lines, strings.Join(t.Header, ","))
		for _, row := range t.Rows {
			lines = append(lines, strings.Join(row, ","))
		}
		_, err := io.WriteString(w, strings.Join(lines, "\n"))
		return err

	case QuotingStandard, "":
		cw := csv.NewWriter(w)
		if err := cw.Write(t.Header); err != nil {
			return err
		}
		if err := cw.WriteAll(t.Rows); err != nil {
			return err
		}
		return cw.Error()

	default:
		return fmt.Errorf("unknown csv quoting %q", q)
	}
}

// WriteXLSX renders t as a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, sheet string, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := t.Header
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := t.Rows[i]
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
