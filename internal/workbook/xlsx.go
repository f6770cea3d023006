package workbook

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/xuri/excelize/v2"
)

type xlsxBook struct {
	f *excelize.File
}

func openXLSX(path string) (Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &xlsxBook{f: f}, nil
}

func (b *xlsxBook) SheetNames() []string { return b.f.GetSheetList() }

func (b *xlsxBook) Rows(sheet string) ([][]any, error) {
	if !slices.Contains(b.f.GetSheetList(), sheet) {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}

	raw, err := b.f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	grid := make([][]any, len(raw))
	for r, row := range raw {
		if len(row) == 0 {
			continue
		}
		cells := make([]any, len(row))
		for c, s := range row {
			if s == "" {
				continue
			}
			cells[c] = b.cellValue(sheet, c, r, s)
		}
		grid[r] = cells
	}
	return grid, nil
}

// cellValue types a raw cell string using the cell's declared type. Numeric
// cells and formulas with numeric results carry no type, so anything that
// parses as a finite number is treated as one.
func (b *xlsxBook) cellValue(sheet string, col, row int, s string) any {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return s
	}
	typ, err := b.f.GetCellType(sheet, name)
	if err != nil {
		return s
	}

	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString,
		excelize.CellTypeFormula, excelize.CellTypeError:
		return s
	case excelize.CellTypeBool:
		return s == "1" || s == "TRUE" || s == "true"
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return s
	}
	return f
}

func (b *xlsxBook) Close() error { return b.f.Close() }
