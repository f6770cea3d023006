package extract

import (
	"math"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/workbook"
	"github.com/xuri/excelize/v2"
)

const (
	// HeaderMarker identifies metric columns in the header row of a goal
	// sheet.
	HeaderMarker = "Cupos"

	DefaultPeriod   = "2025"
	DefaultScanRows = 19
)

// Identification fields present on every goal record.
const (
	FieldPeriod       = "PERIODO"
	FieldCodRegional  = "COD_REGIONAL"
	FieldRegional     = "REGIONAL"
	FieldCodCentro    = "COD_CENTRO"
	FieldCentro       = "CENTRO"
	regionalSheetMark = "REGIONAL"
)

// GoalOptions tunes ReadGoalSheet. Zero values select the defaults.
type GoalOptions struct {
	// Period is stored in the PERIODO field of every record.
	Period string
	// ScanRows is how many rows from the top are searched for the header.
	ScanRows int
}

func (o GoalOptions) withDefaults() GoalOptions {
	if o.Period == "" {
		o.Period = DefaultPeriod
	}
	if o.ScanRows <= 0 {
		o.ScanRows = DefaultScanRows
	}
	return o
}

// Column describes one metric column of a goal sheet.
type Column struct {
	Index    int    `json:"index"`
	Letter   string `json:"letter"`
	// Field is the canonical code; a blank category label yields M_COL_<Letter>.
	Field    string `json:"field"`
	Category string `json:"category"`
	Mapped   bool   `json:"mapped"`
}

// GoalSheet is the result of ReadGoalSheet.
type GoalSheet struct {
	Sheet     string   `json:"sheet_name"`
	HeaderRow int      `json:"header_row"` // 1-based
	Regional  bool     `json:"regional"`
	Columns   []Column `json:"columns"`
	Records   []Record `json:"data"`
}

// IsRegionalSheet reports whether a goal sheet is broken down by regional
// only. Such sheets carry two identification columns instead of four.
func IsRegionalSheet(sheet string) bool {
	return strings.Contains(strings.ToUpper(sheet), regionalSheetMark)
}

// ReadGoalSheet extracts a goal tracking sheet.
//
// The header row is the first of the top opts.ScanRows rows with a cell
// containing "Cupos"; every such cell is a metric column whose field is
// resolved from the category label in the row above. Each later row becomes
// a record with PERIODO, COD_REGIONAL, REGIONAL, COD_CENTRO and CENTRO (the
// last two nil on regional sheets) plus one float64 per metric column.
// Metric cells that are not numbers count as 0. Blank rows and rows with
// neither a regional nor a centre code are skipped.
func ReadGoalSheet(wb workbook.Workbook, sheet string, opts GoalOptions) (*GoalSheet, error) {
	opts = opts.withDefaults()

	rows, err := sheetRows(wb, sheet)
	if err != nil {
		return nil, err
	}

	header := findHeaderRow(rows, opts.ScanRows)
	if header < 0 {
		return nil, &StructuralError{Sheet: sheet, Marker: HeaderMarker, Rows: opts.ScanRows}
	}

	var above []any
	if header > 0 {
		above = rows[header-1]
	}
	columns := metricColumns(rows[header], above)

	gs := &GoalSheet{
		Sheet:     sheet,
		HeaderRow: header + 1,
		Regional:  IsRegionalSheet(sheet),
		Columns:   columns,
		Records:   []Record{},
	}

	for _, row := range rows[header+1:] {
		if blankRow(row) {
			continue
		}
		rec := make(Record, 5+len(columns))
		rec[FieldPeriod] = opts.Period
		rec[FieldCodRegional] = cell(row, 0)
		rec[FieldRegional] = cell(row, 1)
		if gs.Regional {
			rec[FieldCodCentro] = nil
			rec[FieldCentro] = nil
		} else {
			rec[FieldCodCentro] = cell(row, 2)
			rec[FieldCentro] = cell(row, 3)
		}
		if blank(rec[FieldCodRegional]) && blank(rec[FieldCodCentro]) {
			continue
		}
		for _, c := range columns {
			rec[c.Field] = metric(cell(row, c.Index))
		}
		gs.Records = append(gs.Records, rec)
	}
	return gs, nil
}

// findHeaderRow returns the index of the first row within limit holding a
// cell that contains HeaderMarker, or -1.
func findHeaderRow(rows [][]any, limit int) int {
	for r := 0; r < limit && r < len(rows); r++ {
		for _, v := range rows[r] {
			if v != nil && strings.Contains(stringify(v), HeaderMarker) {
				return r
			}
		}
	}
	return -1
}

// metricColumns lists the header cells containing HeaderMarker. Fields that
// resolve to the same code get a numeric suffix so no column is lost.
func metricColumns(header, above []any) []Column {
	var cols []Column
	seen := make(map[string]int)
	for i, v := range header {
		if v == nil || !strings.Contains(stringify(v), HeaderMarker) {
			continue
		}
		letter, _ := excelize.ColumnNumberToName(i + 1)
		category := strings.TrimSpace(stringify(cell(above, i)))

		var field string
		var mapped bool
		if category == "" {
			field = "M_COL_" + letter
		} else {
			field, mapped = ResolveField(category)
		}

		seen[field]++
		if n := seen[field]; n > 1 {
			field += "_" + strconv.Itoa(n)
		}
		cols = append(cols, Column{
			Index:    i,
			Letter:   letter,
			Field:    field,
			Category: category,
			Mapped:   mapped,
		})
	}
	return cols
}

func cell(row []any, i int) any {
	if i < len(row) {
		return row[i]
	}
	return nil
}

// blank reports whether v is nil or whitespace-only text.
func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func blankRow(row []any) bool {
	for _, v := range row {
		if !blank(v) {
			return false
		}
	}
	return true
}

// metric coerces a cell to a number. Numeric text is accepted and booleans
// count as 1 or 0; everything else, including absent cells, is 0.
func metric(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}
