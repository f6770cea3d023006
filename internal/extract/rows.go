package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/workbook"
)

// ReadSheet reads sheet using its first row as field names. The record width
// is the widest row in the sheet; blank or missing header cells become
// "column_<index>". Numbers and booleans pass through, other
// values are stringified and trimmed, and blank or missing cells are nil.
// Rows whose values are all nil are skipped. An empty sheet yields an empty
// slice.
//
// Header text is used verbatim, so a repeated header keeps the value of its
// rightmost column.
func ReadSheet(wb workbook.Workbook, sheet string) ([]Record, error) {
	rows, err := sheetRows(wb, sheet)
	if err != nil {
		return nil, err
	}
	records := []Record{}
	if len(rows) == 0 {
		return records, nil
	}

	// Readers trim trailing blank cells, so the header row can be shorter
	// than the data under it.
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	headers := make([]string, width)
	for i := range headers {
		v := cell(rows[0], i)
		h := ""
		if v != nil {
			h = strings.TrimSpace(stringify(v))
		}
		if h == "" {
			h = "column_" + strconv.Itoa(i)
		}
		headers[i] = h
	}

	for _, row := range rows[1:] {
		rec := make(Record, len(headers))
		present := false
		for i, h := range headers {
			var v any
			if i < len(row) {
				v = genericValue(row[i])
			}
			rec[h] = v
		}
		for _, v := range rec {
			if v != nil {
				present = true
				break
			}
		}
		if present {
			records = append(records, rec)
		}
	}
	return records, nil
}

func genericValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64, bool:
		return x
	default:
		return strings.TrimSpace(stringify(x))
	}
}

// stringify renders a cell value as text. Whole numbers print without a
// fractional part.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
