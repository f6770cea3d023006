// Package extract turns workbook sheets into records.
//
// Two extractors are provided. ReadSheet treats the first row as headers and
// maps every following row onto them. ReadGoalSheet handles the goal
// tracking layout, where the header row floats somewhere near the top of
// the sheet, metric columns are marked "Cupos" and their meaning is given by
// the category label directly above.
//
// Extractors never open or close workbooks; the caller owns the handle.
package extract

import (
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/workbook"
)

// Record maps a field name to a float64, string, bool or nil value.
type Record = map[string]any

// SheetNames returns the workbook's sheet names in file order. With
// excludeSQL set, names containing "SQL" in any case are left out.
func SheetNames(wb workbook.Workbook, excludeSQL bool) []string {
	names := wb.SheetNames()
	if !excludeSQL {
		return names
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if strings.Contains(strings.ToUpper(name), "SQL") {
			continue
		}
		out = append(out, name)
	}
	return out
}
