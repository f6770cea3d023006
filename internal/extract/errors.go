package extract

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/sheetsync/internal/workbook"
)

var (
	// ErrSheetNotFound matches any *NotFoundError.
	ErrSheetNotFound = workbook.ErrSheetNotFound

	// ErrNoHeader matches any *StructuralError.
	ErrNoHeader = errors.New("header row not found")
)

// NotFoundError reports a sheet name absent from the workbook.
type NotFoundError struct {
	Sheet string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sheet %q not found", e.Sheet)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrSheetNotFound
}

// StructuralError reports a sheet whose layout lacks an expected marker
// within the rows that are searched for it.
type StructuralError struct {
	Sheet  string
	Marker string
	Rows   int
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("sheet %q: no cell containing %q in the first %d rows", e.Sheet, e.Marker, e.Rows)
}

func (e *StructuralError) Unwrap() error {
	return ErrNoHeader
}

// sheetRows reads a sheet, turning the reader's not-found error into a
// *NotFoundError.
func sheetRows(wb workbook.Workbook, sheet string) ([][]any, error) {
	rows, err := wb.Rows(sheet)
	if errors.Is(err, workbook.ErrSheetNotFound) {
		return nil, &NotFoundError{Sheet: sheet}
	}
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}
