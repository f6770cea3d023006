// Package workbook opens spreadsheet files behind a single read-only handle.
//
// Both the binary (.xlsb) and the XML (.xlsx, .xlsm) formats are supported.
// Cell values come back already evaluated: formulas yield their cached
// result, never their text.
package workbook

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/workbook/xlsb"
)

// ErrSheetNotFound is returned by Rows when the workbook has no sheet with
// the requested name.
var ErrSheetNotFound = errors.New("sheet not found")

// ErrUnsupportedFormat is returned by Open for file extensions no reader
// handles.
var ErrUnsupportedFormat = errors.New("unsupported workbook format")

// Workbook is an open spreadsheet. A handle belongs to one caller for one
// operation and must be closed when that operation ends.
type Workbook interface {
	// SheetNames returns the sheet names in file order.
	SheetNames() []string
	// Rows returns the sheet as a grid of nil, float64, string or bool
	// values. Trailing blank cells and trailing blank rows are omitted.
	Rows(sheet string) ([][]any, error)
	Close() error
}

var extensions = map[string]func(string) (Workbook, error){
	".xlsb": openXLSB,
	".xlsx": openXLSX,
	".xlsm": openXLSX,
}

// Supported reports whether name carries an extension Open can read.
func Supported(name string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extensions lists the accepted file extensions, for messages.
func Extensions() []string {
	return []string{".xlsb", ".xlsx", ".xlsm"}
}

// Open opens the workbook at path, choosing a reader by file extension.
func Open(path string) (Workbook, error) {
	open, ok := extensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	return open(path)
}

type xlsbBook struct {
	wb *xlsb.Workbook
}

func openXLSB(path string) (Workbook, error) {
	wb, err := xlsb.Open(path)
	if err != nil {
		return nil, err
	}
	return &xlsbBook{wb: wb}, nil
}

func (b *xlsbBook) SheetNames() []string { return b.wb.Sheets() }

func (b *xlsbBook) Rows(sheet string) ([][]any, error) {
	rows, err := b.wb.Rows(sheet)
	if errors.Is(err, xlsb.ErrSheetNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}
	return rows, err
}

func (b *xlsbBook) Close() error { return b.wb.Close() }
