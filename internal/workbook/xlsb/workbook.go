package xlsb

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrSheetNotFound is returned by Rows when the workbook has no sheet with
// the requested name.
var ErrSheetNotFound = errors.New("xlsb: sheet not found")

// Worksheet limits; indexes at or past them mark a corrupt stream.
const (
	maxRows = 1 << 20
	maxCols = 1 << 14
)

const (
	workbookPart      = "xl/workbook.bin"
	workbookRelsPart  = "xl/_rels/workbook.bin.rels"
	sharedStringsPart = "xl/sharedStrings.bin"
)

type sheetRef struct {
	name string
	part string
}

// Workbook is an open .xlsb file. It is not safe for concurrent use.
type Workbook struct {
	zr      *zip.ReadCloser
	files   map[string]*zip.File
	sheets  []sheetRef
	strings []string
}

// Open opens the workbook at filePath and reads its sheet list and shared
// string table. Worksheets are decoded lazily by Rows.
func Open(filePath string) (*Workbook, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("xlsb: open %s: %w", filePath, err)
	}

	wb := &Workbook{zr: zr, files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		wb.files[strings.TrimPrefix(f.Name, "/")] = f
	}

	if err := wb.load(); err != nil {
		zr.Close()
		return nil, err
	}
	return wb, nil
}

func (wb *Workbook) load() error {
	rels, err := wb.readRels()
	if err != nil {
		return err
	}

	if err := wb.readPart(workbookPart, true, func(id int, data []byte) error {
		if id != recSheet {
			return nil
		}
		// hsState (4) and iTabID (4) precede the relationship id and name.
		relID, off, err := readWideString(data, 8)
		if err != nil {
			return fmt.Errorf("sheet record: %w", err)
		}
		name, _, err := readWideString(data, off)
		if err != nil {
			return fmt.Errorf("sheet record: %w", err)
		}
		target, ok := rels[relID]
		if !ok {
			return fmt.Errorf("sheet %q: relationship %q not found", name, relID)
		}
		wb.sheets = append(wb.sheets, sheetRef{name: name, part: target})
		return nil
	}); err != nil {
		return err
	}

	return wb.readPart(sharedStringsPart, false, func(id int, data []byte) error {
		if id != recSi {
			return nil
		}
		// One flags byte (rich text / phonetic) precedes the plain text.
		s, _, err := readWideString(data, 1)
		if err != nil {
			return fmt.Errorf("shared string %d: %w", len(wb.strings), err)
		}
		wb.strings = append(wb.strings, s)
		return nil
	})
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// readRels maps relationship ids to zip part names.
func (wb *Workbook) readRels() (map[string]string, error) {
	f, ok := wb.files[workbookRelsPart]
	if !ok {
		return nil, fmt.Errorf("xlsb: missing %s", workbookRelsPart)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("xlsb: open %s: %w", workbookRelsPart, err)
	}
	defer rc.Close()

	var rels relationships
	if err := xml.NewDecoder(rc).Decode(&rels); err != nil {
		return nil, fmt.Errorf("xlsb: decode %s: %w", workbookRelsPart, err)
	}

	out := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		target := r.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("xl", target)
		}
		out[r.ID] = target
	}
	return out, nil
}

// readPart streams every record of a zip part through fn.
func (wb *Workbook) readPart(name string, required bool, fn func(id int, data []byte) error) error {
	f, ok := wb.files[name]
	if !ok {
		if required {
			return fmt.Errorf("xlsb: missing %s", name)
		}
		return nil
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("xlsb: open %s: %w", name, err)
	}
	defer rc.Close()

	rr := newRecordReader(rc)
	for {
		id, data, err := rr.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xlsb: read %s: %w", name, err)
		}
		if err := fn(id, data); err != nil {
			return fmt.Errorf("xlsb: %s: %w", name, err)
		}
	}
}

// Sheets returns the sheet names in workbook order.
func (wb *Workbook) Sheets() []string {
	names := make([]string, len(wb.sheets))
	for i, s := range wb.sheets {
		names[i] = s.name
	}
	return names
}

// Rows decodes a worksheet into a dense grid indexed by zero-based row and
// column. Values are nil, float64, string or bool; formulas yield their
// cached result. Rows end at their last non-blank cell, rows without values
// appear as empty slices, and the grid ends at the last row holding a value.
func (wb *Workbook) Rows(sheet string) ([][]any, error) {
	var ref *sheetRef
	for i := range wb.sheets {
		if wb.sheets[i].name == sheet {
			ref = &wb.sheets[i]
			break
		}
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}

	var (
		grid   [][]any
		row    = -1
		inData bool
	)
	err := wb.readPart(ref.part, true, func(id int, data []byte) error {
		switch id {
		case recSheetData:
			inData = true
			return nil
		case recSheetDataEnd:
			inData = false
			return nil
		case recRow:
			if !inData {
				return nil
			}
			r, err := readUint32(data, 0)
			if err != nil {
				return err
			}
			if r >= maxRows {
				return fmt.Errorf("row index %d exceeds %d", r, maxRows)
			}
			row = int(r)
			return nil
		}
		if !inData || row < 0 || id > recFormulaErr {
			return nil
		}

		col, err := readUint32(data, 0)
		if err != nil {
			return err
		}
		if col >= maxCols {
			return fmt.Errorf("row %d: column index %d exceeds %d", row+1, col, maxCols)
		}
		v, err := wb.cellValue(id, data)
		if err != nil {
			return fmt.Errorf("cell r%d c%d: %w", row+1, col+1, err)
		}
		if v == nil {
			return nil
		}
		for len(grid) <= row {
			grid = append(grid, nil)
		}
		cells := grid[row]
		for len(cells) <= int(col) {
			cells = append(cells, nil)
		}
		cells[col] = v
		grid[row] = cells
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grid, nil
}

// cellValue decodes the payload of a cell record. The first eight bytes are
// the column index and the style reference.
func (wb *Workbook) cellValue(id int, data []byte) (any, error) {
	const off = 8
	switch id {
	case recBlank:
		return nil, nil
	case recNum:
		v, err := readUint32(data, off)
		if err != nil {
			return nil, err
		}
		return decodeRK(v), nil
	case recFloat, recFormulaFloat:
		return readFloat64(data, off)
	case recBool, recFormulaBool:
		if len(data) <= off {
			return nil, errShortRecord
		}
		return data[off] != 0, nil
	case recBoolErr, recFormulaErr:
		if len(data) <= off {
			return nil, errShortRecord
		}
		if s, ok := errorText[data[off]]; ok {
			return s, nil
		}
		return "#ERR", nil
	case recString:
		idx, err := readUint32(data, off)
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(wb.strings) {
			return nil, fmt.Errorf("shared string index %d out of range", idx)
		}
		return wb.strings[idx], nil
	case recInlineString, recFormulaStr:
		s, _, err := readWideString(data, off)
		return s, err
	}
	return nil, nil
}

// Close releases the underlying file.
func (wb *Workbook) Close() error {
	return wb.zr.Close()
}
