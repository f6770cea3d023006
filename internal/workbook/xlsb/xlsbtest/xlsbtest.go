// Package xlsbtest writes minimal .xlsb workbooks for tests.
//
// The output carries only the parts the xlsb reader consumes: the sheet
// list, its relationships, a shared string table and one worksheet stream
// per sheet. Excel itself would want styles and content types as well.
package xlsbtest

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"unicode/utf16"
)

// Sheet is one worksheet to write. Rows are zero-based; cell values may be
// nil, string, bool, int or float64. Nil cells are omitted from the stream.
// Cells are written after Rows at their own coordinates, which need not be
// valid worksheet positions.
type Sheet struct {
	Name  string
	Rows  [][]any
	Cells []Cell
}

// Cell is a single value at a zero-based position.
type Cell struct {
	Row, Col uint32
	Value    any
}

// Write creates path as an .xlsb workbook holding sheets in order.
func Write(path string, sheets ...Sheet) error {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	sst := newStringTable()
	var book, rels bytes.Buffer

	rels.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	rels.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)

	for i, sh := range sheets {
		relID := fmt.Sprintf("rId%d", i+1)
		fmt.Fprintf(&rels, `<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet%d.bin"/>`, relID, i+1)

		var rec bytes.Buffer
		putUint32(&rec, 0)
		putUint32(&rec, uint32(i+1))
		putWideString(&rec, relID)
		putWideString(&rec, sh.Name)
		writeRecord(&book, 0x019C, rec.Bytes())

		data, err := sheetStream(sh, sst)
		if err != nil {
			return fmt.Errorf("sheet %q: %w", sh.Name, err)
		}
		if err := addPart(zw, fmt.Sprintf("xl/worksheets/sheet%d.bin", i+1), data); err != nil {
			return err
		}
	}
	rels.WriteString(`</Relationships>`)

	if err := addPart(zw, "xl/workbook.bin", book.Bytes()); err != nil {
		return err
	}
	if err := addPart(zw, "xl/_rels/workbook.bin.rels", rels.Bytes()); err != nil {
		return err
	}
	if err := addPart(zw, "xl/sharedStrings.bin", sst.stream()); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func sheetStream(sh Sheet, sst *stringTable) ([]byte, error) {
	var out bytes.Buffer
	writeRecord(&out, 0x0191, nil)
	for r, row := range sh.Rows {
		writeRow(&out, uint32(r))
		for c, v := range row {
			if err := writeCell(&out, sst, uint32(r), uint32(c), v); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range sh.Cells {
		writeRow(&out, c.Row)
		if err := writeCell(&out, sst, c.Row, c.Col, c.Value); err != nil {
			return nil, err
		}
	}
	writeRecord(&out, 0x0192, nil)
	return out.Bytes(), nil
}

func writeRow(out *bytes.Buffer, r uint32) {
	var hdr bytes.Buffer
	putUint32(&hdr, r)
	writeRecord(out, 0x0000, hdr.Bytes())
}

func writeCell(out *bytes.Buffer, sst *stringTable, r, c uint32, v any) error {
	if v == nil {
		return nil
	}
	var rec bytes.Buffer
	putUint32(&rec, c)
	putUint32(&rec, 0)
	switch x := v.(type) {
	case string:
		putUint32(&rec, sst.index(x))
		writeRecord(out, 0x0007, rec.Bytes())
	case bool:
		if x {
			rec.WriteByte(1)
		} else {
			rec.WriteByte(0)
		}
		writeRecord(out, 0x0004, rec.Bytes())
	case int:
		if x < -(1<<29) || x >= 1<<29 {
			binary.Write(&rec, binary.LittleEndian, math.Float64bits(float64(x)))
			writeRecord(out, 0x0005, rec.Bytes())
			return nil
		}
		putUint32(&rec, uint32(int32(x))<<2|0x02)
		writeRecord(out, 0x0002, rec.Bytes())
	case float64:
		binary.Write(&rec, binary.LittleEndian, math.Float64bits(x))
		writeRecord(out, 0x0005, rec.Bytes())
	default:
		return fmt.Errorf("unsupported cell type %T at r%d c%d", v, r+1, c+1)
	}
	return nil
}

type stringTable struct {
	items []string
	pos   map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{pos: make(map[string]uint32)}
}

func (t *stringTable) index(s string) uint32 {
	if i, ok := t.pos[s]; ok {
		return i
	}
	i := uint32(len(t.items))
	t.items = append(t.items, s)
	t.pos[s] = i
	return i
}

func (t *stringTable) stream() []byte {
	var out bytes.Buffer
	for _, s := range t.items {
		var rec bytes.Buffer
		rec.WriteByte(0)
		putWideString(&rec, s)
		writeRecord(&out, 0x0013, rec.Bytes())
	}
	return out.Bytes()
}

func addPart(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func writeRecord(w *bytes.Buffer, id int, data []byte) {
	for i := 0; i < 4; i++ {
		b := byte(id >> (8 * i))
		w.WriteByte(b)
		if b&0x80 == 0 {
			break
		}
	}
	n := len(data)
	for i := 0; i < 4; i++ {
		b := byte(n & 0x7F)
		n >>= 7
		if n > 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if n == 0 {
			break
		}
	}
	w.Write(data)
}

func putUint32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func putWideString(w *bytes.Buffer, s string) {
	units := utf16.Encode([]rune(s))
	putUint32(w, uint32(len(units)))
	for _, u := range units {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], u)
		w.Write(b[:])
	}
}
