package xlsb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf16"
)

// maxRecordLen guards against corrupt length prefixes.
const maxRecordLen = 1 << 26

var errShortRecord = errors.New("xlsb: record truncated")

// recordReader iterates over the records of a BIFF12 stream.
type recordReader struct {
	r   *bufio.Reader
	buf []byte
}

func newRecordReader(r io.Reader) *recordReader {
	return &recordReader{r: bufio.NewReader(r)}
}

// next returns the next record. The returned slice is only valid until the
// following call. io.EOF is returned at a clean end of stream.
func (rr *recordReader) next() (int, []byte, error) {
	id, err := rr.readID()
	if err != nil {
		return 0, nil, err
	}
	n, err := rr.readLen()
	if err != nil {
		return 0, nil, unexpected(err)
	}
	if n > maxRecordLen {
		return 0, nil, fmt.Errorf("xlsb: record 0x%04X length %d exceeds limit", id, n)
	}
	if cap(rr.buf) < n {
		rr.buf = make([]byte, n)
	}
	data := rr.buf[:n]
	if _, err := io.ReadFull(rr.r, data); err != nil {
		return 0, nil, unexpected(err)
	}
	return id, data, nil
}

// readID reads a record type: up to four bytes, little endian, with the
// high bit of each byte flagging a continuation. The flag bits are kept.
func (rr *recordReader) readID() (int, error) {
	v := 0
	for i := 0; i < 4; i++ {
		b, err := rr.r.ReadByte()
		if err != nil {
			if i == 0 {
				return 0, err
			}
			return 0, unexpected(err)
		}
		v |= int(b) << (8 * i)
		if b&0x80 == 0 {
			break
		}
	}
	return v, nil
}

// readLen reads a record size: up to four 7-bit groups, low group first.
func (rr *recordReader) readLen() (int, error) {
	v := 0
	for i := 0; i < 4; i++ {
		b, err := rr.r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= int(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			break
		}
	}
	return v, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func readUint32(b []byte, off int) (uint32, error) {
	if off < 0 || off+4 > len(b) {
		return 0, errShortRecord
	}
	return binary.LittleEndian.Uint32(b[off:]), nil
}

func readFloat64(b []byte, off int) (float64, error) {
	if off < 0 || off+8 > len(b) {
		return 0, errShortRecord
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off:])), nil
}

// readWideString decodes an XLWideString (uint32 character count followed by
// UTF-16LE code units) at off and returns the offset just past it. A count of
// 0xFFFFFFFF marks a null string.
func readWideString(b []byte, off int) (string, int, error) {
	n, err := readUint32(b, off)
	if err != nil {
		return "", off, err
	}
	off += 4
	if n == math.MaxUint32 {
		return "", off, nil
	}
	end := off + int(n)*2
	if int(n) > len(b) || end > len(b) {
		return "", off, errShortRecord
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[off+2*i:])
	}
	return string(utf16.Decode(units)), end, nil
}

// decodeRK unpacks the compressed RK number format: bit 0 scales by 1/100,
// bit 1 selects a 30-bit signed integer over the top 30 bits of a double.
func decodeRK(v uint32) float64 {
	var f float64
	if v&0x02 != 0 {
		f = float64(int32(v) >> 2)
	} else {
		f = math.Float64frombits(uint64(v&0xFFFFFFFC) << 32)
	}
	if v&0x01 != 0 {
		f /= 100
	}
	return f
}
