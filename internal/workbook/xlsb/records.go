// Package xlsb reads cell values out of Excel Binary Workbooks (.xlsb).
//
// An .xlsb file is a zip container whose parts are BIFF12 record streams.
// Only the parts needed to recover cached cell values are decoded: the
// workbook sheet list, the workbook relationships, the shared string table
// and each worksheet's sheet data. Styles, formulas, comments and drawings
// are skipped.
package xlsb

// BIFF12 record identifiers, encoded on disk as variable-length integers.
const (
	// workbook.bin
	recSheet = 0x019C

	// sharedStrings.bin
	recSi = 0x0013

	// sheetN.bin
	recRow          = 0x0000
	recBlank        = 0x0001
	recNum          = 0x0002
	recBoolErr      = 0x0003
	recBool         = 0x0004
	recFloat        = 0x0005
	recInlineString = 0x0006
	recString       = 0x0007
	recFormulaStr   = 0x0008
	recFormulaFloat = 0x0009
	recFormulaBool  = 0x000A
	recFormulaErr   = 0x000B
	recSheetData    = 0x0191
	recSheetDataEnd = 0x0192
)

// errorText maps BIFF12 error codes to the text Excel displays for them.
var errorText = map[byte]string{
	0x00: "#NULL!",
	0x07: "#DIV/0!",
	0x0F: "#VALUE!",
	0x17: "#REF!",
	0x1D: "#NAME?",
	0x24: "#NUM!",
	0x2A: "#N/A",
	0x2B: "#GETTING_DATA",
}
