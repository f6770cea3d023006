package workbook

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/sheetsync/internal/workbook/xlsb/xlsbtest"
	"github.com/xuri/excelize/v2"
)

func writeXLSX(t *testing.T, sheets map[string][][]any, order ...string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		for r, row := range sheets[name] {
			for c, v := range row {
				if v == nil {
					continue
				}
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				if err := f.SetCellValue(name, cell, v); err != nil {
					t.Fatalf("set %s: %v", cell, err)
				}
			}
		}
	}

	path := filepath.Join(t.TempDir(), "test.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

func TestSupported(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Ejecución FPI.xlsb", true},
		{"metas.XLSX", true},
		{"macro.xlsm", true},
		{"datos.csv", false},
		{"sin_extension", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Supported(tt.name); got != tt.want {
				t.Errorf("Supported(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestOpen_Unsupported(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "datos.csv"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Open() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestOpen_XLSX(t *testing.T) {
	path := writeXLSX(t, map[string][][]any{
		"Datos": {
			{"Regional", "Cupos", "Activo"},
			{"Antioquia", 1500, true},
			{" Bogotá ", 12.5, nil},
		},
		"SQL": {{"x"}},
	}, "Datos", "SQL")

	wb, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer wb.Close()

	names := wb.SheetNames()
	if len(names) != 2 || names[0] != "Datos" || names[1] != "SQL" {
		t.Fatalf("SheetNames() = %v, want [Datos SQL]", names)
	}

	rows, err := wb.Rows("Datos")
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if rows[0][0] != "Regional" {
		t.Errorf("rows[0][0] = %v, want Regional", rows[0][0])
	}
	if rows[1][1] != float64(1500) {
		t.Errorf("rows[1][1] = %v (%T), want float64 1500", rows[1][1], rows[1][1])
	}
	if rows[1][2] != true {
		t.Errorf("rows[1][2] = %v (%T), want true", rows[1][2], rows[1][2])
	}
	if rows[2][0] != " Bogotá " {
		t.Errorf("rows[2][0] = %q, want untrimmed text", rows[2][0])
	}
	if rows[2][1] != 12.5 {
		t.Errorf("rows[2][1] = %v, want 12.5", rows[2][1])
	}
	if len(rows[2]) != 2 {
		t.Errorf("len(rows[2]) = %d, want trailing blank trimmed to 2", len(rows[2]))
	}
}

func TestOpen_XLSB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Ejecución FPI.xlsb")
	err := xlsbtest.Write(path,
		xlsbtest.Sheet{Name: "Hoja1", Rows: [][]any{{"A", "B"}, {1, "x"}}},
	)
	if err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	wb, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer wb.Close()

	rows, err := wb.Rows("Hoja1")
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) != 2 || rows[1][0] != float64(1) || rows[1][1] != "x" {
		t.Errorf("Rows() = %v, want [[A B] [1 x]]", rows)
	}
}

func TestRows_SheetNotFound(t *testing.T) {
	xlsxPath := writeXLSX(t, map[string][][]any{"Uno": {{"a"}}}, "Uno")
	xlsbPath := filepath.Join(t.TempDir(), "uno.xlsb")
	if err := xlsbtest.Write(xlsbPath, xlsbtest.Sheet{Name: "Uno"}); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{xlsxPath, xlsbPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			wb, err := Open(path)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer wb.Close()

			if _, err := wb.Rows("Dos"); !errors.Is(err, ErrSheetNotFound) {
				t.Errorf("Rows() error = %v, want ErrSheetNotFound", err)
			}
		})
	}
}
