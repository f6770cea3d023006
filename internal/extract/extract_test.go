package extract

import (
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/sheetsync/internal/workbook"
)

// gridBook is an in-memory workbook.
type gridBook struct {
	names  []string
	sheets map[string][][]any
}

func newGridBook() *gridBook {
	return &gridBook{sheets: make(map[string][][]any)}
}

func (b *gridBook) add(name string, rows ...[]any) *gridBook {
	b.names = append(b.names, name)
	b.sheets[name] = rows
	return b
}

func (b *gridBook) SheetNames() []string { return b.names }

func (b *gridBook) Rows(sheet string) ([][]any, error) {
	rows, ok := b.sheets[sheet]
	if !ok {
		return nil, fmt.Errorf("%w: %q", workbook.ErrSheetNotFound, sheet)
	}
	return rows, nil
}

func (b *gridBook) Close() error { return nil }

func row(v ...any) []any { return v }

func TestSheetNames(t *testing.T) {
	wb := newGridBook().
		add("Resumen").
		add("SQL Base").
		add("consulta sql").
		add("5. FORMACIÓN X CTROS")

	tests := []struct {
		name    string
		exclude bool
		want    []string
	}{
		{"all", false, []string{"Resumen", "SQL Base", "consulta sql", "5. FORMACIÓN X CTROS"}},
		{"exclude sql", true, []string{"Resumen", "5. FORMACIÓN X CTROS"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SheetNames(wb, tt.exclude)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("SheetNames() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadSheet_SynthesizedHeaders(t *testing.T) {
	wb := newGridBook().add("Hoja",
		row("A", "", nil),
		row(1.0, "x", nil),
	)

	got, err := ReadSheet(wb, "Hoja")
	if err != nil {
		t.Fatalf("ReadSheet() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(got))
	}
	rec := got[0]
	if len(rec) != 3 {
		t.Errorf("len(record) = %d, want 3: %v", len(rec), rec)
	}
	if rec["A"] != 1.0 {
		t.Errorf("A = %v, want 1", rec["A"])
	}
	if rec["column_1"] != "x" {
		t.Errorf("column_1 = %v, want x", rec["column_1"])
	}
	if v, ok := rec["column_2"]; !ok || v != nil {
		t.Errorf("column_2 = %v (present %v), want nil present", v, ok)
	}
}

func TestReadSheet_DropsAllNilRows(t *testing.T) {
	wb := newGridBook().add("Hoja",
		row("Regional", "Total", "Nota"),
		row("Antioquia", 10.0, "  ok  "),
		row(nil, nil, nil),
		nil,
		row("Caldas"),
		row(nil, true),
	)

	got, err := ReadSheet(wb, "Hoja")
	if err != nil {
		t.Fatalf("ReadSheet() error = %v", err)
	}
	// five data rows, two of them entirely nil
	if len(got) != 3 {
		t.Fatalf("len(records) = %d, want 3: %v", len(got), got)
	}
	if got[0]["Nota"] != "ok" {
		t.Errorf("Nota = %q, want trimmed ok", got[0]["Nota"])
	}
	if got[1]["Regional"] != "Caldas" || got[1]["Total"] != nil || got[1]["Nota"] != nil {
		t.Errorf("short row = %v, want missing cells as nil", got[1])
	}
	if got[2]["Total"] != true {
		t.Errorf("bool cell = %v, want true", got[2]["Total"])
	}
	for i, rec := range got {
		if len(rec) != 3 {
			t.Errorf("record %d has %d fields, want 3", i, len(rec))
		}
	}
}

func TestReadSheet_NumericHeaderAndText(t *testing.T) {
	wb := newGridBook().add("Hoja",
		row(2025.0, " Centro "),
		row("  ", "Medellín"),
	)
	got, err := ReadSheet(wb, "Hoja")
	if err != nil {
		t.Fatalf("ReadSheet() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(got))
	}
	if got[0]["2025"] != "" {
		t.Errorf("2025 = %q, want empty string for whitespace cell", got[0]["2025"])
	}
	if got[0]["Centro"] != "Medellín" {
		t.Errorf("Centro = %v, want Medellín", got[0]["Centro"])
	}
}

func TestReadSheet_Empty(t *testing.T) {
	wb := newGridBook().add("Vacia")
	got, err := ReadSheet(wb, "Vacia")
	if err != nil {
		t.Fatalf("ReadSheet() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ReadSheet() = %#v, want empty non-nil slice", got)
	}
}

func TestReadSheet_NotFound(t *testing.T) {
	_, err := ReadSheet(newGridBook(), "Falta")

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
	if nf.Sheet != "Falta" {
		t.Errorf("Sheet = %q, want Falta", nf.Sheet)
	}
	if !errors.Is(err, ErrSheetNotFound) {
		t.Error("errors.Is(err, ErrSheetNotFound) = false")
	}
}

func TestResolveField(t *testing.T) {
	tests := []struct {
		category string
		want     string
		mapped   bool
	}{
		{"Tecnólogos Regular - Presencial", "M_TEC_REG_PRE", true},
		{"Tecnologos Regular - Presencial", "M_TEC_REG_PRE", true},
		{"  TECNÓLOGOS REGULAR - PRESENCIAL ", "M_TEC_REG_PRE", true},
		{"SubTotal Tecnólogos", "M_SUBT_TEC", true},
		{"Total Educación Superior", "M_TOT_EDU_SUPERIOR", true},
		{"Educación Superior", "M_EDU_SUPERIOR", true},
		{"Complementaria - Bilingüismo", "M_COMP_BIL", true},
		{"Total Formación Profesional Integral (FPI)", "M_TOT_FPI", true},
		{"Nueva Categoría XYZ", "M_nueva_categoria_xyz", false},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			got, mapped := ResolveField(tt.category)
			if got != tt.want || mapped != tt.mapped {
				t.Errorf("ResolveField(%q) = (%q, %v), want (%q, %v)", tt.category, got, mapped, tt.want, tt.mapped)
			}
		})
	}
}

// Every rule must be reachable: no earlier rule may swallow a later one.
func TestCategoryRules_Precedence(t *testing.T) {
	for _, r := range categoryRules {
		got, _ := ResolveField(r.Category)
		if got != r.Field {
			t.Errorf("category %q resolves to %s, want %s", r.Category, got, r.Field)
		}
	}
}

func goalBook(sheet string, ids int) *gridBook {
	title := row("SEGUIMIENTO A METAS")
	categories := make([]any, ids)
	header := make([]any, ids)
	header[0] = "Cod. Regional"
	categories = append(categories, "Tecnólogos Regular - Presencial", nil, "Nueva Categoría XYZ", nil)
	header = append(header, "Cupos", "Ejecución", "Cupos 2025", "%")

	data := func(id ...any) []any {
		return append(id, 0.0, 0.0, 0.0, 0.0)
	}
	r1 := data(ids4(ids, 5.0, "ANTIOQUIA", 9101.0, "Centro Minero")...)
	r1[ids], r1[ids+2] = 120.0, "N/A"
	r2 := data(ids4(ids, 11.0, "DISTRITO CAPITAL", nil, nil)...)
	r2[ids], r2[ids+2] = "45", 7.5
	orphan := data(ids4(ids, nil, "TOTAL", nil, nil)...)
	centreOnly := data(ids4(ids, nil, nil, 9502.0, "Centro Huila")...)

	return newGridBook().add(sheet,
		title,
		nil,
		categories,
		header,
		r1,
		nil,
		r2,
		orphan,
		centreOnly,
		row(nil, "   "),
	)
}

func ids4(n int, v ...any) []any {
	return append([]any(nil), v[:n]...)
}

func TestReadGoalSheet_Centres(t *testing.T) {
	const sheet = "5. FORMACIÓN X CTROS"
	gs, err := ReadGoalSheet(goalBook(sheet, 4), sheet, GoalOptions{})
	if err != nil {
		t.Fatalf("ReadGoalSheet() error = %v", err)
	}
	if gs.HeaderRow != 4 {
		t.Errorf("HeaderRow = %d, want 4", gs.HeaderRow)
	}
	if gs.Regional {
		t.Error("Regional = true, want false")
	}
	if len(gs.Columns) != 2 {
		t.Fatalf("Columns = %v, want 2 metric columns", gs.Columns)
	}
	if c := gs.Columns[0]; c.Field != "M_TEC_REG_PRE" || c.Index != 4 || c.Letter != "E" || !c.Mapped {
		t.Errorf("Columns[0] = %+v", c)
	}
	if c := gs.Columns[1]; c.Field != "M_nueva_categoria_xyz" || c.Mapped {
		t.Errorf("Columns[1] = %+v", c)
	}

	// r1, r2 and the centre-only row survive; the TOTAL row has no codes
	if len(gs.Records) != 3 {
		t.Fatalf("len(Records) = %d, want 3: %v", len(gs.Records), gs.Records)
	}
	for i, rec := range gs.Records {
		if len(rec) != 5+len(gs.Columns) {
			t.Errorf("record %d has %d fields, want %d", i, len(rec), 5+len(gs.Columns))
		}
		if rec[FieldPeriod] != DefaultPeriod {
			t.Errorf("record %d PERIODO = %v", i, rec[FieldPeriod])
		}
	}

	first := gs.Records[0]
	if first[FieldCodCentro] != 9101.0 || first[FieldCentro] != "Centro Minero" {
		t.Errorf("centre fields = %v / %v", first[FieldCodCentro], first[FieldCentro])
	}
	if first["M_TEC_REG_PRE"] != 120.0 {
		t.Errorf("M_TEC_REG_PRE = %v, want 120", first["M_TEC_REG_PRE"])
	}
	if first["M_nueva_categoria_xyz"] != 0.0 {
		t.Errorf("N/A metric = %v, want 0", first["M_nueva_categoria_xyz"])
	}

	second := gs.Records[1]
	if second[FieldCodCentro] != nil {
		t.Errorf("COD_CENTRO = %v, want nil passed through", second[FieldCodCentro])
	}
	if second["M_TEC_REG_PRE"] != 45.0 {
		t.Errorf("numeric text metric = %v, want 45", second["M_TEC_REG_PRE"])
	}

	third := gs.Records[2]
	if third[FieldCodRegional] != nil || third[FieldCodCentro] != 9502.0 {
		t.Errorf("centre-only record = %v", third)
	}
}

func TestReadGoalSheet_Regional(t *testing.T) {
	const sheet = "4. FORMACIÓN X REGIONAL"
	gs, err := ReadGoalSheet(goalBook(sheet, 2), sheet, GoalOptions{Period: "2026"})
	if err != nil {
		t.Fatalf("ReadGoalSheet() error = %v", err)
	}
	if !gs.Regional {
		t.Error("Regional = false, want true")
	}
	// the centre-only row loses its centre code and is dropped
	if len(gs.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2: %v", len(gs.Records), gs.Records)
	}
	for i, rec := range gs.Records {
		if v, ok := rec[FieldCodCentro]; !ok || v != nil {
			t.Errorf("record %d COD_CENTRO = %v (present %v), want nil", i, v, ok)
		}
		if v, ok := rec[FieldCentro]; !ok || v != nil {
			t.Errorf("record %d CENTRO = %v (present %v), want nil", i, v, ok)
		}
		if rec[FieldPeriod] != "2026" {
			t.Errorf("record %d PERIODO = %v, want 2026", i, rec[FieldPeriod])
		}
	}
	if gs.Records[0]["M_TEC_REG_PRE"] != 120.0 {
		t.Errorf("M_TEC_REG_PRE = %v, want 120", gs.Records[0]["M_TEC_REG_PRE"])
	}
}

func TestReadGoalSheet_NoHeader(t *testing.T) {
	rows := make([][]any, 0, 25)
	for i := 0; i < 19; i++ {
		rows = append(rows, row(fmt.Sprintf("fila %d", i+1), float64(i)))
	}
	// a marker just past the scan window does not count
	rows = append(rows, row("Cupos"))

	wb := newGridBook().add("5. FORMACIÓN X CTROS", rows...)
	gs, err := ReadGoalSheet(wb, "5. FORMACIÓN X CTROS", GoalOptions{})
	if gs != nil {
		t.Errorf("ReadGoalSheet() = %v, want nil result", gs)
	}
	var se *StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StructuralError", err)
	}
	if se.Rows != DefaultScanRows || se.Marker != HeaderMarker {
		t.Errorf("StructuralError = %+v", se)
	}
	if !errors.Is(err, ErrNoHeader) {
		t.Error("errors.Is(err, ErrNoHeader) = false")
	}
}

func TestReadGoalSheet_HeaderOnLastScannedRow(t *testing.T) {
	rows := make([][]any, 18)
	rows = append(rows, row("Cod", "Nombre", "Cupos"), row(1.0, "A", 3.0))

	wb := newGridBook().add("X REGIONAL", rows...)
	gs, err := ReadGoalSheet(wb, "X REGIONAL", GoalOptions{})
	if err != nil {
		t.Fatalf("ReadGoalSheet() error = %v", err)
	}
	if gs.HeaderRow != 19 {
		t.Errorf("HeaderRow = %d, want 19", gs.HeaderRow)
	}
	// the row above is empty, so the column has no category
	if len(gs.Columns) != 1 || gs.Columns[0].Field != "M_COL_C" {
		t.Errorf("Columns = %+v, want one M_COL_C", gs.Columns)
	}
	if len(gs.Records) != 1 || gs.Records[0]["M_COL_C"] != 3.0 {
		t.Errorf("Records = %v", gs.Records)
	}
}

func TestReadGoalSheet_DuplicateFields(t *testing.T) {
	wb := newGridBook().add("CTROS",
		row(nil, nil, nil, nil, "Complementaria - Virtual", "Complementaria - Virtual"),
		row("Cod", "Reg", "CodC", "Centro", "Cupos", "Cupos"),
		row(1.0, "R", 2.0, "C", 10.0, 20.0),
	)
	gs, err := ReadGoalSheet(wb, "CTROS", GoalOptions{})
	if err != nil {
		t.Fatalf("ReadGoalSheet() error = %v", err)
	}
	rec := gs.Records[0]
	if rec["M_COMP_VIR"] != 10.0 || rec["M_COMP_VIR_2"] != 20.0 {
		t.Errorf("record = %v, want M_COMP_VIR and M_COMP_VIR_2", rec)
	}
}

func TestReadGoalSheet_NotFound(t *testing.T) {
	_, err := ReadGoalSheet(newGridBook(), "5. FORMACIÓN X CTROS", GoalOptions{})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("error = %v, want *NotFoundError", err)
	}
}

func TestMetric(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{12.5, 12.5},
		{"N/A", 0},
		{" 30 ", 30},
		{"NaN", 0},
		{nil, 0},
		{true, 1},
		{false, 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			if got := metric(tt.in); got != tt.want {
				t.Errorf("metric(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
