package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/store"
	"github.com/xuri/excelize/v2"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: time.Minute},
		Store:  config.StoreConfig{Driver: config.DriverMemory},
		Upload: config.UploadConfig{
			Dir:           t.TempDir(),
			OutputDir:     t.TempDir(),
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
		},
		Goals:    config.GoalsConfig{Period: "2025", ScanRows: 19},
		Security: config.SecurityConfig{EnableCSP: true, AllowLocalProcessing: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	svc, err := core.NewService(store.NewMemory(), cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	s := NewServer(svc, cfg)
	t.Cleanup(func() { s.Shutdown(t.Context()) })
	return s
}

// goalWorkbook is a goals workbook with one centre sheet.
func goalWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "FORMACIÓN X CTROS"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		t.Fatal(err)
	}
	rows := [][]any{
		{nil, nil, nil, nil, "Tecnólogos Regular - Presencial", "Total Formación Profesional Integral"},
		{"Cod. Regional", "Regional", "Cod. Centro", "Centro", "Cupos", "Cupos"},
		{5, "ANTIOQUIA", 9101, "Centro Minero", 120, 300},
		{5, "ANTIOQUIA", 9102, "Centro Agro", 30, 100},
		{11, "DISTRITO CAPITAL", 9201, "Centro Textil", 45, 200},
	}
	for r, row := range rows {
		if err := f.SetSheetRow(sheet, "A"+strconv.Itoa(r+1), &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}


func multipartBody(t *testing.T, field, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func do(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s response: %v\n%s", req.Method, req.URL, err, rec.Body.String())
		}
	}
	return rec, out
}

func upload(t *testing.T, s *Server, name string, data []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	body, ct := multipartBody(t, "file", name, data)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	return do(t, s, req)
}

func TestIndexAndHealth(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	if eps, _ := body["endpoints"].([]any); len(eps) != len(endpoints) {
		t.Errorf("endpoints = %v", body["endpoints"])
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("CSP header missing")
	}

	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("GET /healthz = %d %v", rec.Code, body)
	}
}

func TestUploadFlow(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	rec, body := upload(t, s, "Seguimiento Metas SENA.xlsx", goalWorkbook(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body)
	}
	if body["kind"] != "metas" {
		t.Errorf("kind = %v", body["kind"])
	}
	id, _ := body["file_id"].(string)
	if id == "" {
		t.Fatalf("no file_id in %v", body)
	}
	sync, _ := body["sync"].(map[string]any)
	cols, _ := sync["collections"].([]any)
	if len(cols) != 1 {
		t.Fatalf("collections = %v", sync)
	}
	bucket := cols[0].(map[string]any)["collection_name"].(string)
	if bucket != "metas_formacion_x_ctros" {
		t.Errorf("bucket = %q", bucket)
	}

	// Files and sheets.
	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, "/files", nil))
	if rec.Code != http.StatusOK || body["total"] != 1.0 {
		t.Errorf("GET /files = %d %v", rec.Code, body)
	}
	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, "/files/"+id+"/sheets", nil))
	if sheets, _ := body["sheets"].([]any); rec.Code != http.StatusOK || len(sheets) != 1 {
		t.Errorf("GET sheets = %d %v", rec.Code, body)
	}

	sheetPath := "/files/" + id + "/sheets/" + url.PathEscape("FORMACIÓN X CTROS")
	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, sheetPath+"?limit=2&offset=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET sheet = %d %s", rec.Code, rec.Body)
	}
	if data, _ := body["data"].([]any); len(data) != 2 || body["total_records"] != 4.0 || body["limit"] != 2.0 {
		t.Errorf("sheet page = %v", body)
	}
	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, sheetPath, nil))
	if limit, present := body["limit"]; rec.Code != http.StatusOK || !present || limit != nil {
		t.Errorf("unbounded sheet page limit = %v (present %v), want null", limit, present)
	}
	if data, _ := body["data"].([]any); len(data) != 4 {
		t.Errorf("unbounded sheet page returned %d records, want 4", len(data))
	}
	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, sheetPath+"?offset=1&limit=9223372036854775807", nil))
	if data, _ := body["data"].([]any); rec.Code != http.StatusOK || len(data) != 3 {
		t.Errorf("GET sheet with huge limit = %d %v", rec.Code, body)
	}

	goalPath := "/files/" + id + "/goals/" + url.PathEscape("FORMACIÓN X CTROS")
	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, goalPath, nil))
	if rec.Code != http.StatusOK || body["total_records"] != 3.0 {
		t.Fatalf("GET goals = %d %v", rec.Code, body)
	}
	columns, _ := body["columns"].([]any)
	if len(columns) != 2 || columns[1].(map[string]any)["field"] != "M_TOT_FPI" {
		t.Errorf("columns = %v", columns)
	}

	// Stored data.
	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/buckets", nil))
	if rec.Code != http.StatusOK || body["total"] != 1.0 {
		t.Errorf("GET /api/buckets = %d %v", rec.Code, body)
	}

	rec, body = do(t, s, httptest.NewRequest(http.MethodGet,
		"/api/buckets/"+bucket+"/records?search=antioquia&sort=M_TEC_REG_PRE&dir=desc&page_size=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET records = %d %s", rec.Code, rec.Body)
	}
	data, _ := body["data"].([]any)
	if body["total_records"] != 2.0 || body["total_pages"] != 2.0 || len(data) != 1 {
		t.Fatalf("records page = %v", body)
	}
	if data[0].(map[string]any)["M_TEC_REG_PRE"] != 120.0 {
		t.Errorf("first record = %v, want the 120 centre", data[0])
	}

	rec, body = do(t, s, httptest.NewRequest(http.MethodGet,
		"/api/buckets/"+bucket+"/aggregate?group_by=REGIONAL&fields=M_TEC_REG_PRE,M_TOT_FPI", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET aggregate = %d %s", rec.Code, rec.Body)
	}
	groups, _ := body["groups"].([]any)
	if len(groups) != 2 {
		t.Fatalf("groups = %v", groups)
	}
	antioquia := groups[0].(map[string]any)
	sums := antioquia["sums"].(map[string]any)
	if antioquia["key"] != "ANTIOQUIA" || antioquia["count"] != 2.0 || sums["M_TOT_FPI"] != 400.0 {
		t.Errorf("ANTIOQUIA group = %v", antioquia)
	}

	// Export, download, delete.
	rec, body = do(t, s, httptest.NewRequest(http.MethodPost, "/files/"+id+"/export", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d %s", rec.Code, rec.Body)
	}
	files, _ := body["exported_files"].([]any)
	if len(files) != 1 {
		t.Fatalf("exported_files = %v", body)
	}
	dl := files[0].(map[string]any)["download_url"].(string)
	rec, _ = do(t, s, httptest.NewRequest(http.MethodGet, dl, nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"sheet_name": "FORMACIÓN X CTROS"`) {
		t.Errorf("download = %d %s", rec.Code, rec.Body)
	}

	rec, _ = do(t, s, httptest.NewRequest(http.MethodDelete, "/files/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("delete = %d", rec.Code)
	}
	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, "/files/"+id+"/sheets", nil))
	if rec.Code != http.StatusNotFound || body["code"] != "FILE006" {
		t.Errorf("sheets after delete = %d %v", rec.Code, body)
	}
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	_, body := upload(t, s, "libro.xlsx", goalWorkbook(t))
	id := body["file_id"].(string)

	noFile, noFileCT := multipartBody(t, "", "", nil)
	csv, csvCT := multipartBody(t, "file", "datos.csv", []byte("a,b\n1,2\n"))

	tests := []struct {
		name       string
		method     string
		path       string
		body       *bytes.Buffer
		ct         string
		wantStatus int
		wantCode   string
	}{
		{"upload without file", http.MethodPost, "/upload", noFile, noFileCT, http.StatusBadRequest, "FILE004"},
		{"upload csv", http.MethodPost, "/upload", csv, csvCT, http.StatusBadRequest, "FILE002"},
		{"unknown file", http.MethodGet, "/files/nope/sheets", nil, "", http.StatusNotFound, "FILE006"},
		{"unknown sheet", http.MethodGet, "/files/" + id + "/sheets/Otra", nil, "", http.StatusNotFound, "SHT001"},
		{"unknown bucket", http.MethodGet, "/api/buckets/metas_nada/records", nil, "", http.StatusNotFound, "SHT003"},
		{"invalid bucket", http.MethodGet, "/api/buckets/Bad-Name/records", nil, "", http.StatusBadRequest, "DB004"},
		{"missing download", http.MethodGet, "/download/nada.json", nil, "", http.StatusNotFound, "FILE006"},
		{"process-local missing path", http.MethodPost, "/process-local", nil, "", http.StatusBadRequest, "FILE004"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != nil {
				req = httptest.NewRequest(tt.method, tt.path, tt.body)
				req.Header.Set("Content-Type", tt.ct)
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			rec, body := do(t, s, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%v)", rec.Code, tt.wantStatus, body)
			}
			if body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
			}
			if body["message"] == "" || body["error"] == "" {
				t.Errorf("error body incomplete: %v", body)
			}
		})
	}
}

func TestAggregate_RequiresGroupBy(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	_, body := upload(t, s, "Seguimiento Metas SENA.xlsx", goalWorkbook(t))
	if body["kind"] != "metas" {
		t.Fatalf("upload = %v", body)
	}

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/buckets/metas_formacion_x_ctros/aggregate", nil))
	if rec.Code != http.StatusBadRequest || body["code"] != "DB006" {
		t.Errorf("aggregate without group_by = %d %v", rec.Code, body)
	}
}

func TestUploadQueue(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/upload-queue", nil))
	if rec.Code != http.StatusOK || body["max_concurrent"] != 2.0 || body["available"] != 2.0 {
		t.Errorf("upload-queue = %d %v", rec.Code, body)
	}
}

func TestProcessLocalDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.AllowLocalProcessing = false
	s := newTestServer(t, cfg)

	rec, _ := do(t, s, httptest.NewRequest(http.MethodPost, "/process-local?file_path=/etc/hosts.xlsx", nil))
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("process-local status = %d, want route absent", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, UploadLimit: 1}
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec, _ := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}
	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTooManyRequests || body["code"] != "RATE001" {
		t.Errorf("third request = %d %v", rec.Code, body)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}

	// Another client has its own budget.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "203.0.113.9:4444"
	if rec, _ := do(t, s, req); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d", rec.Code)
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.allow("1.1.1.1") {
		t.Fatal("first request denied")
	}
	if rl.allow("1.1.1.1") {
		t.Fatal("second request allowed within window")
	}
	now = now.Add(61 * time.Second)
	if !rl.allow("1.1.1.1") {
		t.Error("request denied after window reset")
	}
}
