package web

import (
	"net/http"

	"github.com/JonMunkholm/sheetsync/internal/workbook"
	"github.com/go-chi/chi/v5"
)

type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var endpoints = []endpoint{
	{"GET", "/healthz", "Store connectivity"},
	{"POST", "/upload", "Upload a workbook (multipart field \"file\") and sync it"},
	{"GET", "/files", "List uploaded files"},
	{"DELETE", "/files/{fileID}", "Delete an uploaded file"},
	{"GET", "/files/{fileID}/sheets", "List a file's sheets"},
	{"GET", "/files/{fileID}/sheets/{sheet}", "Read a sheet (limit, offset)"},
	{"GET", "/files/{fileID}/goals/{sheet}", "Read a goal sheet with column mapping"},
	{"POST", "/files/{fileID}/export", "Export every sheet to JSON"},
	{"GET", "/download/{filename}", "Download an exported file"},
	{"POST", "/process-local", "Export a workbook on the server (file_path, output_dir)"},
	{"GET", "/api/buckets", "List stored buckets"},
	{"GET", "/api/buckets/{bucket}/records", "Page stored records (page, page_size, search, sort, dir)"},
	{"GET", "/api/buckets/{bucket}/aggregate", "Count and sum per group (group_by, fields)"},
	{"GET", "/api/upload-queue", "Processing slot usage"},
}

// handleIndex describes the service.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "sheetsync",
		"formats":   workbook.Extensions(),
		"store":     s.cfg.Store.Driver,
		"endpoints": endpoints,
	})
}

// handleHealth pings the store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListFiles lists uploaded files.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files := s.service.Files()
	writeJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"total": len(files),
	})
}

// handleDeleteFile removes an uploaded file.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	if err := s.service.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "file " + id + " deleted"})
}

// handleListSheets lists the sheets of an uploaded file.
func (s *Server) handleListSheets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	sheets, err := s.service.Sheets(id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_id": id,
		"sheets":  sheets,
	})
}
