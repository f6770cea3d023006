package web

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleUpload receives a multipart workbook in the "file" field, stores
// it and syncs its relevant sheets.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	// Multipart framing adds a little on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(w, r, core.ErrFileTooLarge)
			return
		}
		respondError(w, r, core.ErrNoFile, http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, core.ErrNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Upload(ctx, header.Filename, file)
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleProcessLocal exports every sheet of a workbook on the server's disk.
// Takes file_path and optional output_dir as query or form values.
func (s *Server) handleProcessLocal(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.ProcessLocal(r.Context(), r.FormValue("file_path"), r.FormValue("output_dir"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExport writes every sheet of an uploaded file to the output
// directory.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Export(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDownload serves an exported JSON file.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	path, err := s.service.DownloadPath(name)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

// handleUploadQueue reports processing slot usage.
func (s *Server) handleUploadQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.UploadLimiterStatus())
}
