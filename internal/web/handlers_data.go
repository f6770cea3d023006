package web

import (
	"net/http"

	"github.com/JonMunkholm/sheetsync/internal/store"
	"github.com/go-chi/chi/v5"
)

// handleSheetData returns a sheet's generic extraction, paged by offset and
// limit. Without a limit every record from offset on is returned.
func (s *Server) handleSheetData(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.SheetData(r.Context(),
		chi.URLParam(r, "fileID"),
		chi.URLParam(r, "sheet"),
		parseIntParam(r, "offset", 0),
		parseIntParam(r, "limit", 0),
	)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleGoalData returns a goal sheet's records and column mapping.
func (s *Server) handleGoalData(w http.ResponseWriter, r *http.Request) {
	gs, err := s.service.GoalData(r.Context(), chi.URLParam(r, "fileID"), chi.URLParam(r, "sheet"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_id":       chi.URLParam(r, "fileID"),
		"sheet_name":    gs.Sheet,
		"header_row":    gs.HeaderRow,
		"regional":      gs.Regional,
		"columns":       gs.Columns,
		"total_records": len(gs.Records),
		"data":          gs.Records,
	})
}

// handleListBuckets lists stored buckets with record counts.
func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.service.Buckets(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	if buckets == nil {
		buckets = []store.BucketInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"buckets": buckets,
		"total":   len(buckets),
	})
}

// handleBucketRecords pages through a stored bucket.
func (s *Server) handleBucketRecords(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	page, err := s.service.Records(r.Context(), bucket, parseRecordQuery(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bucket":        bucket,
		"data":          page.Records,
		"total_records": page.Total,
		"page":          page.Page,
		"page_size":     page.PageSize,
		"total_pages":   page.TotalPages,
		"search":        page.Search,
		"sort":          page.Sort,
		"dir":           page.Dir,
	})
}

// handleBucketAggregate counts and sums records per group_by value.
func (s *Server) handleBucketAggregate(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	q := store.AggregateQuery{
		GroupBy: r.URL.Query().Get("group_by"),
		Fields:  parseList(r, "fields"),
	}
	groups, err := s.service.Aggregate(r.Context(), bucket, q)
	if err != nil {
		fail(w, r, err)
		return
	}
	if groups == nil {
		groups = []store.Group{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bucket":   bucket,
		"group_by": q.GroupBy,
		"fields":   q.Fields,
		"groups":   groups,
	})
}
