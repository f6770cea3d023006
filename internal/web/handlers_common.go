package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/store"
)

// parseIntParam parses a non-negative integer query parameter with a
// default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// parseList splits a comma-separated query parameter, dropping blanks.
func parseList(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseRecordQuery reads page, page_size, search, sort and dir.
func parseRecordQuery(r *http.Request) store.Query {
	q := r.URL.Query()
	return store.Query{
		Page:     parseIntParam(r, "page", 1),
		PageSize: parseIntParam(r, "page_size", store.DefaultPageSize),
		Search:   q.Get("search"),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Dir:      q.Get("dir"),
	}
}
