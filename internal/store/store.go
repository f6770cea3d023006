// Package store persists extracted records into named buckets.
//
// A bucket is a table (PostgreSQL) or a collection (MongoDB) holding one
// sheet's records. Writes replace a bucket wholesale: every existing record
// is deleted before the new ones are inserted. Reads page, search, sort and
// aggregate over the stored records.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Store is a record sink with query support. Implementations are safe for
// concurrent use.
type Store interface {
	// Replace deletes every record in bucket and inserts records in their
	// place. It returns the number of records written.
	Replace(ctx context.Context, bucket string, records []map[string]any) (int, error)

	// Find returns one page of a bucket's records.
	Find(ctx context.Context, bucket string, q Query) (*Page, error)

	// Aggregate groups a bucket's records by one field and sums numeric
	// fields per group.
	Aggregate(ctx context.Context, bucket string, q AggregateQuery) ([]Group, error)

	// Buckets lists the buckets written so far.
	Buckets(ctx context.Context) ([]BucketInfo, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var (
	// ErrBucketNotFound is returned when reading a bucket that was never
	// written.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrInvalidBucket is returned for bucket names outside [a-z0-9_].
	ErrInvalidBucket = errors.New("invalid bucket name")
)

// PersistenceError wraps a failure of the underlying store.
type PersistenceError struct {
	Bucket string
	Op     string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Bucket == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Bucket, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(bucket, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Bucket: bucket, Op: op, Err: err}
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500

	// MaxBucketLen keeps bucket names within PostgreSQL's identifier limit.
	MaxBucketLen = 63
)

var bucketPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidBucket reports whether name can be used as a bucket name.
func ValidBucket(name string) bool {
	return len(name) <= MaxBucketLen && bucketPattern.MatchString(name)
}

func checkBucket(name string) error {
	if !ValidBucket(name) || name == registryTable {
		return fmt.Errorf("%w: %q", ErrInvalidBucket, name)
	}
	return nil
}

// Query selects a page of records.
type Query struct {
	Page     int    // 1-based
	PageSize int    // DefaultPageSize when 0, capped at MaxPageSize
	Search   string // case-insensitive substring over every field
	Sort     string // field name; insertion order when empty
	Dir      string // "asc" or "desc"
}

// normalize applies defaults and bounds.
func (q Query) normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Dir = strings.ToLower(q.Dir)
	if q.Dir != "desc" {
		q.Dir = "asc"
	}
	if q.Sort == "" {
		q.Dir = "asc"
	}
	return q
}

func (q Query) offset() int {
	return (q.Page - 1) * q.PageSize
}

// Page is one page of records.
type Page struct {
	Records    []map[string]any `json:"data"`
	Total      int64            `json:"total_records"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
	Search     string           `json:"search,omitempty"`
	Sort       string           `json:"sort,omitempty"`
	Dir        string           `json:"dir,omitempty"`
}

func newPage(q Query, total int64, records []map[string]any) *Page {
	pages := int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	if pages < 1 {
		pages = 1
	}
	if records == nil {
		records = []map[string]any{}
	}
	return &Page{
		Records:    records,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: pages,
		Search:     q.Search,
		Sort:       q.Sort,
		Dir:        q.Dir,
	}
}

// AggregateQuery groups records by GroupBy and sums each of Fields.
type AggregateQuery struct {
	GroupBy string
	Fields  []string
}

func (q AggregateQuery) validate() error {
	if q.GroupBy == "" {
		return errors.New("group_by is required")
	}
	return nil
}

// Group is one aggregation bucket. Sums only count numeric values.
type Group struct {
	Key   any                `json:"key"`
	Count int64              `json:"count"`
	Sums  map[string]float64 `json:"sums"`
}

// BucketInfo describes a stored bucket.
type BucketInfo struct {
	Name      string    `json:"name"`
	Records   int64     `json:"records"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}
