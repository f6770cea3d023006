package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

var _ Store = (*Memory)(nil)

// Memory keeps buckets in process memory. It backs tests and local runs
// without a database.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]*memBucket
	now     func() time.Time
}

type memBucket struct {
	records []map[string]any
	updated time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]*memBucket), now: time.Now}
}

func (m *Memory) Replace(ctx context.Context, bucket string, records []map[string]any) (int, error) {
	if err := checkBucket(bucket); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, persistErr(bucket, "replace", err)
	}

	copied := make([]map[string]any, len(records))
	for i, r := range records {
		copied[i] = maps.Clone(r)
	}

	m.mu.Lock()
	m.buckets[bucket] = &memBucket{records: copied, updated: m.now()}
	m.mu.Unlock()
	return len(copied), nil
}

func (m *Memory) bucket(name string) (*memBucket, error) {
	if err := checkBucket(name); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buckets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBucketNotFound, name)
	}
	return b, nil
}

func (m *Memory) Find(ctx context.Context, bucket string, q Query) (*Page, error) {
	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}
	q = q.normalize()

	var matched []map[string]any
	needle := strings.ToLower(q.Search)
	for _, r := range b.records {
		if needle == "" || recordContains(r, needle) {
			matched = append(matched, r)
		}
	}

	if q.Sort != "" {
		slices.SortStableFunc(matched, func(a, b map[string]any) int {
			c := compareValues(a[q.Sort], b[q.Sort])
			if q.Dir == "desc" {
				return -c
			}
			return c
		})
	}

	total := int64(len(matched))
	start := min(q.offset(), len(matched))
	end := min(start+q.PageSize, len(matched))

	page := make([]map[string]any, 0, end-start)
	for _, r := range matched[start:end] {
		page = append(page, maps.Clone(r))
	}
	return newPage(q, total, page), nil
}

func (m *Memory) Aggregate(ctx context.Context, bucket string, q AggregateQuery) ([]Group, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var groups []Group
	for _, r := range b.records {
		key := r[q.GroupBy]
		k := fmt.Sprintf("%T:%v", key, key)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			sums := make(map[string]float64, len(q.Fields))
			for _, f := range q.Fields {
				sums[f] = 0
			}
			groups = append(groups, Group{Key: key, Sums: sums})
		}
		groups[i].Count++
		for _, f := range q.Fields {
			if v, ok := r[f].(float64); ok {
				groups[i].Sums[f] += v
			}
		}
	}

	slices.SortStableFunc(groups, func(a, b Group) int {
		return compareValues(a.Key, b.Key)
	})
	return groups, nil
}

func (m *Memory) Buckets(ctx context.Context) ([]BucketInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]BucketInfo, 0, len(m.buckets))
	for name, b := range m.buckets {
		out = append(out, BucketInfo{Name: name, Records: int64(len(b.records)), UpdatedAt: b.updated})
	}
	slices.SortFunc(out, func(a, b BucketInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error  { return nil }
func (m *Memory) Close(ctx context.Context) error { return nil }

func recordContains(r map[string]any, needle string) bool {
	for _, v := range r {
		if v == nil {
			continue
		}
		if strings.Contains(strings.ToLower(fmt.Sprint(v)), needle) {
			return true
		}
	}
	return false
}

// compareValues orders nil first, then numbers, then booleans, then text.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case float64:
		return cmp.Compare(x, b.(float64))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case string:
		return cmp.Compare(x, b.(string))
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64:
		return 1
	case bool:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
