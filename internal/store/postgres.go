package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// registryTable records every bucket written, with its size and the time
// of the last replace.
const registryTable = "sheet_buckets"

const registrySchema = `CREATE TABLE IF NOT EXISTS sheet_buckets (
	name       TEXT PRIMARY KEY,
	records    BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

var _ Store = (*Postgres)(nil)

// Postgres stores each bucket as a table of JSONB documents.
type Postgres struct {
	pool *pgxpool.Pool
}

// PostgresOptions configures the connection pool.
type PostgresOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// OpenPostgres connects to url, verifies the connection and creates the
// bucket registry.
func OpenPostgres(ctx context.Context, url string, opts PostgresOptions) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		cfg.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, persistErr("", "connect", err)
	}
	p := NewPostgres(pool)
	if err := p.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, registrySchema); err != nil {
		pool.Close()
		return nil, persistErr("", "migrate", err)
	}
	return p, nil
}

// NewPostgres wraps an existing pool. The registry table must exist.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func bucketTable(bucket string) string {
	return pgx.Identifier{bucket}.Sanitize()
}

func (p *Postgres) Replace(ctx context.Context, bucket string, records []map[string]any) (int, error) {
	if err := checkBucket(bucket); err != nil {
		return 0, err
	}
	table := bucketTable(bucket)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, persistErr(bucket, "begin", err)
	}
	defer tx.Rollback(ctx)

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id BIGSERIAL PRIMARY KEY, doc JSONB NOT NULL)", table)
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, persistErr(bucket, "create", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
		return 0, persistErr(bucket, "delete", err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{bucket}, []string{"doc"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return []any{records[i]}, nil
		}),
	)
	if err != nil {
		return 0, persistErr(bucket, "insert", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO sheet_buckets (name, records, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET records = EXCLUDED.records, updated_at = EXCLUDED.updated_at`,
		bucket, n)
	if err != nil {
		return 0, persistErr(bucket, "register", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, persistErr(bucket, "commit", err)
	}
	return int(n), nil
}

// exists checks the registry so reads of unknown buckets fail cleanly
// instead of surfacing an undefined-table error.
func (p *Postgres) exists(ctx context.Context, bucket string) error {
	if err := checkBucket(bucket); err != nil {
		return err
	}
	var one int
	err := p.pool.QueryRow(ctx, "SELECT 1 FROM sheet_buckets WHERE name = $1", bucket).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %q", ErrBucketNotFound, bucket)
	}
	return persistErr(bucket, "lookup", err)
}

// findSQL builds the count and page queries for q. Field names and search
// terms are always bound as parameters.
func findSQL(bucket string, q Query) (count, page string, args []any) {
	table := bucketTable(bucket)

	where := ""
	if q.Search != "" {
		where = " WHERE doc::text ILIKE $1"
		args = append(args, "%"+escapeLike(q.Search)+"%")
	}
	count = "SELECT COUNT(*) FROM " + table + where

	order := "id"
	if q.Sort != "" {
		args = append(args, q.Sort)
		order = fmt.Sprintf("doc->($%d::text) %s NULLS FIRST, id", len(args), strings.ToUpper(q.Dir))
	}
	args = append(args, q.PageSize, q.offset())
	page = fmt.Sprintf("SELECT doc FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		table, where, order, len(args)-1, len(args))
	return count, page, args
}

// escapeLike escapes ILIKE wildcards so search terms match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (p *Postgres) Find(ctx context.Context, bucket string, q Query) (*Page, error) {
	if err := p.exists(ctx, bucket); err != nil {
		return nil, err
	}
	q = q.normalize()
	countSQL, pageSQL, args := findSQL(bucket, q)

	var total int64
	countArgs := args[:0]
	if q.Search != "" {
		countArgs = args[:1]
	}
	if err := p.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, persistErr(bucket, "count", err)
	}

	rows, err := p.pool.Query(ctx, pageSQL, args...)
	if err != nil {
		return nil, persistErr(bucket, "find", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (map[string]any, error) {
		var doc map[string]any
		err := row.Scan(&doc)
		return doc, err
	})
	if err != nil {
		return nil, persistErr(bucket, "find", err)
	}
	return newPage(q, total, records), nil
}

// aggregateSQL groups by one JSON field and sums the numeric values of each
// requested field. Non-numeric values are ignored.
func aggregateSQL(bucket string, q AggregateQuery) (string, []any) {
	args := []any{q.GroupBy}
	exprs := []string{"doc->($1::text) AS key", "COUNT(*)"}
	for _, f := range q.Fields {
		args = append(args, f)
		n := len(args)
		exprs = append(exprs, fmt.Sprintf(
			"COALESCE(SUM(CASE WHEN jsonb_typeof(doc->($%d::text)) = 'number' THEN (doc->>($%d::text))::float8 END), 0)",
			n, n))
	}
	sql := fmt.Sprintf("SELECT %s FROM %s GROUP BY 1 ORDER BY 1 NULLS FIRST",
		strings.Join(exprs, ", "), bucketTable(bucket))
	return sql, args
}

func (p *Postgres) Aggregate(ctx context.Context, bucket string, q AggregateQuery) ([]Group, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if err := p.exists(ctx, bucket); err != nil {
		return nil, err
	}

	sql, args := aggregateSQL(bucket, q)
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, persistErr(bucket, "aggregate", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var (
			key   any
			count int64
		)
		sums := make([]float64, len(q.Fields))
		dest := []any{&key, &count}
		for i := range sums {
			dest = append(dest, &sums[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, persistErr(bucket, "aggregate", err)
		}

		g := Group{Key: key, Count: count, Sums: make(map[string]float64, len(q.Fields))}
		for i, f := range q.Fields {
			g.Sums[f] = sums[i]
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(bucket, "aggregate", err)
	}
	return groups, nil
}

func (p *Postgres) Buckets(ctx context.Context) ([]BucketInfo, error) {
	rows, err := p.pool.Query(ctx, "SELECT name, records, updated_at FROM "+registryTable+" ORDER BY name")
	if err != nil {
		return nil, persistErr("", "buckets", err)
	}
	infos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (BucketInfo, error) {
		var b BucketInfo
		err := row.Scan(&b.Name, &b.Records, &b.UpdatedAt)
		return b, err
	})
	if err != nil {
		return nil, persistErr("", "buckets", err)
	}
	return infos, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return persistErr("", "ping", p.pool.Ping(ctx))
}

func (p *Postgres) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}
