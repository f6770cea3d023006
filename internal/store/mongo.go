package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// bucketDoc is a registry entry in the sheet_buckets collection.
type bucketDoc struct {
	Name      string    `bson:"_id"`
	Records   int64     `bson:"records"`
	UpdatedAt time.Time `bson:"updated_at"`
}

var _ Store = (*Mongo)(nil)

// Mongo stores each bucket as a collection of documents.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// MongoOptions tunes the client connection pool. Zero values keep the
// driver defaults.
type MongoOptions struct {
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// OpenMongo connects to uri and verifies the connection.
func OpenMongo(ctx context.Context, uri, database string, opts MongoOptions) (*Mongo, error) {
	co := options.Client().ApplyURI(uri)
	if opts.MaxPoolSize > 0 {
		co.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.MinPoolSize > 0 {
		co.SetMinPoolSize(opts.MinPoolSize)
	}
	if opts.MaxConnIdleTime > 0 {
		co.SetMaxConnIdleTime(opts.MaxConnIdleTime)
	}
	client, err := mongo.Connect(ctx, co)
	if err != nil {
		return nil, persistErr("", "connect", err)
	}
	m := NewMongo(client, database)
	if err := m.Ping(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

// NewMongo wraps a connected client.
func NewMongo(client *mongo.Client, database string) *Mongo {
	return &Mongo{client: client, db: client.Database(database)}
}

func (m *Mongo) registry() *mongo.Collection {
	return m.db.Collection(registryTable)
}

func (m *Mongo) Replace(ctx context.Context, bucket string, records []map[string]any) (int, error) {
	if err := checkBucket(bucket); err != nil {
		return 0, err
	}
	coll := m.db.Collection(bucket)

	if _, err := coll.DeleteMany(ctx, bson.D{}); err != nil {
		return 0, persistErr(bucket, "delete", err)
	}
	if len(records) > 0 {
		docs := make([]any, len(records))
		for i, r := range records {
			docs[i] = r
		}
		if _, err := coll.InsertMany(ctx, docs); err != nil {
			return 0, persistErr(bucket, "insert", err)
		}
	}

	_, err := m.registry().UpdateOne(ctx,
		bson.D{{Key: "_id", Value: bucket}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "records", Value: int64(len(records))},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return 0, persistErr(bucket, "register", err)
	}
	return len(records), nil
}

func (m *Mongo) exists(ctx context.Context, bucket string) error {
	if err := checkBucket(bucket); err != nil {
		return err
	}
	err := m.registry().FindOne(ctx, bson.D{{Key: "_id", Value: bucket}}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %q", ErrBucketNotFound, bucket)
	}
	return persistErr(bucket, "lookup", err)
}

// fieldExpr reads a top-level field by its literal name, so names holding
// dots or dollar signs are not taken as paths.
func fieldExpr(name string) bson.D {
	return bson.D{{Key: "$getField", Value: bson.D{
		{Key: "field", Value: bson.D{{Key: "$literal", Value: name}}},
		{Key: "input", Value: "$$ROOT"},
	}}}
}

// searchFilter matches documents where any field, rendered as text,
// contains search case-insensitively. Fields are taken from a sample
// document since every record of a bucket shares one shape.
func (m *Mongo) searchFilter(ctx context.Context, coll *mongo.Collection, search string) (bson.D, error) {
	if search == "" {
		return bson.D{}, nil
	}
	var sample bson.M
	err := coll.FindOne(ctx, bson.D{}).Decode(&sample)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return bson.D{}, nil
	}
	if err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(sample))
	for k := range sample {
		if k != "_id" {
			fields = append(fields, k)
		}
	}
	slices.Sort(fields)
	return searchExpr(fields, search), nil
}

func searchExpr(fields []string, search string) bson.D {
	pattern := regexp.QuoteMeta(search)
	ors := bson.A{}
	for _, f := range fields {
		ors = append(ors, bson.D{{Key: "$regexMatch", Value: bson.D{
			{Key: "input", Value: bson.D{{Key: "$convert", Value: bson.D{
				{Key: "input", Value: fieldExpr(f)},
				{Key: "to", Value: "string"},
				{Key: "onError", Value: ""},
				{Key: "onNull", Value: ""},
			}}}},
			{Key: "regex", Value: pattern},
			{Key: "options", Value: "i"},
		}}})
	}
	return bson.D{{Key: "$expr", Value: bson.D{{Key: "$or", Value: ors}}}}
}

// findPipeline pages through the documents matching filter.
func findPipeline(filter bson.D, q Query) mongo.Pipeline {
	var p mongo.Pipeline
	if len(filter) > 0 {
		p = append(p, bson.D{{Key: "$match", Value: filter}})
	}
	if q.Sort != "" {
		dir := 1
		if q.Dir == "desc" {
			dir = -1
		}
		p = append(p,
			bson.D{{Key: "$addFields", Value: bson.D{{Key: "_sort", Value: fieldExpr(q.Sort)}}}},
			bson.D{{Key: "$sort", Value: bson.D{{Key: "_sort", Value: dir}, {Key: "_id", Value: 1}}}},
		)
	} else {
		p = append(p, bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}})
	}
	return append(p,
		bson.D{{Key: "$skip", Value: int64(q.offset())}},
		bson.D{{Key: "$limit", Value: int64(q.PageSize)}},
		bson.D{{Key: "$project", Value: bson.D{{Key: "_id", Value: 0}, {Key: "_sort", Value: 0}}}},
	)
}

func (m *Mongo) Find(ctx context.Context, bucket string, q Query) (*Page, error) {
	if err := m.exists(ctx, bucket); err != nil {
		return nil, err
	}
	q = q.normalize()
	coll := m.db.Collection(bucket)

	filter, err := m.searchFilter(ctx, coll, q.Search)
	if err != nil {
		return nil, persistErr(bucket, "find", err)
	}
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, persistErr(bucket, "count", err)
	}

	cur, err := coll.Aggregate(ctx, findPipeline(filter, q))
	if err != nil {
		return nil, persistErr(bucket, "find", err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, persistErr(bucket, "find", err)
	}

	records := make([]map[string]any, len(docs))
	for i, d := range docs {
		records[i] = map[string]any(d)
	}
	return newPage(q, total, records), nil
}

// aggregatePipeline groups by one field and sums each numeric field under
// positional names, since field names may not be valid group keys.
func aggregatePipeline(q AggregateQuery) mongo.Pipeline {
	group := bson.D{
		{Key: "_id", Value: fieldExpr(q.GroupBy)},
		{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
	}
	for i, f := range q.Fields {
		v := fieldExpr(f)
		group = append(group, bson.E{Key: fmt.Sprintf("s%d", i), Value: bson.D{{Key: "$sum", Value: bson.D{
			{Key: "$cond", Value: bson.A{bson.D{{Key: "$isNumber", Value: v}}, v, 0}},
		}}}})
	}
	return mongo.Pipeline{
		{{Key: "$group", Value: group}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

func (m *Mongo) Aggregate(ctx context.Context, bucket string, q AggregateQuery) ([]Group, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if err := m.exists(ctx, bucket); err != nil {
		return nil, err
	}

	cur, err := m.db.Collection(bucket).Aggregate(ctx, aggregatePipeline(q))
	if err != nil {
		return nil, persistErr(bucket, "aggregate", err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, persistErr(bucket, "aggregate", err)
	}

	groups := make([]Group, len(docs))
	for i, d := range docs {
		g := Group{Key: d["_id"], Count: int64(number(d["count"])), Sums: make(map[string]float64, len(q.Fields))}
		for j, f := range q.Fields {
			g.Sums[f] = number(d[fmt.Sprintf("s%d", j)])
		}
		groups[i] = g
	}
	return groups, nil
}

// number converts the numeric BSON types $sum can yield.
func number(v any) float64 {
	switch x := v.(type) {
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float64:
		return x
	default:
		return 0
	}
}

func (m *Mongo) Buckets(ctx context.Context) ([]BucketInfo, error) {
	cur, err := m.registry().Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, persistErr("", "buckets", err)
	}
	var docs []bucketDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, persistErr("", "buckets", err)
	}

	infos := make([]BucketInfo, len(docs))
	for i, d := range docs {
		infos[i] = BucketInfo{Name: d.Name, Records: d.Records, UpdatedAt: d.UpdatedAt}
	}
	return infos, nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return persistErr("", "ping", m.client.Ping(ctx, readpref.Primary()))
}

func (m *Mongo) Close(ctx context.Context) error {
	return persistErr("", "disconnect", m.client.Disconnect(ctx))
}
