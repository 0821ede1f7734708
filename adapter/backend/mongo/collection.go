package mongo

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/vinicius-lino-figueiredo/godm/adapter/bsonconv"
	"github.com/vinicius-lino-figueiredo/godm/adapter/projector"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by collections of a client that was not
// dialed.
var ErrNotConnected = errors.New("mongo client is not connected")

// Collection implements [domain.Backend] on a MongoDB collection.
type Collection struct {
	name   string
	coll   *mongo.Collection
	client *Client
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Insert implements [domain.Backend]. Documents without _id get a new
// ObjectID. When some documents fail, the identifiers of the stored ones are
// returned with the error.
func (c *Collection) Insert(ctx context.Context, docs []map[string]any, options ...domain.InsertOption) ([]any, error) {
	if c.coll == nil {
		return nil, ErrNotConnected
	}
	opts := domain.NewInsertOptions(options...)
	io, wo, err := optionsInsertMany(opts)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []any{}, nil
	}
	coll, err := wo.target(c.coll)
	if err != nil {
		return nil, err
	}

	items := make([]any, len(docs))
	ids := make([]any, len(docs))
	for n, doc := range docs {
		d := withID(doc)
		items[n], ids[n] = d, d["_id"]
	}

	if _, err = coll.InsertMany(ctx, items, io); err != nil {
		return insertedIDs(ids, err, opts.Ordered), convertError(err)
	}
	return ids, nil
}

func optionsInsertMany(opts domain.InsertOptions) (*options.InsertManyOptions, writeOptions, error) {
	wo, err := writeExtra("insert", opts.Extra, ExtraComment, ExtraBypassDocumentValidation, ExtraWriteConcern)
	if err != nil {
		return nil, wo, err
	}
	io := options.InsertMany().SetOrdered(opts.Ordered)
	if wo.comment != nil {
		io.SetComment(*wo.comment)
	}
	if wo.bypass != nil {
		io.SetBypassDocumentValidation(*wo.bypass)
	}
	return io, wo, nil
}

func writeExtra(op string, values map[string]any, allowed ...string) (writeOptions, error) {
	e, err := newExtra(op, values, allowed...)
	if err != nil {
		return writeOptions{}, err
	}
	return parseWriteOptions(e)
}

// insertedIDs returns the identifiers of the documents a failed bulk insert
// still stored.
func insertedIDs(ids []any, err error, ordered bool) []any {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return nil
	}
	failed := make(map[int]struct{}, len(bwe.WriteErrors))
	first := len(ids)
	for _, we := range bwe.WriteErrors {
		failed[we.Index] = struct{}{}
		first = min(first, we.Index)
	}
	if ordered {
		return slices.Clone(ids[:first])
	}
	res := make([]any, 0, len(ids)-len(failed))
	for n, id := range ids {
		if _, ok := failed[n]; !ok {
			res = append(res, id)
		}
	}
	return res
}

// Save implements [domain.Backend].
func (c *Collection) Save(ctx context.Context, doc map[string]any, options ...domain.SaveOption) (any, error) {
	if c.coll == nil {
		return nil, ErrNotConnected
	}
	opts := domain.NewSaveOptions(options...)
	d := withID(doc)
	_, err := c.replace(ctx, "save", bson.M{"_id": d["_id"]}, d, domain.UpdateOptions{Upsert: true, Extra: opts.Extra})
	if err != nil {
		return nil, err
	}
	return d["_id"], nil
}

// Update implements [domain.Backend]. A document without operators replaces
// the first match.
func (c *Collection) Update(ctx context.Context, spec map[string]any, doc map[string]any, options ...domain.UpdateOption) (domain.UpdateResult, error) {
	if c.coll == nil {
		return domain.UpdateResult{}, ErrNotConnected
	}
	opts := domain.NewUpdateOptions(options...)
	filter := filterDoc(spec)

	update, ok := operatorUpdate(doc)
	if !ok && opts.Multi {
		return domain.UpdateResult{}, domain.ErrType{Want: "update operators for a multi update", Actual: doc}
	}

	var res *mongo.UpdateResult
	var err error
	if ok {
		res, err = c.update(ctx, filter, update, opts)
	} else {
		res, err = c.replace(ctx, "update", filter, doc, opts)
	}
	if err != nil {
		return domain.UpdateResult{}, err
	}

	return domain.UpdateResult{
		Matched:    res.MatchedCount,
		Modified:   res.ModifiedCount,
		UpsertedID: bsonconv.Normalize(res.UpsertedID),
	}, nil
}

func (c *Collection) update(ctx context.Context, filter any, update map[string]any, opts domain.UpdateOptions) (*mongo.UpdateResult, error) {
	uo, wo, err := optionsUpdate(opts)
	if err != nil {
		return nil, err
	}
	coll, err := wo.target(c.coll)
	if err != nil {
		return nil, err
	}

	var res *mongo.UpdateResult
	if opts.Multi {
		res, err = coll.UpdateMany(ctx, filter, update, uo)
	} else {
		res, err = coll.UpdateOne(ctx, filter, update, uo)
	}
	if err != nil {
		return nil, convertError(err)
	}
	return res, nil
}

func (c *Collection) replace(ctx context.Context, op string, filter any, doc map[string]any, opts domain.UpdateOptions) (*mongo.UpdateResult, error) {
	ro, wo, err := optionsReplace(op, opts)
	if err != nil {
		return nil, err
	}
	coll, err := wo.target(c.coll)
	if err != nil {
		return nil, err
	}
	res, err := coll.ReplaceOne(ctx, filter, doc, ro)
	if err != nil {
		return nil, convertError(err)
	}
	return res, nil
}

var writeKeys = []string{ExtraComment, ExtraHint, ExtraBypassDocumentValidation, ExtraWriteConcern}

func optionsUpdate(opts domain.UpdateOptions) (*options.UpdateOptions, writeOptions, error) {
	wo, err := writeExtra("update", opts.Extra, writeKeys...)
	if err != nil {
		return nil, wo, err
	}
	uo := options.Update().SetUpsert(opts.Upsert)
	if wo.comment != nil {
		uo.SetComment(*wo.comment)
	}
	if wo.hasHint {
		uo.SetHint(wo.hint)
	}
	if wo.bypass != nil {
		uo.SetBypassDocumentValidation(*wo.bypass)
	}
	return uo, wo, nil
}

func optionsReplace(op string, opts domain.UpdateOptions) (*options.ReplaceOptions, writeOptions, error) {
	wo, err := writeExtra(op, opts.Extra, writeKeys...)
	if err != nil {
		return nil, wo, err
	}
	ro := options.Replace().SetUpsert(opts.Upsert)
	if wo.comment != nil {
		ro.SetComment(*wo.comment)
	}
	if wo.hasHint {
		ro.SetHint(wo.hint)
	}
	if wo.bypass != nil {
		ro.SetBypassDocumentValidation(*wo.bypass)
	}
	return ro, wo, nil
}

// operatorUpdate reports whether doc is made of update operators. $isolated
// is dropped, since servers since 4.0 reject it.
func operatorUpdate(doc map[string]any) (map[string]any, bool) {
	operators := false
	for k := range doc {
		if strings.HasPrefix(k, "$") {
			operators = true
			break
		}
	}
	if !operators {
		return doc, false
	}
	if _, ok := doc["$isolated"]; !ok {
		return doc, true
	}
	res := maps.Clone(doc)
	delete(res, "$isolated")
	return res, true
}

// Remove implements [domain.Backend].
func (c *Collection) Remove(ctx context.Context, spec map[string]any, options ...domain.RemoveOption) (int64, error) {
	if c.coll == nil {
		return 0, ErrNotConnected
	}
	do, wo, err := optionsDelete(domain.NewRemoveOptions(options...))
	if err != nil {
		return 0, err
	}
	coll, err := wo.target(c.coll)
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteMany(ctx, filterDoc(spec), do)
	if err != nil {
		return 0, convertError(err)
	}
	return res.DeletedCount, nil
}

func optionsDelete(opts domain.RemoveOptions) (*options.DeleteOptions, writeOptions, error) {
	wo, err := writeExtra("remove", opts.Extra, ExtraComment, ExtraHint, ExtraWriteConcern)
	if err != nil {
		return nil, wo, err
	}
	do := options.Delete()
	if wo.comment != nil {
		do.SetComment(*wo.comment)
	}
	if wo.hasHint {
		do.SetHint(wo.hint)
	}
	return do, wo, nil
}

// Find implements [domain.Backend].
func (c *Collection) Find(ctx context.Context, spec map[string]any, fields any, options ...domain.FindOption) (domain.Cursor, error) {
	if c.coll == nil {
		return nil, ErrNotConnected
	}
	fo, err := optionsFind(domain.NewFindOptions(options...), fields)
	if err != nil {
		return nil, err
	}
	cur, err := c.coll.Find(ctx, filterDoc(spec), fo)
	if err != nil {
		return nil, convertError(err)
	}
	return newCursor(cur, c.client.decoder), nil
}

func optionsFind(opts domain.FindOptions, fields any) (*options.FindOptions, error) {
	fo := options.Find()
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit != 0 {
		fo.SetLimit(opts.Limit)
	}
	if len(opts.Sort) > 0 {
		fo.SetSort(sortDoc(opts.Sort))
	}
	proj, err := projector.ParseFields(fields)
	if err != nil {
		return nil, err
	}
	if len(proj) > 0 {
		fo.SetProjection(projectionDoc(proj))
	}
	if err := findExtra(opts, fo); err != nil {
		return nil, err
	}
	return fo, nil
}

func sortDoc(sort domain.Sort) bson.D {
	d := make(bson.D, len(sort))
	for n, s := range sort {
		order := int32(1)
		if s.Order < 0 {
			order = -1
		}
		d[n] = bson.E{Key: s.Key, Value: order}
	}
	return d
}

func projectionDoc(proj map[string]uint8) bson.D {
	d := make(bson.D, 0, len(proj))
	for _, k := range slices.Sorted(maps.Keys(proj)) {
		d = append(d, bson.E{Key: k, Value: int32(proj[k])})
	}
	return d
}

// EnsureIndex implements [domain.Backend]. The index is sent to the server
// at most once per cacheTime, through a createIndexes command whose index
// specification also carries the extra options.
func (c *Collection) EnsureIndex(ctx context.Context, keys []domain.IndexKey, cacheTime time.Duration, options ...domain.IndexOption) (string, error) {
	if c.coll == nil {
		return "", ErrNotConnected
	}
	opts := domain.NewIndexOptions(options...)
	if opts.Name == "" {
		opts.Name = domain.DefaultIndexName(keys)
	}

	cacheKey := c.name + "." + opts.Name
	if !c.client.shouldEnsure(cacheKey, cacheTime) {
		return opts.Name, nil
	}

	cmd := bson.D{
		{Key: "createIndexes", Value: c.coll.Name()},
		{Key: "indexes", Value: bson.A{indexSpec(keys, opts)}},
	}
	if err := c.coll.Database().RunCommand(ctx, cmd).Err(); err != nil {
		return "", convertError(err)
	}
	c.client.markEnsured(cacheKey)
	c.client.logger.Info("ensured index",
		zap.String("collection", c.name),
		zap.String("index", opts.Name),
	)
	return opts.Name, nil
}

// indexSpec builds the createIndexes entry of an index. Options are only set
// when given. Extra options are appended in key order and replace declared
// options of the same name. Numeric options keep their exact value.
func indexSpec(keys []domain.IndexKey, opts domain.IndexOptions) bson.D {
	key := make(bson.D, len(keys))
	for n, k := range keys {
		key[n] = bson.E{Key: k.Field, Value: k.Direction}
	}

	spec := bson.D{{Key: "key", Value: key}, {Key: "name", Value: opts.Name}}
	if opts.Unique {
		spec = append(spec, bson.E{Key: "unique", Value: true})
	}
	if opts.Sparse {
		spec = append(spec, bson.E{Key: "sparse", Value: true})
	}
	if opts.Background {
		spec = append(spec, bson.E{Key: "background", Value: true})
	}
	if opts.ExpireAfter != nil {
		spec = append(spec, bson.E{Key: "expireAfterSeconds", Value: *opts.ExpireAfter})
	}
	if opts.BucketSize != nil {
		spec = append(spec, bson.E{Key: "bucketSize", Value: *opts.BucketSize})
	}
	if opts.Min != nil {
		spec = append(spec, bson.E{Key: "min", Value: *opts.Min})
	}
	if opts.Max != nil {
		spec = append(spec, bson.E{Key: "max", Value: *opts.Max})
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Extra)) {
		if n := slices.IndexFunc(spec, func(e bson.E) bool { return e.Key == k }); n >= 0 {
			spec[n].Value = opts.Extra[k]
			continue
		}
		spec = append(spec, bson.E{Key: k, Value: opts.Extra[k]})
	}
	return spec
}

func filterDoc(spec map[string]any) any {
	if spec == nil {
		return bson.M{}
	}
	return spec
}

// withID returns doc, or a copy of it with a new ObjectID when it has no
// _id.
func withID(doc map[string]any) map[string]any {
	if doc["_id"] != nil {
		return doc
	}
	res := maps.Clone(doc)
	if res == nil {
		res = make(map[string]any, 1)
	}
	res["_id"] = primitive.NewObjectID()
	return res
}

func convertError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", domain.ErrConstraintViolated, err)
	}
	return err
}
