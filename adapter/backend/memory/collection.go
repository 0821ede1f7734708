package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/vinicius-lino-figueiredo/godm/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/godm/adapter/persistence"
	"github.com/vinicius-lino-figueiredo/godm/adapter/projector"
	"github.com/vinicius-lino-figueiredo/godm/adapter/querier"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/ctxsync"
	"go.uber.org/zap"
)

// Collection implements [domain.Backend]. Every operation holds the
// collection lock, so operations on the same collection are serialized.
// Options given through [domain.WithExtra] tune remote stores and are ignored.
type Collection struct {
	name string
	mu   *ctxsync.Mutex

	loaded     bool
	entries    []*entry
	indexes    map[string]*index
	indexOrder []string
	ensured    map[string]time.Time

	persistence    domain.Persistence
	persistenceErr error

	comparer    domain.Comparer
	navigator   domain.FieldNavigator
	idGenerator domain.IDGenerator
	timeGetter  domain.TimeGetter
	decoder     domain.Decoder
	matcher     domain.Matcher
	modifier    domain.Modifier
	querier     *querier.Querier
	logger      *zap.Logger
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// lock acquires the collection, loading it and dropping expired documents
// first. The caller must unlock c.mu when lock succeeds.
func (c *Collection) lock(ctx context.Context) error {
	if err := c.mu.LockWithContext(ctx); err != nil {
		return err
	}
	err := c.load(ctx)
	if err == nil {
		err = c.expire(ctx)
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Collection) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	if c.persistenceErr != nil {
		return c.persistenceErr
	}

	docs, records, err := c.persistence.LoadDatabase(ctx)
	if err != nil {
		return err
	}

	idIdx, err := newIndex(domain.IndexRecord{
		Name:   idIndexName,
		Keys:   []domain.IndexKey{{Field: "_id", Direction: 1}},
		Unique: true,
	}, c.comparer, c.navigator)
	if err != nil {
		return err
	}
	indexes := map[string]*index{idIndexName: idIdx}
	order := []string{idIndexName}
	for _, rec := range records {
		if rec.Name == idIndexName {
			continue
		}
		idx, err := newIndex(rec, c.comparer, c.navigator)
		if err != nil {
			return err
		}
		indexes[rec.Name] = idx
		order = append(order, rec.Name)
	}

	entries := make([]*entry, len(docs))
	for n, doc := range docs {
		entries[n] = &entry{doc: doc}
	}
	for _, name := range order {
		if err := indexes[name].insert(entries...); err != nil {
			return err
		}
	}

	c.entries, c.indexes, c.indexOrder = entries, indexes, order
	c.loaded = true
	return nil
}

// Insert implements [domain.Backend]. Ordered inserts stop at the first
// failing document. The identifiers of the stored documents are returned
// along with the errors of the others.
func (c *Collection) Insert(ctx context.Context, docs []map[string]any, options ...domain.InsertOption) ([]any, error) {
	opts := domain.NewInsertOptions(options...)
	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	ids := make([]any, 0, len(docs))
	added := make([]*entry, 0, len(docs))
	var errs []error
	for n, doc := range docs {
		e, err := c.prepareNew(doc)
		if err == nil {
			err = c.indexInsert(e)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("document %d: %w", n, err))
			if opts.Ordered {
				break
			}
			continue
		}
		c.entries = append(c.entries, e)
		added = append(added, e)
		ids = append(ids, e.doc["_id"])
	}

	if err := c.persistEntries(ctx, added...); err != nil {
		errs = append(errs, err)
	}
	return ids, errors.Join(errs...)
}

// Save implements [domain.Backend].
func (c *Collection) Save(ctx context.Context, doc map[string]any, _ ...domain.SaveOption) (any, error) {
	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	e, err := c.prepareNew(doc)
	if err != nil {
		return nil, err
	}

	old, err := c.indexes[idIndexName].lookup(e.doc["_id"])
	if err != nil {
		return nil, err
	}
	if len(old) == 0 {
		if err := c.indexInsert(e); err != nil {
			return nil, err
		}
		c.entries = append(c.entries, e)
	} else {
		if err := c.indexReplace(old[0], e); err != nil {
			return nil, err
		}
		c.entries[slices.Index(c.entries, old[0])] = e
	}

	return e.doc["_id"], c.persistEntries(ctx, e)
}

// Update implements [domain.Backend]. $setOnInsert is only applied when the
// update inserts a document.
func (c *Collection) Update(ctx context.Context, spec map[string]any, doc map[string]any, options ...domain.UpdateOption) (domain.UpdateResult, error) {
	opts := domain.NewUpdateOptions(options...)
	var res domain.UpdateResult

	if err := c.lock(ctx); err != nil {
		return res, err
	}
	defer c.mu.Unlock()

	onUpdate, onInsert := splitSetOnInsert(doc)

	matches, err := c.match(spec)
	if err != nil {
		return res, err
	}
	if !opts.Multi && len(matches) > 1 {
		matches = matches[:1]
	}

	if len(matches) == 0 {
		if !opts.Upsert {
			return res, nil
		}
		return c.upsert(ctx, spec, onInsert)
	}

	type pair struct{ old, updated *entry }
	pairs := make([]pair, 0, len(matches))
	for _, old := range matches {
		newDoc := modifier.CopyDoc(old.doc)
		if onUpdate != nil {
			if newDoc, err = c.modifier.Modify(old.doc, onUpdate); err != nil {
				return res, err
			}
		}
		if err := checkKeys(newDoc); err != nil {
			return res, err
		}
		pairs = append(pairs, pair{old: old, updated: &entry{doc: newDoc}})
	}

	for n, p := range pairs {
		if err := c.indexReplace(p.old, p.updated); err != nil {
			for _, done := range pairs[:n] {
				err = errors.Join(err, c.indexReplace(done.updated, done.old))
			}
			return res, err
		}
	}

	positions := make(map[*entry]int, len(c.entries))
	for n, e := range c.entries {
		positions[e] = n
	}
	modified := make([]*entry, 0, len(pairs))
	for _, p := range pairs {
		c.entries[positions[p.old]] = p.updated
		if cmp, err := c.comparer.Compare(p.old.doc, p.updated.doc); err != nil || cmp != 0 {
			modified = append(modified, p.updated)
		}
	}

	res.Matched = int64(len(pairs))
	res.Modified = int64(len(modified))
	return res, c.persistEntries(ctx, modified...)
}

func (c *Collection) upsert(ctx context.Context, spec map[string]any, doc map[string]any) (domain.UpdateResult, error) {
	var res domain.UpdateResult

	var newDoc map[string]any
	var err error
	if isOperatorDoc(doc) {
		if newDoc, err = c.upsertBase(spec); err == nil {
			newDoc, err = c.modifier.Modify(newDoc, doc)
		}
	} else {
		newDoc = modifier.CopyDoc(doc)
		if id, ok := spec["_id"]; ok && !isOperatorValue(id) {
			if _, set := newDoc["_id"]; !set {
				newDoc["_id"] = id
			}
		}
	}
	if err != nil {
		return res, err
	}

	e, err := c.prepareNew(newDoc)
	if err == nil {
		err = c.indexInsert(e)
	}
	if err != nil {
		return res, err
	}
	c.entries = append(c.entries, e)
	res.UpsertedID = e.doc["_id"]
	return res, c.persistEntries(ctx, e)
}

// upsertBase builds the document an upsert starts from: the fields the spec
// compares for equality.
func (c *Collection) upsertBase(spec map[string]any) (map[string]any, error) {
	base := make(map[string]any)
	for k, v := range spec {
		if strings.HasPrefix(k, "$") || isOperatorValue(v) {
			continue
		}
		addr, err := c.navigator.GetAddress(k)
		if err != nil {
			return nil, err
		}
		fields, err := c.navigator.EnsureField(base, addr...)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			f.Set(modifier.CopyValue(v))
		}
	}
	return base, nil
}

// Remove implements [domain.Backend].
func (c *Collection) Remove(ctx context.Context, spec map[string]any, _ ...domain.RemoveOption) (int64, error) {
	if err := c.lock(ctx); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()

	matches, err := c.match(spec)
	if err != nil {
		return 0, err
	}
	if err := c.removeEntries(ctx, matches); err != nil {
		return 0, err
	}
	return int64(len(matches)), nil
}

func (c *Collection) removeEntries(ctx context.Context, removed []*entry) error {
	if len(removed) == 0 {
		return nil
	}
	for _, name := range c.indexOrder {
		if err := c.indexes[name].remove(removed...); err != nil {
			return err
		}
	}

	gone := make(map[*entry]struct{}, len(removed))
	records := make([]map[string]any, len(removed))
	for n, e := range removed {
		gone[e] = struct{}{}
		records[n] = persistence.DeletedRecord(e.doc["_id"])
	}
	c.entries = slices.DeleteFunc(c.entries, func(e *entry) bool {
		_, ok := gone[e]
		return ok
	})

	return c.persistence.PersistNewState(ctx, records...)
}

// Find implements [domain.Backend]. The cursor iterates over a snapshot, so
// later writes are not seen by it.
func (c *Collection) Find(ctx context.Context, spec map[string]any, fields any, options ...domain.FindOption) (domain.Cursor, error) {
	opts := domain.NewFindOptions(options...)

	proj, err := projector.ParseFields(fields)
	if err != nil {
		return nil, err
	}

	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	matches, err := c.match(spec)
	if err != nil {
		return nil, err
	}

	docs := make([]map[string]any, len(matches))
	for n, e := range matches {
		docs[n] = e.doc
	}
	res, err := c.querier.Query(docs, opts, proj)
	if err != nil {
		return nil, err
	}

	return newCursor(res, c.decoder), nil
}

// EnsureIndex implements [domain.Backend]. An index already ensured less than
// cacheTime ago is not looked up again.
func (c *Collection) EnsureIndex(ctx context.Context, keys []domain.IndexKey, cacheTime time.Duration, options ...domain.IndexOption) (string, error) {
	opts := domain.NewIndexOptions(options...)
	name := opts.Name
	if name == "" {
		name = domain.DefaultIndexName(keys)
	}
	if len(keys) == 1 && keys[0].Field == "_id" && opts.Name == "" {
		name = idIndexName
	}

	if err := c.lock(ctx); err != nil {
		return "", err
	}
	defer c.mu.Unlock()

	now := c.timeGetter.GetTime()
	if last, ok := c.ensured[name]; ok && now.Sub(last) < cacheTime {
		return name, nil
	}

	if _, ok := c.indexes[name]; !ok {
		rec := domain.IndexRecord{
			Name:        name,
			Keys:        slices.Clone(keys),
			Unique:      opts.Unique,
			Sparse:      opts.Sparse,
			ExpireAfter: opts.ExpireAfter,
		}
		idx, err := newIndex(rec, c.comparer, c.navigator)
		if err != nil {
			return "", err
		}
		if err := idx.insert(c.entries...); err != nil {
			return "", err
		}
		if err := c.persistence.PersistNewState(ctx, persistence.IndexCreatedRecord(rec)); err != nil {
			return "", err
		}
		c.indexes[name] = idx
		c.indexOrder = append(c.indexOrder, name)
		c.logger.Info("created index",
			zap.String("index", name),
			zap.Bool("unique", rec.Unique),
			zap.Bool("sparse", rec.Sparse),
		)
	}

	c.ensured[name] = now
	return name, nil
}

// DropIndex removes the named index. The _id index cannot be dropped.
func (c *Collection) DropIndex(ctx context.Context, name string) error {
	if name == idIndexName {
		return domain.ErrFieldName{Field: name, Reason: "the _id index cannot be dropped"}
	}
	if err := c.lock(ctx); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if _, ok := c.indexes[name]; !ok {
		return nil
	}
	if err := c.persistence.PersistNewState(ctx, persistence.IndexRemovedRecord(name)); err != nil {
		return err
	}
	delete(c.indexes, name)
	delete(c.ensured, name)
	c.indexOrder = slices.DeleteFunc(c.indexOrder, func(n string) bool { return n == name })
	return nil
}

// Indexes returns the declarations of the collection indexes, the _id index
// first.
func (c *Collection) Indexes(ctx context.Context) ([]domain.IndexRecord, error) {
	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	res := make([]domain.IndexRecord, len(c.indexOrder))
	for n, name := range c.indexOrder {
		res[n] = c.indexes[name].record
	}
	return res, nil
}

// Count returns the number of stored documents.
func (c *Collection) Count(ctx context.Context) (int, error) {
	if err := c.lock(ctx); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	return len(c.entries), nil
}

// Compact rewrites the datafile with the current state of the collection.
func (c *Collection) Compact(ctx context.Context) error {
	if err := c.lock(ctx); err != nil {
		return err
	}
	defer c.mu.Unlock()
	return c.compact(ctx)
}

func (c *Collection) compact(ctx context.Context) error {
	docs := make([]map[string]any, len(c.entries))
	for n, e := range c.entries {
		docs[n] = e.doc
	}
	records := make([]domain.IndexRecord, 0, len(c.indexOrder))
	for _, name := range c.indexOrder {
		if name != idIndexName {
			records = append(records, c.indexes[name].record)
		}
	}
	return c.persistence.PersistCachedDatabase(ctx, docs, records)
}

// Drop removes every document and index of the collection, along with its
// datafile.
func (c *Collection) Drop(ctx context.Context) error {
	if err := c.lock(ctx); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if err := c.persistence.DropDatabase(ctx); err != nil {
		return err
	}
	c.entries = nil
	idIdx := c.indexes[idIndexName]
	idIdx.reset()
	c.indexes = map[string]*index{idIndexName: idIdx}
	c.indexOrder = []string{idIndexName}
	clear(c.ensured)
	return nil
}

// expire removes the documents whose TTL index date is older than the
// configured number of seconds.
func (c *Collection) expire(ctx context.Context) error {
	var ttl []*index
	for _, name := range c.indexOrder {
		idx := c.indexes[name]
		if idx.record.ExpireAfter != nil && len(idx.addrs) == 1 {
			ttl = append(ttl, idx)
		}
	}
	if len(ttl) == 0 {
		return nil
	}

	now := c.timeGetter.GetTime()
	var expired []*entry
	for _, e := range c.entries {
		for _, idx := range ttl {
			values, err := idx.values(e.doc, idx.addrs[0])
			if err != nil {
				return err
			}
			if isExpired(values, now, time.Duration(*idx.record.ExpireAfter)*time.Second) {
				expired = append(expired, e)
				break
			}
		}
	}
	if len(expired) > 0 {
		c.logger.Debug("expired documents", zap.Int("count", len(expired)))
	}
	return c.removeEntries(ctx, expired)
}

func isExpired(values []any, now time.Time, ttl time.Duration) bool {
	for _, v := range values {
		if t, ok := v.(time.Time); ok && now.After(t.Add(ttl)) {
			return true
		}
	}
	return false
}

func (c *Collection) match(spec map[string]any) ([]*entry, error) {
	candidates := c.entries
	if id, ok := spec["_id"]; ok && !isOperatorValue(id) {
		found, err := c.indexes[idIndexName].lookup(id)
		if err != nil {
			return nil, err
		}
		candidates = found
	}
	if len(spec) == 0 {
		return slices.Clone(candidates), nil
	}

	var res []*entry
	for _, e := range candidates {
		ok, err := c.matcher.Match(e.doc, spec)
		if err != nil {
			return nil, err
		}
		if ok {
			res = append(res, e)
		}
	}
	return res, nil
}

// prepareNew copies doc and gives it an _id if it has none.
func (c *Collection) prepareNew(doc map[string]any) (*entry, error) {
	if err := checkKeys(doc); err != nil {
		return nil, err
	}
	cp := modifier.CopyDoc(doc)
	if cp["_id"] == nil {
		id, err := c.idGenerator.GenerateID()
		if err != nil {
			return nil, err
		}
		cp["_id"] = id
	}
	return &entry{doc: cp}, nil
}

func (c *Collection) indexInsert(e *entry) error {
	for n, name := range c.indexOrder {
		if err := c.indexes[name].insert(e); err != nil {
			for _, prev := range c.indexOrder[:n] {
				err = errors.Join(err, c.indexes[prev].remove(e))
			}
			return err
		}
	}
	return nil
}

func (c *Collection) indexReplace(old, updated *entry) error {
	for n, name := range c.indexOrder {
		if err := c.indexes[name].replace(old, updated); err != nil {
			for _, prev := range c.indexOrder[:n] {
				err = errors.Join(err, c.indexes[prev].replace(updated, old))
			}
			return err
		}
	}
	return nil
}

func (c *Collection) persistEntries(ctx context.Context, entries ...*entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]map[string]any, len(entries))
	for n, e := range entries {
		docs[n] = e.doc
	}
	return c.persistence.PersistNewState(ctx, docs...)
}

// splitSetOnInsert returns the update applied to matched documents and the
// one applied when upserting. A nil update leaves matched documents as they
// are.
func splitSetOnInsert(doc map[string]any) (onUpdate, onInsert map[string]any) {
	soi, ok := doc["$setOnInsert"]
	if !ok {
		return doc, doc
	}

	onUpdate = make(map[string]any, len(doc))
	onInsert = make(map[string]any, len(doc))
	for k, v := range doc {
		if k != "$setOnInsert" {
			onUpdate[k] = v
			onInsert[k] = v
		}
	}

	set := make(map[string]any)
	if prev, ok := onInsert["$set"].(map[string]any); ok {
		for k, v := range prev {
			set[k] = v
		}
	}
	if m, ok := soi.(map[string]any); ok {
		for k, v := range m {
			set[k] = v
		}
	}
	onInsert["$set"] = set

	if len(onUpdate) == 0 {
		onUpdate = nil
	}
	return onUpdate, onInsert
}

func isOperatorDoc(doc map[string]any) bool {
	for k := range doc {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func isOperatorValue(v any) bool {
	m, ok := v.(map[string]any)
	return ok && isOperatorDoc(m)
}

// checkKeys rejects field names the query language would misread.
func checkKeys(v any) error {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			if strings.HasPrefix(k, "$") {
				return domain.ErrFieldName{Field: k, Reason: "cannot start with '$'"}
			}
			if strings.Contains(k, ".") {
				return domain.ErrFieldName{Field: k, Reason: "cannot contain '.'"}
			}
			if err := checkKeys(item); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range t {
			if err := checkKeys(item); err != nil {
				return err
			}
		}
	}
	return nil
}
