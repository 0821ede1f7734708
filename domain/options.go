package domain

// WithExtra sets a backend specific option that godm does not interpret, such
// as a write concern or a query hint. Each backend documents the keys it
// accepts.
func WithExtra(key string, value any) ExtraOption {
	return ExtraOption{key: key, value: value}
}

// ExtraOption carries an uninterpreted option. It can be passed to every
// backend operation.
type ExtraOption struct {
	key   string
	value any
}

func (e ExtraOption) set(extra *map[string]any) {
	if *extra == nil {
		*extra = make(map[string]any)
	}
	(*extra)[e.key] = e.value
}

// Insert implements [InsertOption].
func (e ExtraOption) applyInsert(o *InsertOptions) { e.set(&o.Extra) }

// Save implements [SaveOption].
func (e ExtraOption) applySave(o *SaveOptions) { e.set(&o.Extra) }

// Update implements [UpdateOption].
func (e ExtraOption) applyUpdate(o *UpdateOptions) { e.set(&o.Extra) }

// Remove implements [RemoveOption].
func (e ExtraOption) applyRemove(o *RemoveOptions) { e.set(&o.Extra) }

// Find implements [FindOption].
func (e ExtraOption) applyFind(o *FindOptions) { e.set(&o.Extra) }

// Index implements [IndexOption].
func (e ExtraOption) applyIndex(o *IndexOptions) { e.set(&o.Extra) }

// InsertOption configures insert behavior through the functional options
// pattern.
type InsertOption interface{ applyInsert(*InsertOptions) }

type insertOptionFunc func(*InsertOptions)

func (f insertOptionFunc) applyInsert(o *InsertOptions) { f(o) }

// WithInsertOrdered makes the backend stop at the first failed document.
func WithInsertOrdered(b bool) InsertOption {
	return insertOptionFunc(func(io *InsertOptions) {
		io.Ordered = b
	})
}

// InsertOptions contains parameters for customizing insert operations.
type InsertOptions struct {
	// Ordered stops a bulk insert at the first failure.
	Ordered bool
	// Extra holds backend specific options.
	Extra map[string]any
}

// NewInsertOptions applies options over the defaults.
func NewInsertOptions(options ...InsertOption) InsertOptions {
	opts := InsertOptions{Ordered: true}
	for _, option := range options {
		option.applyInsert(&opts)
	}
	return opts
}

// SaveOption configures save behavior.
type SaveOption interface{ applySave(*SaveOptions) }

// SaveOptions contains parameters for customizing save operations.
type SaveOptions struct {
	// Extra holds backend specific options.
	Extra map[string]any
}

// NewSaveOptions applies options over the defaults.
func NewSaveOptions(options ...SaveOption) SaveOptions {
	var opts SaveOptions
	for _, option := range options {
		option.applySave(&opts)
	}
	return opts
}

// UpdateOption configures update behavior through the functional options
// pattern.
type UpdateOption interface{ applyUpdate(*UpdateOptions) }

type updateOptionFunc func(*UpdateOptions)

func (f updateOptionFunc) applyUpdate(o *UpdateOptions) { f(o) }

// WithUpdateMulti enables updating multiple documents that match the query.
func WithUpdateMulti(m bool) UpdateOption {
	return updateOptionFunc(func(uo *UpdateOptions) {
		uo.Multi = m
	})
}

// WithUpsert enables inserting a document if no matches are found.
func WithUpsert(u bool) UpdateOption {
	return updateOptionFunc(func(uo *UpdateOptions) {
		uo.Upsert = u
	})
}

// UpdateOptions contains parameters for customizing update operations.
type UpdateOptions struct {
	// Multi enables updating multiple documents that match the query.
	Multi bool
	// Upsert enables inserting a document if no matches are found.
	Upsert bool
	// Extra holds backend specific options.
	Extra map[string]any
}

// NewUpdateOptions applies options over the defaults.
func NewUpdateOptions(options ...UpdateOption) UpdateOptions {
	var opts UpdateOptions
	for _, option := range options {
		option.applyUpdate(&opts)
	}
	return opts
}

// RemoveOption configures remove behavior.
type RemoveOption interface{ applyRemove(*RemoveOptions) }

// RemoveOptions contains parameters for customizing remove operations.
type RemoveOptions struct {
	// Extra holds backend specific options.
	Extra map[string]any
}

// NewRemoveOptions applies options over the defaults.
func NewRemoveOptions(options ...RemoveOption) RemoveOptions {
	var opts RemoveOptions
	for _, option := range options {
		option.applyRemove(&opts)
	}
	return opts
}

// FindOption configures query behavior through the functional options pattern.
type FindOption interface{ applyFind(*FindOptions) }

type findOptionFunc func(*FindOptions)

func (f findOptionFunc) applyFind(o *FindOptions) { f(o) }

// WithFindSkip sets the number of documents to skip in query results.
func WithFindSkip(s int64) FindOption {
	return findOptionFunc(func(fo *FindOptions) {
		fo.Skip = s
	})
}

// WithFindLimit sets the maximum number of documents to return. Zero means no
// limit.
func WithFindLimit(l int64) FindOption {
	return findOptionFunc(func(fo *FindOptions) {
		fo.Limit = l
	})
}

// WithFindSort specifies the sort order for query results.
func WithFindSort(s Sort) FindOption {
	return findOptionFunc(func(fo *FindOptions) {
		fo.Sort = s
	})
}

// FindOptions contains parameters for customizing query execution.
type FindOptions struct {
	// Skip specifies the number of documents to skip.
	Skip int64
	// Limit specifies the maximum number of documents to return.
	Limit int64
	// Sort specifies the sort order for results.
	Sort Sort
	// Extra holds backend specific options.
	Extra map[string]any
}

// NewFindOptions applies options over the defaults.
func NewFindOptions(options ...FindOption) FindOptions {
	var opts FindOptions
	for _, option := range options {
		option.applyFind(&opts)
	}
	return opts
}

// IndexOption configures index creation through the functional options
// pattern.
type IndexOption interface{ applyIndex(*IndexOptions) }

type indexOptionFunc func(*IndexOptions)

func (f indexOptionFunc) applyIndex(o *IndexOptions) { f(o) }

// WithIndexName sets a custom index name.
func WithIndexName(n string) IndexOption {
	return indexOptionFunc(func(io *IndexOptions) { io.Name = n })
}

// WithIndexUnique creates a unique index that prevents duplicate values.
func WithIndexUnique(u bool) IndexOption {
	return indexOptionFunc(func(io *IndexOptions) { io.Unique = u })
}

// WithIndexSparse creates a sparse index that excludes documents missing the
// indexed fields.
func WithIndexSparse(s bool) IndexOption {
	return indexOptionFunc(func(io *IndexOptions) { io.Sparse = s })
}

// WithIndexBackground asks the store to build the index in the background.
func WithIndexBackground(b bool) IndexOption {
	return indexOptionFunc(func(io *IndexOptions) { io.Background = b })
}

// WithIndexExpireAfter creates a TTL index that removes documents the given
// number of seconds after the indexed date.
func WithIndexExpireAfter(seconds int32) IndexOption {
	return indexOptionFunc(func(io *IndexOptions) { io.ExpireAfter = &seconds })
}

// WithIndexBucketSize sets the bucket size of geoHaystack indexes.
func WithIndexBucketSize(b float64) IndexOption {
	return indexOptionFunc(func(io *IndexOptions) { io.BucketSize = &b })
}

// WithIndexMin sets the lower bound of 2d index keys.
func WithIndexMin(m float64) IndexOption {
	return indexOptionFunc(func(io *IndexOptions) { io.Min = &m })
}

// WithIndexMax sets the upper bound of 2d index keys.
func WithIndexMax(m float64) IndexOption {
	return indexOptionFunc(func(io *IndexOptions) { io.Max = &m })
}

// IndexOptions contains parameters for customizing index creation.
type IndexOptions struct {
	Name        string
	Unique      bool
	Sparse      bool
	Background  bool
	ExpireAfter *int32
	BucketSize  *float64
	Min         *float64
	Max         *float64
	// Extra holds backend specific options.
	Extra map[string]any
}

// NewIndexOptions applies options over the defaults.
func NewIndexOptions(options ...IndexOption) IndexOptions {
	var opts IndexOptions
	for _, option := range options {
		option.applyIndex(&opts)
	}
	return opts
}

// WithFormVerbose overrides the verbose name of a form field.
func WithFormVerbose(v string) FormOption {
	return func(fd *FieldDescriptor) { fd.Verbose = v }
}

// WithFormRequired overrides the required flag of a form field.
func WithFormRequired(r bool) FormOption {
	return func(fd *FieldDescriptor) { fd.Required = r }
}

// WithFormDefault overrides the initial value of a form field.
func WithFormDefault(d any) FormOption {
	return func(fd *FieldDescriptor) { fd.Default = d }
}

// WithFormHelpText overrides the help text of a form field.
func WithFormHelpText(h string) FormOption {
	return func(fd *FieldDescriptor) { fd.HelpText = h }
}

// WithFormExtra sets a presentation specific attribute.
func WithFormExtra(key string, value any) FormOption {
	return func(fd *FieldDescriptor) {
		if fd.Extra == nil {
			fd.Extra = make(map[string]any)
		}
		fd.Extra[key] = value
	}
}

// FormOption overrides attributes of a [FieldDescriptor].
type FormOption func(*FieldDescriptor)
