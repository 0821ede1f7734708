package mongo

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/structure"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Keys accepted by [domain.WithExtra]. Index operations accept any key, which
// is copied into the index specification.
const (
	ExtraComment                  = "comment"
	ExtraHint                     = "hint"
	ExtraMaxTimeMS                = "maxTimeMS"
	ExtraBatchSize                = "batchSize"
	ExtraAllowDiskUse             = "allowDiskUse"
	ExtraNoCursorTimeout          = "noCursorTimeout"
	ExtraBypassDocumentValidation = "bypassDocumentValidation"
	ExtraWriteConcern             = "w"
)

// ErrUnsupportedOption is returned when an operation receives an extra option
// it does not know.
type ErrUnsupportedOption struct {
	Op  string
	Key string
}

// Error implements [error].
func (e ErrUnsupportedOption) Error() string {
	return fmt.Sprintf("%s does not support option %q", e.Op, e.Key)
}

type extra struct {
	op     string
	values map[string]any
}

func newExtra(op string, values map[string]any, allowed ...string) (extra, error) {
	for _, k := range slices.Sorted(maps.Keys(values)) {
		if !slices.Contains(allowed, k) {
			return extra{}, ErrUnsupportedOption{Op: op, Key: k}
		}
	}
	return extra{op: op, values: values}, nil
}

func (e extra) has(key string) bool {
	_, ok := e.values[key]
	return ok
}

func (e extra) str(key string) (string, bool, error) {
	v, ok := e.values[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, e.typeError(key, "string", v)
	}
	return s, true, nil
}

func (e extra) integer(key string) (int64, bool, error) {
	v, ok := e.values[key]
	if !ok {
		return 0, false, nil
	}
	n, ok := structure.AsInteger(v)
	if !ok {
		return 0, false, e.typeError(key, "integer", v)
	}
	return n, true, nil
}

func (e extra) boolean(key string) (bool, bool, error) {
	v, ok := e.values[key]
	if !ok {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, e.typeError(key, "boolean", v)
	}
	return b, true, nil
}

func (e extra) typeError(key, want string, v any) error {
	return fmt.Errorf("%s option %q: %w", e.op, key, domain.ErrType{Want: want, Actual: v})
}

// writeOptions holds what write operations share.
type writeOptions struct {
	comment *string
	hint    any
	bypass  *bool
	concern *writeconcern.WriteConcern
	hasHint bool
}

func parseWriteOptions(e extra) (writeOptions, error) {
	var wo writeOptions
	if c, ok, err := e.str(ExtraComment); err != nil {
		return wo, err
	} else if ok {
		wo.comment = &c
	}
	if e.has(ExtraHint) {
		wo.hint, wo.hasHint = e.values[ExtraHint], true
	}
	if b, ok, err := e.boolean(ExtraBypassDocumentValidation); err != nil {
		return wo, err
	} else if ok {
		wo.bypass = &b
	}
	if e.has(ExtraWriteConcern) {
		wc, err := writeConcern(e)
		if err != nil {
			return wo, err
		}
		wo.concern = wc
	}
	return wo, nil
}

// writeConcern accepts a number of nodes or a tag set name, such as
// "majority".
func writeConcern(e extra) (*writeconcern.WriteConcern, error) {
	v := e.values[ExtraWriteConcern]
	if s, ok := v.(string); ok {
		return &writeconcern.WriteConcern{W: s}, nil
	}
	n, ok := structure.AsInteger(v)
	if !ok || n < 0 {
		return nil, e.typeError(ExtraWriteConcern, "non-negative integer or string", v)
	}
	return &writeconcern.WriteConcern{W: int(n)}, nil
}

// target returns coll, or a copy of it using the requested write concern.
func (wo writeOptions) target(coll *mongo.Collection) (*mongo.Collection, error) {
	if wo.concern == nil {
		return coll, nil
	}
	return coll.Clone(options.Collection().SetWriteConcern(wo.concern))
}

func findExtra(opts domain.FindOptions, fo *options.FindOptions) error {
	e, err := newExtra("find", opts.Extra,
		ExtraComment, ExtraHint, ExtraMaxTimeMS, ExtraBatchSize,
		ExtraAllowDiskUse, ExtraNoCursorTimeout,
	)
	if err != nil {
		return err
	}

	if c, ok, err := e.str(ExtraComment); err != nil {
		return err
	} else if ok {
		fo.SetComment(c)
	}
	if e.has(ExtraHint) {
		fo.SetHint(e.values[ExtraHint])
	}
	if ms, ok, err := e.integer(ExtraMaxTimeMS); err != nil {
		return err
	} else if ok {
		fo.SetMaxTime(time.Duration(ms) * time.Millisecond)
	}
	if n, ok, err := e.integer(ExtraBatchSize); err != nil {
		return err
	} else if ok {
		fo.SetBatchSize(int32(n))
	}
	if b, ok, err := e.boolean(ExtraAllowDiskUse); err != nil {
		return err
	} else if ok {
		fo.SetAllowDiskUse(b)
	}
	if b, ok, err := e.boolean(ExtraNoCursorTimeout); err != nil {
		return err
	} else if ok {
		fo.SetNoCursorTimeout(b)
	}
	return nil
}
