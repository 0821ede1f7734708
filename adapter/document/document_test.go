package document_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/godm/adapter/cache"
	"github.com/vinicius-lino-figueiredo/godm/adapter/document"
	"github.com/vinicius-lino-figueiredo/godm/adapter/serializer"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

type M = map[string]any

type cacheMock struct{ mock.Mock }

func (c *cacheMock) Get(kind string, raw any) (any, bool) {
	call := c.Called(kind, raw)
	return call.Get(0), call.Bool(1)
}

func (c *cacheMock) Put(kind string, raw any, value any) {
	c.Called(kind, raw, value)
}

type DocumentTestSuite struct {
	suite.Suite
	ctx    context.Context
	owner  *document.Schema
	schema *document.Schema
}

func (s *DocumentTestSuite) SetupTest() {
	s.ctx = context.Background()

	var err error
	s.owner, err = document.NewSchema("Owner", document.Fields{
		"name": serializer.NewString(serializer.WithRequired(true)),
	})
	s.Require().NoError(err)

	s.schema, err = document.NewSchema("Car", document.Fields{
		"model": serializer.NewString(
			serializer.WithMinLength(3),
			serializer.WithMaxLength(15),
			serializer.WithRequired(true),
		),
		"cost":   serializer.NewFloat(),
		"owners": serializer.NewList(serializer.NewEmbedded(s.owner)),
		"acc": serializer.NewInteger(
			serializer.WithMin(30),
			serializer.WithMax(60),
		),
		"wheels": serializer.NewInteger(serializer.WithDefault(int64(4))),
	})
	s.Require().NoError(err)
}

func (s *DocumentTestSuite) TestSchemaFieldNames() {
	cases := map[string]string{
		"":       "field name is empty",
		"$model": "field names cannot begin with '$'",
		"a.b":    "field names cannot contain '.'",
	}
	for name, reason := range cases {
		_, err := document.NewSchema("Bad", document.Fields{name: serializer.NewString()})
		s.Equal(domain.ErrFieldName{Field: name, Reason: reason}, err)
	}

	_, err := document.NewSchema("Bad", document.Fields{"model": nil})
	s.ErrorAs(err, &domain.ErrFieldName{})
}

// Changing the map given to NewSchema does not change the schema.
func (s *DocumentTestSuite) TestSchemaImmutable() {
	fields := document.Fields{"model": serializer.NewString()}
	schema, err := document.NewSchema("Car", fields)
	s.Require().NoError(err)

	fields["cost"] = serializer.NewFloat()
	_, ok := schema.Field("cost")
	s.False(ok)
	s.Equal([]string{"model"}, schema.FieldNames())
}

func (s *DocumentTestSuite) TestNewAppliesDefaults() {
	doc, err := s.schema.New(M{"model": "Beetle"})
	s.Require().NoError(err)

	wheels, err := doc.Get(s.ctx, "wheels")
	s.NoError(err)
	s.Equal(int64(4), wheels)

	doc, err = s.schema.New(M{"model": "Beetle", "wheels": int64(3)})
	s.Require().NoError(err)
	wheels, err = doc.Get(s.ctx, "wheels")
	s.NoError(err)
	s.Equal(int64(3), wheels)

	s.False(doc.Has("cost"))
}

func (s *DocumentTestSuite) TestNewFromStruct() {
	type car struct {
		Model string  `odm:"model"`
		Cost  float64 `odm:"cost,omitempty"`
		Tag   string  `odm:"-"`
	}

	doc, err := s.schema.New(car{Model: "Beetle", Tag: "x"})
	s.Require().NoError(err)
	s.Equal([]string{"model", "wheels"}, collectKeys(doc))

	_, err = s.schema.New(12)
	s.ErrorAs(err, &domain.ErrType{})
}

func (s *DocumentTestSuite) TestRequiredField() {
	doc, err := s.schema.New(M{"cost": 10.0})
	s.Require().NoError(err)

	_, err = doc.Serialize(s.ctx)
	s.Equal(domain.ErrValidation{Field: "model", Reason: "field is required"}, err)
}

func (s *DocumentTestSuite) TestBounds() {
	doc, err := s.schema.New(M{"model": "Beetle"})
	s.Require().NoError(err)

	s.Error(doc.Set(s.ctx, "acc", 70))

	// values already in application form skip validation on assignment
	s.NoError(doc.Set(s.ctx, "acc", int64(70)))
	_, err = doc.Serialize(s.ctx)
	s.Equal(domain.ErrValidation{Field: "acc", Reason: "value should be less than or equal to 60"}, err)

	s.NoError(doc.Set(s.ctx, "acc", 45))
	data, err := doc.Serialize(s.ctx)
	s.NoError(err)
	s.Equal(int64(45), data["acc"])
}

func (s *DocumentTestSuite) TestStringLength() {
	doc, err := s.schema.New(M{"model": strings.Repeat("x", 40)})
	s.Require().NoError(err)
	_, err = doc.Serialize(s.ctx)
	s.Equal(domain.ErrValidation{Field: "model", Reason: "length should be at most 15 characters"}, err)

	s.NoError(doc.Set(s.ctx, "model", "Volkswagen"))
	_, err = doc.Serialize(s.ctx)
	s.NoError(err)
}

func (s *DocumentTestSuite) TestValidateIdempotent() {
	doc, err := s.schema.New(M{"model": "VW"})
	s.Require().NoError(err)

	first := doc.Validate(s.ctx)
	second := doc.Validate(s.ctx)
	s.Error(first)
	s.Equal(first, second)

	s.NoError(doc.Set(s.ctx, "model", "Beetle"))
	s.NoError(doc.Validate(s.ctx))
	s.NoError(doc.Validate(s.ctx))
}

func (s *DocumentTestSuite) TestSerializeNested() {
	doc, err := s.schema.New(M{
		"model":  "Beetle",
		"cost":   3,
		"owners": []any{M{"name": "Ana"}},
		"color":  "blue",
	})
	s.Require().NoError(err)

	data, err := doc.Serialize(s.ctx)
	s.NoError(err)
	s.Equal(M{
		"model":  "Beetle",
		"cost":   3.0,
		"owners": []any{M{"name": "Ana"}},
		"color":  "blue",
		"wheels": int64(4),
	}, data)

	doc, err = s.schema.New(M{"model": "Beetle", "owners": []any{M{}}})
	s.Require().NoError(err)
	_, err = doc.Serialize(s.ctx)
	s.Equal(domain.ErrValidation{Field: "owners.0.name", Reason: "field is required"}, err)
}

func (s *DocumentTestSuite) TestGetConverts() {
	doc, err := s.schema.New(M{"model": "Beetle", "owners": []any{M{"name": "Ana"}}})
	s.Require().NoError(err)

	owners, err := document.ValueOf[[]any](s.ctx, doc, "owners")
	s.Require().NoError(err)
	s.Require().Len(owners, 1)
	owner, ok := owners[0].(*document.Document)
	s.Require().True(ok)
	s.Same(s.owner, owner.Schema())

	// the stored value is not replaced
	raw, _ := doc.Raw("owners")
	s.Equal([]any{M{"name": "Ana"}}, raw)

	_, err = document.ValueOf[string](s.ctx, doc, "owners")
	s.ErrorAs(err, &domain.ErrType{})

	_, err = doc.Get(s.ctx, "missing")
	s.Equal(domain.ErrNoSuchKey{Key: "missing"}, err)
}

func (s *DocumentTestSuite) TestCache() {
	c := new(cacheMock)
	schema, err := document.NewSchema("Car", document.Fields{
		"acc": serializer.NewInteger(),
	}, document.WithCache(c))
	s.Require().NoError(err)

	doc, err := schema.New(M{"acc": 45.0})
	s.Require().NoError(err)

	c.On("Get", "Integer", 45.0).Return(nil, false).Once()
	c.On("Put", "Integer", 45.0, int64(45)).Return().Once()
	v, err := doc.Get(s.ctx, "acc")
	s.NoError(err)
	s.Equal(int64(45), v)

	c.On("Get", "Integer", 45.0).Return(int64(45), true).Once()
	v, err = doc.Get(s.ctx, "acc")
	s.NoError(err)
	s.Equal(int64(45), v)

	c.AssertExpectations(s.T())
}

func (s *DocumentTestSuite) TestBoundedCache() {
	c, err := cache.NewCache(cache.WithSize(1))
	s.Require().NoError(err)
	schema, err := document.NewSchema("Car", document.Fields{
		"acc": serializer.NewInteger(),
	}, document.WithCache(c))
	s.Require().NoError(err)

	for _, n := range []float64{1, 2, 3} {
		doc, err := schema.New(M{"acc": n})
		s.Require().NoError(err)
		v, err := doc.Get(s.ctx, "acc")
		s.NoError(err)
		s.Equal(int64(n), v)
	}
	s.Equal(1, c.Len())
}

// Documents sharing a raw value do not share what Get returns.
func (s *DocumentTestSuite) TestCacheCopies() {
	c, err := cache.NewCache()
	s.Require().NoError(err)
	schema, err := document.NewSchema("Car", document.Fields{
		"owner":  serializer.NewEmbedded(s.owner),
		"owners": serializer.NewList(serializer.NewEmbedded(s.owner)),
	}, document.WithCache(c))
	s.Require().NoError(err)

	a, err := schema.New(M{"owner": M{"name": "x"}, "owners": []any{M{"name": "x"}}})
	s.Require().NoError(err)
	b, err := schema.New(M{"owner": M{"name": "x"}, "owners": []any{M{"name": "x"}}})
	s.Require().NoError(err)

	owner, err := document.ValueOf[*document.Document](s.ctx, a, "owner")
	s.Require().NoError(err)
	s.Require().NoError(owner.Set(s.ctx, "name", "changed"))

	owners, err := document.ValueOf[[]any](s.ctx, a, "owners")
	s.Require().NoError(err)
	s.Require().NoError(owners[0].(*document.Document).Set(s.ctx, "name", "changed"))
	owners[0] = nil

	data, err := b.Serialize(s.ctx)
	s.NoError(err)
	s.Equal(M{"owner": M{"name": "x"}, "owners": []any{M{"name": "x"}}}, data)

	data, err = a.Serialize(s.ctx)
	s.NoError(err)
	s.Equal(M{"owner": M{"name": "x"}, "owners": []any{M{"name": "x"}}}, data)
}

func (s *DocumentTestSuite) TestClone() {
	doc, err := s.schema.New(M{"model": "Beetle", "owners": []any{M{"name": "Ana"}}, "extra": M{"a": 1}})
	s.Require().NoError(err)

	cp := doc.Clone()
	s.Same(doc.Schema(), cp.Schema())
	s.Require().NoError(cp.Set(s.ctx, "model", "Fusca"))
	raw, _ := cp.Raw("extra")
	raw.(M)["a"] = 2

	model, _ := doc.Raw("model")
	s.Equal("Beetle", model)
	extra, _ := doc.Raw("extra")
	s.Equal(M{"a": 1}, extra)
}

func (s *DocumentTestSuite) TestDelete() {
	doc, err := s.schema.New(M{"model": "Beetle", "color": "blue"})
	s.Require().NoError(err)

	s.NoError(doc.Delete("color"))
	s.False(doc.Has("color"))
	s.Equal(domain.ErrNoSuchKey{Key: "color"}, doc.Delete("color"))
	s.Equal(domain.ErrNoSuchKey{Key: "cost"}, doc.Delete("cost"))
}

func (s *DocumentTestSuite) TestDeserialize() {
	doc, err := s.schema.New(M{"model": "Beetle", "color": "blue"})
	s.Require().NoError(err)

	res, err := doc.Deserialize(s.ctx, M{"model": "Fusca", "acc": 40.0})
	s.Require().NoError(err)
	s.Same(doc, res)

	s.False(doc.Has("color"))
	raw, _ := doc.Raw("acc")
	s.Equal(int64(40), raw)
	raw, _ = doc.Raw("wheels")
	s.Equal(int64(4), raw)

	_, err = doc.Deserialize(s.ctx, M{"color": "red"}, document.WithClear(false))
	s.NoError(err)
	s.True(doc.Has("model"))
	s.True(doc.Has("color"))

	_, err = doc.Deserialize(s.ctx, M{"cost": 1.0})
	s.ErrorAs(err, &domain.ErrValidation{})

	_, err = doc.Deserialize(s.ctx, M{"cost": 1.0}, document.WithValidate(false))
	s.NoError(err)

	_, err = doc.Deserialize(s.ctx, "not a mapping")
	s.ErrorAs(err, &domain.ErrType{})
}

// A value that fails to convert leaves the document as it was.
func (s *DocumentTestSuite) TestDeserializeFailureKeepsData() {
	doc, err := s.schema.New(M{"acc": 40.0, "keep": "me"})
	s.Require().NoError(err)

	_, err = doc.Deserialize(s.ctx, M{"a": 1, "acc": "not a number"})
	s.Error(err)

	s.Equal([]string{"acc", "keep", "wheels"}, slices.Collect(doc.Keys()))
	raw, _ := doc.Raw("acc")
	s.Equal(40.0, raw)
	raw, _ = doc.Raw("keep")
	s.Equal("me", raw)
	s.False(doc.Has("a"))

	_, err = doc.Deserialize(s.ctx, M{"acc": "not a number"}, document.WithClear(false))
	s.Error(err)
	raw, _ = doc.Raw("acc")
	s.Equal(40.0, raw)
}

func (s *DocumentTestSuite) TestHook() {
	errCheap := errors.New("too cheap")
	schema, err := document.NewSchema("Car", document.Fields{
		"cost": serializer.NewFloat(),
	}, document.WithHook("cost", func(_ context.Context, _ *document.Document, v any) error {
		if v.(float64) < 100 {
			return errCheap
		}
		return nil
	}))
	s.Require().NoError(err)

	doc, err := schema.New(M{"cost": 10})
	s.Require().NoError(err)
	s.ErrorIs(doc.Validate(s.ctx), errCheap)

	s.NoError(doc.Set(s.ctx, "cost", 150))
	s.NoError(doc.Validate(s.ctx))
}

func (s *DocumentTestSuite) TestItems() {
	item, err := s.schema.SerializeItem(s.ctx, "acc", 45.0)
	s.NoError(err)
	s.Equal(M{"acc": int64(45)}, item)

	item, err = s.schema.SerializeItem(s.ctx, "ttl", 3)
	s.NoError(err)
	s.Equal(M{"ttl": 3}, item)

	_, err = s.schema.SerializeItem(s.ctx, "acc", "x")
	s.ErrorAs(err, &domain.ErrType{})

	item, err = s.schema.DeserializeItem(s.ctx, "cost", 3)
	s.NoError(err)
	s.Equal(M{"cost": 3.0}, item)
}

func (s *DocumentTestSuite) TestAccessor() {
	acc, ok := s.schema.Accessor("model")
	s.Require().True(ok)
	s.Equal("model", acc.Name())

	_, ok = s.schema.Accessor("color")
	s.False(ok)

	doc, err := s.schema.New(nil)
	s.Require().NoError(err)

	s.False(acc.Has(doc))
	s.NoError(acc.Set(s.ctx, doc, "Beetle"))
	v, err := acc.Get(s.ctx, doc)
	s.NoError(err)
	s.Equal("Beetle", v)
	s.NoError(acc.Delete(doc))
	s.False(acc.Has(doc))
}

func (s *DocumentTestSuite) TestDecode() {
	type owner struct {
		Name string `odm:"name"`
	}
	type car struct {
		Model  string  `odm:"model"`
		Owners []owner `odm:"owners"`
		Wheels int     `odm:"wheels"`
	}

	doc, err := s.schema.New(M{"model": "Beetle", "owners": []any{M{"name": "Ana"}}})
	s.Require().NoError(err)

	var c car
	s.NoError(doc.Decode(s.ctx, &c))
	s.Equal(car{Model: "Beetle", Owners: []owner{{Name: "Ana"}}, Wheels: 4}, c)
}

func (s *DocumentTestSuite) TestBeforeSave() {
	schema, err := document.NewSchema("Car", nil, document.WithBeforeSave(
		func(ctx context.Context, d *document.Document) error {
			return d.Set(ctx, "saved", true)
		},
	))
	s.Require().NoError(err)

	doc, err := schema.New(nil)
	s.Require().NoError(err)
	s.NoError(doc.BeforeSave(s.ctx))
	s.True(doc.Has("saved"))

	doc, err = s.schema.New(nil)
	s.Require().NoError(err)
	s.NoError(doc.BeforeSave(s.ctx))
}

func (s *DocumentTestSuite) TestFormFields() {
	schema, err := document.NewSchema("Car", document.Fields{
		"top_speed": serializer.NewInteger(),
		"model":     serializer.NewString(serializer.WithVerbose("Car model")),
	})
	s.Require().NoError(err)

	fields := schema.FormFields()
	s.Require().Len(fields, 2)
	s.Equal("model", fields[0].Name)
	s.Equal("Car model", fields[0].Verbose)
	s.Equal("top_speed", fields[1].Name)
	s.Equal("top speed", fields[1].Verbose)
	s.Equal("Integer", fields[1].Kind)
}

func (s *DocumentTestSuite) TestOrder() {
	doc, err := s.schema.New(M{"model": "Beetle", "cost": 1.0})
	s.Require().NoError(err)
	s.NoError(doc.Set(s.ctx, "acc", 40))
	s.Equal([]string{"cost", "model", "wheels", "acc"}, collectKeys(doc))
	s.Equal(4, doc.Len())
	s.Nil(doc.ID())
}

func collectKeys(doc *document.Document) []string {
	var keys []string
	for k := range doc.Keys() {
		keys = append(keys, k)
	}
	return keys
}

func TestDocumentTestSuite(t *testing.T) {
	suite.Run(t, new(DocumentTestSuite))
}
