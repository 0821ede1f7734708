package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/godm/adapter/document"
	"github.com/vinicius-lino-figueiredo/godm/adapter/serializer"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

type M = map[string]any

// sliceCursor is a backend cursor over fixed raw documents.
type sliceCursor struct {
	docs   []M
	index  int
	closed int
	err    error
}

func (s *sliceCursor) Next(context.Context) bool {
	if s.index >= len(s.docs) {
		return false
	}
	s.index++
	return true
}

func (s *sliceCursor) Decode(target any) error {
	*target.(*map[string]any) = s.docs[s.index-1]
	return nil
}

func (s *sliceCursor) Err() error                  { return s.err }
func (s *sliceCursor) Close(context.Context) error { s.closed++; return nil }

type backendCursorMock struct{ mock.Mock }

func (b *backendCursorMock) Next(ctx context.Context) bool { return b.Called(ctx).Bool(0) }
func (b *backendCursorMock) Decode(target any) error       { return b.Called(target).Error(0) }
func (b *backendCursorMock) Err() error                    { return b.Called().Error(0) }
func (b *backendCursorMock) Close(ctx context.Context) error {
	return b.Called(ctx).Error(0)
}

type CursorTestSuite struct {
	suite.Suite
	ctx    context.Context
	schema *document.Schema
}

func (s *CursorTestSuite) SetupTest() {
	s.ctx = context.Background()
	var err error
	s.schema, err = document.NewSchema("Car", document.Fields{
		"model": serializer.NewString(serializer.WithRequired(true)),
		"acc":   serializer.NewInteger(),
	})
	s.Require().NoError(err)
}

func (s *CursorTestSuite) TestIterate() {
	src := &sliceCursor{docs: []M{
		{"_id": "1", "model": "Beetle", "acc": 45.0},
		{"_id": "2", "model": "Fusca"},
	}}
	cur := NewCursor(src, s.schema)

	_, err := cur.Document()
	s.ErrorIs(err, domain.ErrDecodeBeforeNext)

	s.True(cur.Next(s.ctx))
	doc, err := cur.Document()
	s.NoError(err)
	s.Same(s.schema, doc.Schema())
	s.Equal("1", doc.ID())
	acc, err := doc.Get(s.ctx, "acc")
	s.NoError(err)
	s.Equal(int64(45), acc)

	s.True(cur.Next(s.ctx))
	var car struct {
		Model string `odm:"model"`
	}
	s.NoError(cur.Decode(s.ctx, &car))
	s.Equal("Fusca", car.Model)

	s.False(cur.Next(s.ctx))
	s.NoError(cur.Err())
	s.NoError(cur.Close(s.ctx))
	s.ErrorIs(cur.Close(s.ctx), domain.ErrCursorClosed)
	s.False(cur.Next(s.ctx))
	s.Equal(1, src.closed)
}

// Stored documents are not validated when read.
func (s *CursorTestSuite) TestNoValidation() {
	cur := NewCursor(&sliceCursor{docs: []M{{"acc": 1}}}, s.schema)
	docs, err := cur.All(s.ctx)
	s.NoError(err)
	s.Len(docs, 1)
}

func (s *CursorTestSuite) TestConversionError() {
	src := &sliceCursor{docs: []M{{"acc": "fast"}, {"acc": 1}}}
	cur := NewCursor(src, s.schema)

	s.False(cur.Next(s.ctx))
	s.ErrorAs(cur.Err(), &domain.ErrType{})
	s.False(cur.Next(s.ctx))

	_, err := NewCursor(&sliceCursor{docs: []M{{"acc": "fast"}}}, s.schema).All(s.ctx)
	s.Error(err)
}

func (s *CursorTestSuite) TestBackendErrors() {
	errDecode := errors.New("decode")
	src := new(backendCursorMock)
	src.On("Next", s.ctx).Return(true).Once()
	src.On("Decode", mock.Anything).Return(errDecode).Once()
	src.On("Close", s.ctx).Return(nil).Once()

	cur := NewCursor(src, s.schema)
	var errs []error
	for doc, err := range cur.Iter(s.ctx) {
		s.Nil(doc)
		errs = append(errs, err)
	}
	s.Require().Len(errs, 1)
	s.ErrorIs(errs[0], errDecode)

	errNet := errors.New("network")
	src = new(backendCursorMock)
	src.On("Next", s.ctx).Return(false).Once()
	src.On("Err").Return(errNet)
	src.On("Close", s.ctx).Return(nil).Once()

	_, err := NewCursor(src, s.schema).All(s.ctx)
	s.ErrorIs(err, errNet)
	src.AssertExpectations(s.T())
}

func (s *CursorTestSuite) TestIterStop() {
	src := &sliceCursor{docs: []M{{"model": "a"}, {"model": "b"}}}
	cur := NewCursor(src, s.schema)

	for doc, err := range cur.Iter(s.ctx) {
		s.NoError(err)
		s.NotNil(doc)
		break
	}
	s.Equal(1, src.closed)
	_, err := cur.Document()
	s.ErrorIs(err, domain.ErrCursorClosed)
}

func TestCursorTestSuite(t *testing.T) {
	suite.Run(t, new(CursorTestSuite))
}
