package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type M = map[string]any

type CollectionTestSuite struct {
	suite.Suite
	coll *Collection
}

func (s *CollectionTestSuite) SetupTest() {
	s.coll = newClient(NewConfig("app")).Collection("users").(*Collection)
}

func (s *CollectionTestSuite) TestNotConnected() {
	ctx := context.Background()

	_, err := s.coll.Insert(ctx, []map[string]any{{"a": 1}})
	s.ErrorIs(err, ErrNotConnected)
	_, err = s.coll.Save(ctx, M{"a": 1})
	s.ErrorIs(err, ErrNotConnected)
	_, err = s.coll.Update(ctx, M{}, M{"$set": M{"a": 1}})
	s.ErrorIs(err, ErrNotConnected)
	_, err = s.coll.Remove(ctx, nil)
	s.ErrorIs(err, ErrNotConnected)
	_, err = s.coll.Find(ctx, nil, nil)
	s.ErrorIs(err, ErrNotConnected)
	_, err = s.coll.EnsureIndex(ctx, []domain.IndexKey{{Field: "a", Direction: 1}}, time.Minute)
	s.ErrorIs(err, ErrNotConnected)
}

func (s *CollectionTestSuite) TestWithID() {
	doc := M{"_id": "x", "a": 1}
	s.Equal(doc, withID(doc))

	doc = M{"a": 1}
	res := withID(doc)
	s.IsType(primitive.ObjectID{}, res["_id"])
	s.NotContains(doc, "_id")

	s.Contains(withID(nil), "_id")
}

func (s *CollectionTestSuite) TestOperatorUpdate() {
	doc := M{"a": 1}
	res, ok := operatorUpdate(doc)
	s.False(ok)
	s.Equal(doc, res)

	doc = M{"$isolated": 1, "$set": M{"a": 1}}
	res, ok = operatorUpdate(doc)
	s.True(ok)
	s.Equal(M{"$set": M{"a": 1}}, res)
	s.Contains(doc, "$isolated")
}

func (s *CollectionTestSuite) TestFindOptions() {
	sort := domain.Sort{{Key: "name", Order: 1}, {Key: "age", Order: -5}}
	fo, err := optionsFind(domain.NewFindOptions(
		domain.WithFindSkip(2),
		domain.WithFindLimit(-3),
		domain.WithFindSort(sort),
	), []string{"name", "age"})
	s.Require().NoError(err)

	s.Equal(int64(2), *fo.Skip)
	s.Equal(int64(-3), *fo.Limit)
	s.Equal(bson.D{{Key: "name", Value: int32(1)}, {Key: "age", Value: int32(-1)}}, fo.Sort)
	s.Equal(bson.D{{Key: "age", Value: int32(1)}, {Key: "name", Value: int32(1)}}, fo.Projection)

	fo, err = optionsFind(domain.NewFindOptions(), nil)
	s.Require().NoError(err)
	s.Nil(fo.Skip)
	s.Nil(fo.Limit)
	s.Nil(fo.Sort)
	s.Nil(fo.Projection)

	_, err = optionsFind(domain.NewFindOptions(), 12)
	s.Error(err)
}

func (s *CollectionTestSuite) TestIndexSpec() {
	keys := []domain.IndexKey{{Field: "loc", Direction: "geoHaystack"}, {Field: "age", Direction: -1}}
	spec := indexSpec(keys, domain.NewIndexOptions(
		domain.WithIndexName("geo"),
		domain.WithIndexUnique(true),
		domain.WithIndexSparse(true),
		domain.WithIndexExpireAfter(60),
		domain.WithIndexBucketSize(2.5),
		domain.WithIndexMin(-10),
		domain.WithIndexMax(10),
	))
	s.Equal(bson.D{
		{Key: "key", Value: bson.D{{Key: "loc", Value: "geoHaystack"}, {Key: "age", Value: -1}}},
		{Key: "name", Value: "geo"},
		{Key: "unique", Value: true},
		{Key: "sparse", Value: true},
		{Key: "expireAfterSeconds", Value: int32(60)},
		{Key: "bucketSize", Value: 2.5},
		{Key: "min", Value: -10.0},
		{Key: "max", Value: 10.0},
	}, spec)

	spec = indexSpec(keys[1:], domain.NewIndexOptions(domain.WithIndexName("age_-1")))
	s.Equal(bson.D{
		{Key: "key", Value: bson.D{{Key: "age", Value: -1}}},
		{Key: "name", Value: "age_-1"},
	}, spec)
}

// Extra options end up in the index specification.
func (s *CollectionTestSuite) TestIndexSpecExtra() {
	keys := []domain.IndexKey{{Field: "age", Direction: 1}}
	spec := indexSpec(keys, domain.NewIndexOptions(
		domain.WithIndexName("age_1"),
		domain.WithIndexSparse(true),
		domain.WithExtra("sparse", false),
		domain.WithExtra("partialFilterExpression", M{"age": M{"$gt": 5}}),
		domain.WithExtra("collation", M{"locale": "pt"}),
	))
	s.Equal(bson.D{
		{Key: "key", Value: bson.D{{Key: "age", Value: 1}}},
		{Key: "name", Value: "age_1"},
		{Key: "sparse", Value: false},
		{Key: "collation", Value: M{"locale": "pt"}},
		{Key: "partialFilterExpression", Value: M{"age": M{"$gt": 5}}},
	}, spec)
}

func (s *CollectionTestSuite) TestFindExtra() {
	fo, err := optionsFind(domain.NewFindOptions(
		domain.WithExtra(ExtraComment, "by age"),
		domain.WithExtra(ExtraHint, "age_1"),
		domain.WithExtra(ExtraMaxTimeMS, 1500),
		domain.WithExtra(ExtraBatchSize, int64(10)),
		domain.WithExtra(ExtraAllowDiskUse, true),
		domain.WithExtra(ExtraNoCursorTimeout, false),
	), nil)
	s.Require().NoError(err)
	s.NotNil(fo.Comment)
	s.Equal("age_1", fo.Hint)
	s.Equal(1500*time.Millisecond, *fo.MaxTime)
	s.Equal(int32(10), *fo.BatchSize)
	s.True(*fo.AllowDiskUse)
	s.False(*fo.NoCursorTimeout)

	_, err = optionsFind(domain.NewFindOptions(domain.WithExtra("w", 1)), nil)
	s.Equal(ErrUnsupportedOption{Op: "find", Key: "w"}, err)

	_, err = optionsFind(domain.NewFindOptions(domain.WithExtra(ExtraMaxTimeMS, "1s")), nil)
	s.ErrorAs(err, &domain.ErrType{})

	_, err = optionsFind(domain.NewFindOptions(domain.WithExtra(ExtraComment, 1)), nil)
	s.ErrorAs(err, &domain.ErrType{})
}

func (s *CollectionTestSuite) TestWriteExtra() {
	io, wo, err := optionsInsertMany(domain.NewInsertOptions(
		domain.WithInsertOrdered(false),
		domain.WithExtra(ExtraComment, "import"),
		domain.WithExtra(ExtraBypassDocumentValidation, true),
		domain.WithExtra(ExtraWriteConcern, "majority"),
	))
	s.Require().NoError(err)
	s.False(*io.Ordered)
	s.NotNil(io.Comment)
	s.True(*io.BypassDocumentValidation)
	s.Equal("majority", wo.concern.W)

	_, _, err = optionsInsertMany(domain.NewInsertOptions(domain.WithExtra(ExtraHint, "x")))
	s.Equal(ErrUnsupportedOption{Op: "insert", Key: ExtraHint}, err)

	uo, wo, err := optionsUpdate(domain.NewUpdateOptions(
		domain.WithUpsert(true),
		domain.WithExtra(ExtraHint, M{"age": 1}),
		domain.WithExtra(ExtraWriteConcern, 2),
	))
	s.Require().NoError(err)
	s.True(*uo.Upsert)
	s.Equal(M{"age": 1}, uo.Hint)
	s.Nil(uo.Comment)
	s.Equal(2, wo.concern.W)

	ro, wo, err := optionsReplace("save", domain.UpdateOptions{Upsert: true, Extra: M{ExtraComment: "c"}})
	s.Require().NoError(err)
	s.True(*ro.Upsert)
	s.NotNil(ro.Comment)
	s.Nil(wo.concern)

	_, _, err = optionsReplace("save", domain.UpdateOptions{Extra: M{ExtraMaxTimeMS: 1}})
	s.Equal(ErrUnsupportedOption{Op: "save", Key: ExtraMaxTimeMS}, err)

	do, _, err := optionsDelete(domain.NewRemoveOptions(domain.WithExtra(ExtraHint, "age_1")))
	s.Require().NoError(err)
	s.Equal("age_1", do.Hint)

	_, _, err = optionsDelete(domain.NewRemoveOptions(domain.WithExtra(ExtraWriteConcern, -1)))
	s.ErrorAs(err, &domain.ErrType{})

	_, _, err = optionsDelete(domain.NewRemoveOptions(domain.WithExtra(ExtraBypassDocumentValidation, true)))
	s.Equal(ErrUnsupportedOption{Op: "remove", Key: ExtraBypassDocumentValidation}, err)
}

// A collection of a client that never reached a server.
func (s *CollectionTestSuite) offline() (*mongo.Collection, func()) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	s.Require().NoError(err)
	return client.Database("app").Collection("users"), func() {
		_ = client.Disconnect(context.Background())
	}
}

func (s *CollectionTestSuite) TestWriteConcernTarget() {
	coll, done := s.offline()
	defer done()

	same, err := writeOptions{}.target(coll)
	s.NoError(err)
	s.Same(coll, same)

	wc, err := writeConcern(extra{op: "insert", values: M{ExtraWriteConcern: 1}})
	s.Require().NoError(err)
	clone, err := writeOptions{concern: wc}.target(coll)
	s.NoError(err)
	s.NotSame(coll, clone)
	s.Equal(coll.Name(), clone.Name())
}

// Inserting nothing does not reach the server, and bad options are reported
// first.
func (s *CollectionTestSuite) TestInsertEmpty() {
	coll, done := s.offline()
	defer done()
	s.coll.coll = coll

	ids, err := s.coll.Insert(context.Background(), nil)
	s.NoError(err)
	s.Equal([]any{}, ids)

	_, err = s.coll.Insert(context.Background(), nil, domain.WithExtra("nope", 1))
	s.Equal(ErrUnsupportedOption{Op: "insert", Key: "nope"}, err)
}

func (s *CollectionTestSuite) TestErrorMessage() {
	s.Equal(`find does not support option "w"`, ErrUnsupportedOption{Op: "find", Key: "w"}.Error())
}

func (s *CollectionTestSuite) TestInsertedIDs() {
	ids := []any{1, 2, 3, 4}
	bwe := mongo.BulkWriteException{WriteErrors: []mongo.BulkWriteError{
		{WriteError: mongo.WriteError{Index: 2, Code: 11000}},
		{WriteError: mongo.WriteError{Index: 1, Code: 11000}},
	}}

	s.Equal([]any{1}, insertedIDs(ids, bwe, true))
	s.Equal([]any{1, 4}, insertedIDs(ids, bwe, false))
	s.Nil(insertedIDs(ids, errors.New("network"), false))
}

func (s *CollectionTestSuite) TestConvertError() {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
	err := convertError(dup)
	s.ErrorIs(err, domain.ErrConstraintViolated)
	s.ErrorAs(err, &mongo.WriteException{})

	other := errors.New("other")
	s.Same(other, convertError(other))
}

func (s *CollectionTestSuite) TestFilterDoc() {
	s.Equal(bson.M{}, filterDoc(nil))
	s.Equal(M{"a": 1}, filterDoc(M{"a": 1}))
}

func TestCollectionTestSuite(t *testing.T) {
	suite.Run(t, new(CollectionTestSuite))
}
