package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

type M = map[string]any

type A = []any

type timeGetterMock struct{ mock.Mock }

func (t *timeGetterMock) GetTime() time.Time {
	return t.Called().Get(0).(time.Time)
}

type idGeneratorMock struct{ mock.Mock }

func (i *idGeneratorMock) GenerateID() (string, error) {
	call := i.Called()
	return call.String(0), call.Error(1)
}

type CollectionTestSuite struct {
	suite.Suite
	ctx context.Context
	db  *Database
	c   *Collection
}

func (s *CollectionTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = NewDatabase()
	s.c = s.db.Collection("users").(*Collection)
}

func (s *CollectionTestSuite) find(spec M, fields any, options ...domain.FindOption) []M {
	cur, err := s.c.Find(s.ctx, spec, fields, options...)
	s.Require().NoError(err)
	var res []M
	for cur.Next(s.ctx) {
		var doc M
		s.Require().NoError(cur.Decode(&doc))
		res = append(res, doc)
	}
	s.Require().NoError(cur.Err())
	s.Require().NoError(cur.Close(s.ctx))
	return res
}

func (s *CollectionTestSuite) insert(docs ...M) []any {
	ids, err := s.c.Insert(s.ctx, docs)
	s.Require().NoError(err)
	return ids
}

func (s *CollectionTestSuite) TestSameHandle() {
	s.Same(s.c, s.db.Collection("users"))
	s.NotSame(s.c, s.db.Collection("groups"))
	s.ElementsMatch([]string{"users", "groups"}, s.db.Names())
	s.Equal("users", s.c.Name())
}

func (s *CollectionTestSuite) TestInsertGeneratesIDs() {
	ids := s.insert(M{"name": "a"}, M{"_id": "fixed", "name": "b"})
	s.Len(ids, 2)
	s.Len(ids[0], 36)
	s.Equal("fixed", ids[1])

	docs := s.find(M{"_id": ids[0]}, nil)
	s.Equal([]M{{"_id": ids[0], "name": "a"}}, docs)
}

func (s *CollectionTestSuite) TestExtraOptionsIgnored() {
	ids, err := s.c.Insert(s.ctx, []map[string]any{{"_id": "1"}}, domain.WithExtra("w", "majority"))
	s.Require().NoError(err)
	s.Equal([]any{"1"}, ids)

	ids, err = s.c.Insert(s.ctx, nil)
	s.NoError(err)
	s.Empty(ids)

	res, err := s.c.Update(s.ctx, M{"_id": "1"}, M{"$set": M{"a": 1}}, domain.WithExtra("hint", "_id_"))
	s.NoError(err)
	s.Equal(int64(1), res.Matched)

	s.Len(s.find(nil, nil, domain.WithExtra("comment", "all")), 1)
}

func (s *CollectionTestSuite) TestInsertCopiesDocuments() {
	doc := M{"_id": "1", "tags": A{"x"}}
	s.insert(doc)
	doc["tags"].(A)[0] = "changed"

	docs := s.find(nil, nil)
	s.Equal(A{"x"}, docs[0]["tags"])

	docs[0]["tags"].(A)[0] = "changed"
	s.Equal(A{"x"}, s.find(nil, nil)[0]["tags"])
}

func (s *CollectionTestSuite) TestInsertDuplicateID() {
	s.insert(M{"_id": "1"})

	ids, err := s.c.Insert(s.ctx, []M{{"_id": "2"}, {"_id": "1"}, {"_id": "3"}})
	s.ErrorIs(err, domain.ErrConstraintViolated)
	s.Equal([]any{"2"}, ids)

	ids, err = s.c.Insert(s.ctx, []M{{"_id": "1"}, {"_id": "4"}}, domain.WithInsertOrdered(false))
	s.ErrorIs(err, domain.ErrConstraintViolated)
	s.Equal([]any{"4"}, ids)

	n, err := s.c.Count(s.ctx)
	s.NoError(err)
	s.Equal(3, n)
}

func (s *CollectionTestSuite) TestInsertInvalidKeys() {
	_, err := s.c.Insert(s.ctx, []M{{"$bad": 1}})
	s.ErrorAs(err, &domain.ErrFieldName{})
	_, err = s.c.Insert(s.ctx, []M{{"a": M{"b.c": 1}}})
	s.ErrorAs(err, &domain.ErrFieldName{})
}

func (s *CollectionTestSuite) TestIDGeneratorError() {
	gen := new(idGeneratorMock)
	errGen := errors.New("no entropy")
	gen.On("GenerateID").Return("", errGen).Once()
	c := NewDatabase(WithIDGenerator(gen)).Collection("c")

	_, err := c.Insert(s.ctx, []M{{"a": 1}})
	s.ErrorIs(err, errGen)
	gen.AssertExpectations(s.T())
}

func (s *CollectionTestSuite) TestSave() {
	id, err := s.c.Save(s.ctx, M{"name": "a"})
	s.Require().NoError(err)

	_, err = s.c.Save(s.ctx, M{"_id": id, "name": "b"})
	s.NoError(err)

	s.Equal([]M{{"_id": id, "name": "b"}}, s.find(nil, nil))
}

func (s *CollectionTestSuite) TestFindOperators() {
	s.insert(
		M{"_id": "1", "age": int64(20), "tags": A{"go", "db"}, "info": M{"city": "x"}},
		M{"_id": "2", "age": int64(30), "tags": A{"py"}},
		M{"_id": "3", "age": int64(40), "info": M{"city": "y"}},
	)

	ids := func(docs []M) []any {
		res := make([]any, len(docs))
		for n, d := range docs {
			res[n] = d["_id"]
		}
		return res
	}

	s.Equal([]any{"2", "3"}, ids(s.find(M{"age": M{"$gt": int64(25)}}, nil)))
	s.Equal([]any{"1"}, ids(s.find(M{"tags": "go"}, nil)))
	s.Equal([]any{"3"}, ids(s.find(M{"info.city": "y"}, nil)))
	s.Equal([]any{"2"}, ids(s.find(M{"info": M{"$exists": false}}, nil)))
	s.Equal([]any{"1", "3"}, ids(s.find(M{"$or": A{M{"age": int64(20)}, M{"age": int64(40)}}}, nil)))
	s.Equal([]any{"1", "2"}, ids(s.find(M{"age": M{"$in": A{int64(20), int64(30)}}}, nil)))
	s.Empty(s.find(M{"_id": "nope"}, nil))
}

func (s *CollectionTestSuite) TestFindOptions() {
	s.insert(
		M{"_id": "1", "n": int64(3), "g": "b"},
		M{"_id": "2", "n": int64(1), "g": "a"},
		M{"_id": "3", "n": int64(2), "g": "b"},
		M{"_id": "4", "n": int64(4)},
	)

	docs := s.find(nil, A{"n"}, domain.WithFindSort(domain.Sort{{Key: "n", Order: -1}}))
	s.Equal([]M{
		{"_id": "4", "n": int64(4)},
		{"_id": "1", "n": int64(3)},
		{"_id": "3", "n": int64(2)},
		{"_id": "2", "n": int64(1)},
	}, docs)

	docs = s.find(nil, M{"_id": 0, "n": 1},
		domain.WithFindSort(domain.Sort{{Key: "g", Order: 1}, {Key: "n", Order: 1}}),
		domain.WithFindSkip(1),
		domain.WithFindLimit(2),
	)
	s.Equal([]M{{"n": int64(1)}, {"n": int64(2)}}, docs)

	s.Len(s.find(nil, nil, domain.WithFindSkip(10)), 0)
	s.Len(s.find(nil, nil, domain.WithFindLimit(-1)), 1)

	_, err := s.c.Find(s.ctx, nil, M{"a": 1, "b": 0})
	s.Error(err)
}

func (s *CollectionTestSuite) TestUpdate() {
	s.insert(
		M{"_id": "1", "n": int64(1), "tags": A{}},
		M{"_id": "2", "n": int64(2), "tags": A{}},
	)

	res, err := s.c.Update(s.ctx, nil, M{"$inc": M{"n": 10}})
	s.NoError(err)
	s.Equal(domain.UpdateResult{Matched: 1, Modified: 1}, res)
	s.Equal([]M{
		{"_id": "1", "n": int64(11), "tags": A{}},
		{"_id": "2", "n": int64(2), "tags": A{}},
	}, s.find(nil, nil))

	res, err = s.c.Update(s.ctx, nil, M{"$push": M{"tags": "x"}}, domain.WithUpdateMulti(true))
	s.NoError(err)
	s.Equal(domain.UpdateResult{Matched: 2, Modified: 2}, res)

	res, err = s.c.Update(s.ctx, M{"_id": "2"}, M{"$set": M{"n": int64(2)}})
	s.NoError(err)
	s.Equal(domain.UpdateResult{Matched: 1, Modified: 0}, res)

	res, err = s.c.Update(s.ctx, M{"_id": "2"}, M{"other": true})
	s.NoError(err)
	s.Equal(domain.UpdateResult{Matched: 1, Modified: 1}, res)
	s.Equal([]M{{"_id": "2", "other": true}}, s.find(M{"_id": "2"}, nil))

	res, err = s.c.Update(s.ctx, M{"_id": "none"}, M{"$set": M{"n": 1}})
	s.NoError(err)
	s.Equal(domain.UpdateResult{}, res)

	_, err = s.c.Update(s.ctx, M{"_id": "1"}, M{"$set": M{"_id": "9"}})
	s.ErrorIs(err, domain.ErrCannotModifyID)
}

func (s *CollectionTestSuite) TestUpsert() {
	res, err := s.c.Update(s.ctx,
		M{"name": "a", "age": M{"$gt": 1}},
		M{"$set": M{"x": 1}, "$setOnInsert": M{"created": true}},
		domain.WithUpsert(true),
	)
	s.NoError(err)
	s.NotNil(res.UpsertedID)
	s.Equal([]M{{"_id": res.UpsertedID, "name": "a", "x": 1, "created": true}}, s.find(nil, nil))

	res, err = s.c.Update(s.ctx,
		M{"name": "a"},
		M{"$set": M{"x": 2}, "$setOnInsert": M{"created": false}},
		domain.WithUpsert(true),
	)
	s.NoError(err)
	s.Equal(domain.UpdateResult{Matched: 1, Modified: 1}, res)
	s.Equal(true, s.find(nil, nil)[0]["created"])

	res, err = s.c.Update(s.ctx, M{"_id": "r"}, M{"name": "b"}, domain.WithUpsert(true))
	s.NoError(err)
	s.Equal("r", res.UpsertedID)

	res, err = s.c.Update(s.ctx, M{"_id": "r"}, M{"$setOnInsert": M{"name": "c"}}, domain.WithUpsert(true))
	s.NoError(err)
	s.Equal(domain.UpdateResult{Matched: 1}, res)
	s.Equal([]M{{"_id": "r", "name": "b"}}, s.find(M{"_id": "r"}, nil))
}

func (s *CollectionTestSuite) TestRemove() {
	s.insert(M{"_id": "1", "n": int64(1)}, M{"_id": "2", "n": int64(2)}, M{"_id": "3", "n": int64(3)})

	n, err := s.c.Remove(s.ctx, M{"n": M{"$gte": int64(2)}})
	s.NoError(err)
	s.Equal(int64(2), n)
	s.Equal([]M{{"_id": "1", "n": int64(1)}}, s.find(nil, nil))

	_, err = s.c.EnsureIndex(s.ctx, []domain.IndexKey{{Field: "n", Direction: 1}}, 0)
	s.NoError(err)

	n, err = s.c.Remove(s.ctx, nil)
	s.NoError(err)
	s.Equal(int64(1), n)
	s.Empty(s.find(nil, nil))

	indexes, err := s.c.Indexes(s.ctx)
	s.NoError(err)
	s.Len(indexes, 2)

	s.insert(M{"_id": "1"})
}

func (s *CollectionTestSuite) TestUniqueIndex() {
	s.insert(M{"_id": "1", "email": "a"}, M{"_id": "2", "email": "a"})

	_, err := s.c.EnsureIndex(s.ctx, []domain.IndexKey{{Field: "email", Direction: 1}}, 0, domain.WithIndexUnique(true))
	s.ErrorIs(err, domain.ErrConstraintViolated)

	_, err = s.c.Remove(s.ctx, M{"_id": "2"})
	s.Require().NoError(err)

	name, err := s.c.EnsureIndex(s.ctx, []domain.IndexKey{{Field: "email", Direction: 1}}, 0, domain.WithIndexUnique(true))
	s.NoError(err)
	s.Equal("email_1", name)

	_, err = s.c.Insert(s.ctx, []M{{"_id": "3", "email": "a"}})
	s.ErrorIs(err, domain.ErrConstraintViolated)
	s.Empty(s.find(M{"_id": "3"}, nil))

	s.insert(M{"_id": "4", "email": "b"})
	_, err = s.c.Update(s.ctx, M{"_id": "4"}, M{"$set": M{"email": "a"}})
	s.ErrorIs(err, domain.ErrConstraintViolated)
	s.Equal("b", s.find(M{"_id": "4"}, nil)[0]["email"])

	_, err = s.c.Save(s.ctx, M{"_id": "4", "email": "a"})
	s.ErrorIs(err, domain.ErrConstraintViolated)

	// Missing values are indexed as nil, so only one document may lack
	// the field.
	s.insert(M{"_id": "5"})
	_, err = s.c.Insert(s.ctx, []M{{"_id": "6"}})
	s.ErrorIs(err, domain.ErrConstraintViolated)
}

func (s *CollectionTestSuite) TestSparseIndex() {
	_, err := s.c.EnsureIndex(s.ctx, []domain.IndexKey{{Field: "nick", Direction: 1}}, 0,
		domain.WithIndexUnique(true), domain.WithIndexSparse(true))
	s.Require().NoError(err)

	s.insert(M{"_id": "1"}, M{"_id": "2"}, M{"_id": "3", "nick": "x"})
	_, err = s.c.Insert(s.ctx, []M{{"_id": "4", "nick": "x"}})
	s.ErrorIs(err, domain.ErrConstraintViolated)
}

func (s *CollectionTestSuite) TestArrayIndex() {
	_, err := s.c.EnsureIndex(s.ctx, []domain.IndexKey{{Field: "tags", Direction: 1}}, 0, domain.WithIndexUnique(true))
	s.Require().NoError(err)

	s.insert(M{"_id": "1", "tags": A{"a", "b", "a"}})
	_, err = s.c.Insert(s.ctx, []M{{"_id": "2", "tags": A{"c", "b"}}})
	s.ErrorIs(err, domain.ErrConstraintViolated)
	s.insert(M{"_id": "3", "tags": A{"c"}})
}

func (s *CollectionTestSuite) TestCompoundIndex() {
	keys := []domain.IndexKey{{Field: "a", Direction: 1}, {Field: "b", Direction: -1}}
	name, err := s.c.EnsureIndex(s.ctx, keys, 0, domain.WithIndexUnique(true))
	s.Require().NoError(err)
	s.Equal("a_1_b_-1", name)

	s.insert(M{"_id": "1", "a": 1, "b": 1}, M{"_id": "2", "a": 1, "b": 2})
	_, err = s.c.Insert(s.ctx, []M{{"_id": "3", "a": 1, "b": 2}})
	s.ErrorIs(err, domain.ErrConstraintViolated)

	_, err = s.c.EnsureIndex(s.ctx, []domain.IndexKey{{Field: "a", Direction: "text"}}, 0)
	s.ErrorAs(err, &domain.ErrType{})
}

func (s *CollectionTestSuite) TestEnsureIndexCacheTime() {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tg := new(timeGetterMock)
	c := NewDatabase(WithTimeGetter(tg)).Collection("c").(*Collection)
	keys := []domain.IndexKey{{Field: "a", Direction: 1}}

	tg.On("GetTime").Return(now).Once()
	name, err := c.EnsureIndex(s.ctx, keys, time.Minute, domain.WithIndexName("by_a"))
	s.Require().NoError(err)
	s.Equal("by_a", name)

	// Within the cache time the collection is not looked up again, so an
	// index that vanished meanwhile is not recreated.
	delete(c.indexes, "by_a")
	c.indexOrder = c.indexOrder[:1]
	tg.On("GetTime").Return(now.Add(30 * time.Second)).Once()
	_, err = c.EnsureIndex(s.ctx, keys, time.Minute, domain.WithIndexName("by_a"))
	s.NoError(err)
	s.NotContains(c.indexes, "by_a")

	tg.On("GetTime").Return(now.Add(2 * time.Minute)).Once()
	_, err = c.EnsureIndex(s.ctx, keys, time.Minute, domain.WithIndexName("by_a"))
	s.NoError(err)
	s.Contains(c.indexes, "by_a")

	tg.AssertExpectations(s.T())
}

func (s *CollectionTestSuite) TestIDIndexName() {
	name, err := s.c.EnsureIndex(s.ctx, []domain.IndexKey{{Field: "_id", Direction: 1}}, 0)
	s.NoError(err)
	s.Equal("_id_", name)
	s.Error(s.c.DropIndex(s.ctx, "_id_"))
}

func (s *CollectionTestSuite) TestDropIndex() {
	_, err := s.c.EnsureIndex(s.ctx, []domain.IndexKey{{Field: "a", Direction: 1}}, time.Hour, domain.WithIndexUnique(true))
	s.Require().NoError(err)
	s.NoError(s.c.DropIndex(s.ctx, "a_1"))
	s.NoError(s.c.DropIndex(s.ctx, "a_1"))

	s.insert(M{"a": 1}, M{"a": 1})
}

func (s *CollectionTestSuite) TestTTLIndex() {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tg := new(timeGetterMock)
	tg.On("GetTime").Return(now)
	c := NewDatabase(WithTimeGetter(tg)).Collection("sessions").(*Collection)

	_, err := c.EnsureIndex(s.ctx, []domain.IndexKey{{Field: "at", Direction: 1}}, 0, domain.WithIndexExpireAfter(60))
	s.Require().NoError(err)
	_, err = c.Insert(s.ctx, []M{
		{"_id": "old", "at": now.Add(-2 * time.Minute)},
		{"_id": "new", "at": now.Add(-30 * time.Second)},
		{"_id": "none", "at": "not a date"},
	})
	s.Require().NoError(err)

	n, err := c.Count(s.ctx)
	s.NoError(err)
	s.Equal(2, n)
}

func (s *CollectionTestSuite) TestPersistence() {
	dir := filepath.Join(s.T().TempDir(), "db")
	when := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	c := NewDatabase(WithDirectory(dir)).Collection("users").(*Collection)
	_, err := c.EnsureIndex(s.ctx, []domain.IndexKey{{Field: "email", Direction: 1}}, 0, domain.WithIndexUnique(true))
	s.Require().NoError(err)
	_, err = c.Insert(s.ctx, []M{
		{"_id": "1", "email": "a", "at": when, "n": int64(1)},
		{"_id": "2", "email": "b"},
	})
	s.Require().NoError(err)
	_, err = c.Update(s.ctx, M{"_id": "1"}, M{"$inc": M{"n": 1}})
	s.Require().NoError(err)
	_, err = c.Remove(s.ctx, M{"_id": "2"})
	s.Require().NoError(err)
	s.NoError(c.Compact(s.ctx))

	reopened := NewDatabase(WithDirectory(dir)).Collection("users").(*Collection)
	cur, err := reopened.Find(s.ctx, nil, nil)
	s.Require().NoError(err)
	s.True(cur.Next(s.ctx))
	var doc M
	s.NoError(cur.Decode(&doc))
	s.Equal(M{"_id": "1", "email": "a", "at": when, "n": int64(2)}, doc)
	s.False(cur.Next(s.ctx))

	indexes, err := reopened.Indexes(s.ctx)
	s.NoError(err)
	s.Len(indexes, 2)
	s.Equal("email_1", indexes[1].Name)
	s.True(indexes[1].Unique)

	_, err = reopened.Insert(s.ctx, []M{{"email": "a"}})
	s.ErrorIs(err, domain.ErrConstraintViolated)

	s.NoError(reopened.Drop(s.ctx))
	n, err := reopened.Count(s.ctx)
	s.NoError(err)
	s.Zero(n)
}

func (s *CollectionTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.c.Insert(ctx, []M{{"a": 1}})
	s.ErrorIs(err, context.Canceled)
	_, err = s.c.Find(ctx, nil, nil)
	s.ErrorIs(err, context.Canceled)
}

func TestCollectionTestSuite(t *testing.T) {
	suite.Run(t, new(CollectionTestSuite))
}
