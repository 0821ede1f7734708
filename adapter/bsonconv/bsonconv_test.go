package bsonconv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BSONConvTestSuite struct {
	suite.Suite
}

func (s *BSONConvTestSuite) TestNormalize() {
	now := time.Date(2026, 3, 4, 5, 6, 7, 8000000, time.UTC)
	oid := primitive.NewObjectID()
	raw := bson.M{
		"_id":  oid,
		"n":    int32(3),
		"l":    int64(4),
		"when": primitive.NewDateTimeFromTime(now),
		"sub":  bson.D{{Key: "a", Value: bson.A{int32(1), bson.M{"b": "c"}}}},
	}
	s.Equal(map[string]any{
		"_id":  oid,
		"n":    int64(3),
		"l":    int64(4),
		"when": now,
		"sub":  map[string]any{"a": []any{int64(1), map[string]any{"b": "c"}}},
	}, Normalize(raw))
}

func (s *BSONConvTestSuite) TestRoundTripExtJSON() {
	when := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	doc := map[string]any{"a": int64(1), "d": when, "l": []any{"x", 2.5}}
	b, err := bson.MarshalExtJSON(doc, true, false)
	s.Require().NoError(err)

	var out bson.M
	s.Require().NoError(bson.UnmarshalExtJSON(b, false, &out))
	s.Equal(doc, NormalizeDoc(out))
}

func (s *BSONConvTestSuite) TestNil() {
	s.Nil(NormalizeDoc(nil))
	s.Nil(Normalize(nil))
	s.Equal("x", Normalize("x"))
}

func TestBSONConvTestSuite(t *testing.T) {
	suite.Run(t, new(BSONConvTestSuite))
}
