package godm_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/vinicius-lino-figueiredo/godm"
	"github.com/vinicius-lino-figueiredo/godm/adapter/collection"
	"github.com/vinicius-lino-figueiredo/godm/adapter/index"
	"github.com/vinicius-lino-figueiredo/godm/adapter/serializer"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

type M = map[string]any

func characters(ctx context.Context) *godm.Collection {
	// A schema lists the declared fields of a kind of document. Fields not
	// declared are stored as they are.
	schema, err := godm.NewSchema("Character", godm.Fields{
		"name":  godm.String(serializer.WithRequired(true)),
		"age":   godm.Integer(serializer.WithMin(0)),
		"moves": godm.List(godm.String()),
	})
	if err != nil {
		panic(err)
	}

	name, err := godm.NewIndex("name", index.WithUnique(true))
	if err != nil {
		panic(err)
	}

	// Without a directory, the in-memory database keeps nothing on disk.
	db := godm.NewMemoryDatabase()
	coll, err := godm.NewCollection(ctx, db, schema, collection.WithIndexes(name))
	if err != nil {
		panic(err)
	}
	return coll
}

func ExampleNewCollection() {
	ctx := context.Background()
	coll := characters(ctx)

	_, _ = coll.Insert(ctx, []M{
		{"name": "Ryu", "age": 30, "moves": []string{"Hadouken"}},
		{"name": "Chun-Li", "age": 27},
	})

	cur, _ := coll.Find(ctx, nil, nil, domain.WithFindSort(godm.Sort{{Key: "age", Order: 1}}))
	docs, _ := cur.All(ctx)
	for _, doc := range docs {
		name, _ := godm.Get[string](ctx, doc, "name")
		age, _ := godm.Get[int64](ctx, doc, "age")
		fmt.Println(name, age)
	}
	// Output:
	// Chun-Li 27
	// Ryu 30
}

func ExampleCollection_Update() {
	ctx := context.Background()
	coll := characters(ctx)
	_, _ = coll.Insert(ctx, M{"name": "Ryu", "age": 30})

	// Query and update values go through the field serializers before
	// reaching the backend.
	res, _ := coll.Update(ctx, M{"name": "Ryu"}, M{"$inc": M{"age": 1}, "$push": M{"moves": "Shoryuken"}})
	fmt.Println(res.Matched, res.Modified)

	doc, _ := coll.FindOne(ctx, M{"name": "Ryu"})
	age, _ := godm.Get[int64](ctx, doc, "age")
	moves, _ := godm.Get[[]any](ctx, doc, "moves")
	fmt.Println(age, moves)
	// Output:
	// 1 1
	// 31 [Shoryuken]
}

func ExampleDocument_Decode() {
	ctx := context.Background()
	coll := characters(ctx)
	_, _ = coll.Insert(ctx, M{"name": "Guile", "age": 35})

	// Struct fields are matched by their odm tag.
	type Character struct {
		Name string `odm:"name"`
		Age  int64  `odm:"age"`
	}

	doc, _ := coll.FindOne(ctx, M{"name": "Guile"})
	var c Character
	_ = doc.Decode(ctx, &c)
	fmt.Printf("%+v\n", c)
	// Output: {Name:Guile Age:35}
}

func ExampleNewIndex() {
	ctx := context.Background()
	coll := characters(ctx)

	_, _ = coll.Insert(ctx, M{"name": "Ken"})
	_, err := coll.Insert(ctx, M{"name": "Ken"})
	fmt.Println(errors.Is(err, godm.ErrConstraintViolated))
	// Output: true
}
