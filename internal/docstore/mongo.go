package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Mongo maps each collection path onto a Mongo collection; slashes become dots
// so conferences/abc/paper_submissions is stored as conferences.abc.paper_submissions.
type Mongo struct {
	db *mongo.Database
}

// NewMongo wraps a database handle.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

func (m *Mongo) coll(collection string) *mongo.Collection {
	return m.db.Collection(strings.ReplaceAll(collection, "/", "."))
}

func (m *Mongo) Get(ctx context.Context, collection, id string, out any) error {
	var doc bson.Raw
	err := m.coll(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return err
	}
	raw, err := fromBSON(doc)
	if err != nil {
		return err
	}
	return decodeOne(raw, out)
}

func (m *Mongo) Put(ctx context.Context, collection, id string, doc any) error {
	raw, err := encode(doc)
	if err != nil {
		return err
	}
	var fields bson.M
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	fields["_id"] = id
	_, err = m.coll(collection).ReplaceOne(ctx, bson.M{"_id": id}, fields, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) Delete(ctx context.Context, collection, id string) error {
	res, err := m.coll(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Find(ctx context.Context, collection string, filter Filter, out any) error {
	query := bson.M{}
	for k, v := range filter {
		if !validField(k) {
			return fmt.Errorf("invalid filter field %q", k)
		}
		query[k] = v
	}
	cur, err := m.coll(collection).Find(ctx, query, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	var raws [][]byte
	for cur.Next(ctx) {
		raw, err := fromBSON(cur.Current)
		if err != nil {
			return err
		}
		raws = append(raws, raw)
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return decodeAll(raws, out)
}

// fromBSON re-encodes a document as relaxed extended JSON. Documents are
// written from JSON so they only hold JSON compatible values; the _id key is
// ignored by the struct decoders.
func fromBSON(doc bson.Raw) ([]byte, error) {
	raw, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return raw, nil
}
