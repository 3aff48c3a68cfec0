package credential

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type sessionDocument struct {
	UserID    string    `bson:"user_id"`
	Token     string    `bson:"token"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// MongoProvider is the document-store counterpart of SQLProvider.
type MongoProvider struct {
	coll   *mongo.Collection
	userID string
	now    func() time.Time
}

func NewMongoProvider(coll *mongo.Collection, userID string) *MongoProvider {
	return &MongoProvider{coll: coll, userID: userID, now: time.Now}
}

func (p *MongoProvider) filter() bson.M {
	return bson.M{
		"user_id":    p.userID,
		"expires_at": bson.M{"$gt": p.now()},
	}
}

func (p *MongoProvider) findOptions() *options.FindOneOptions {
	return options.FindOne().
		SetSort(bson.D{{Key: "expires_at", Value: -1}}).
		SetProjection(bson.M{"token": 1, "expires_at": 1, "user_id": 1})
}

func (p *MongoProvider) Credential(ctx context.Context) (string, error) {
	var doc sessionDocument
	err := p.coll.FindOne(ctx, p.filter(), p.findOptions()).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", errors.Wrapf(ErrUnavailable, "no live session for %s", p.userID)
	}
	if err != nil {
		return "", errors.Wrap(err, "find session")
	}
	return doc.Token, nil
}
