package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	mClient *mongo.Client
}

// Connect dials uri and verifies the deployment with a ping bounded by timeout.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts := options.Client().ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	mClient, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect mongoDB")
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err = mClient.Ping(pingCtx, nil); err != nil {
		mClient.Disconnect(context.Background())
		return nil, errors.Wrap(err, "unable to ping mongoDB")
	}
	return &Client{mClient}, nil
}

func (c *Client) Collection(database, name string) *mongo.Collection {
	return c.mClient.Database(database).Collection(name)
}

func (c *Client) Disconnect(ctx context.Context) error {
	if err := c.mClient.Disconnect(ctx); err != nil {
		return errors.Wrap(err, "unable to disconnect mongoDB")
	}
	return nil
}
