package credential

import (
	"context"

	"github.com/pkg/errors"

	"rtsdk/common/redis"
)

type tokenGetter interface {
	Get(key string) (string, error)
}

// RedisProvider reads the session token stored under a fixed key, as written by the login
// service.
type RedisProvider struct {
	client tokenGetter
	key    string
}

func NewRedisProvider(client tokenGetter, key string) *RedisProvider {
	return &RedisProvider{client: client, key: key}
}

func (p *RedisProvider) Credential(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token, err := p.client.Get(p.key)
	if redis.IsNotFound(err) {
		return "", errors.Wrapf(ErrUnavailable, "no session under %s", p.key)
	}
	if err != nil {
		return "", errors.Wrapf(err, "read session %s", p.key)
	}
	return token, nil
}
