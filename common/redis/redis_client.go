package redis

import (
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

const (
	ErrNotFound = 404

	ErrNotFoundStr = "not found"
)

type RedisClientErr struct {
	code int
	msg  string
}

func (e *RedisClientErr) Code() int {
	return e.code
}

func (e *RedisClientErr) Error() string {
	return e.msg
}

func NewRedisClientErr(code int, msg string) *RedisClientErr {
	return &RedisClientErr{
		code: code,
		msg:  msg,
	}
}

func NewRedisNotFoundErr() *RedisClientErr {
	return NewRedisClientErr(ErrNotFound, ErrNotFoundStr)
}

// IsNotFound reports whether err is the not-found error returned by this client.
func IsNotFound(err error) bool {
	var clientErr *RedisClientErr
	return errors.As(err, &clientErr) && clientErr.Code() == ErrNotFound
}

type RedisClient struct {
	client *redis.Client
}

type Options struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
}

func NewRedisClient(opts Options) *RedisClient {
	opt := &redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	}
	if opts.Password != "" {
		opt.Password = opts.Password
	}
	if opts.MaxRetries > 0 && opts.MaxRetries < 5 {
		opt.MaxRetries = opts.MaxRetries
	}
	if opts.DialTimeout > 0 {
		opt.DialTimeout = opts.DialTimeout
	}
	return &RedisClient{
		client: redis.NewClient(opt),
	}
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}

func (c *RedisClient) Ping() error {
	return errors.Wrap(c.client.Ping().Err(), "redis ping")
}

// Get returns a not-found error when the key does not exist.
func (c *RedisClient) Get(key string) (string, error) {
	v, err := c.client.Get(key).Result()
	if err == redis.Nil {
		return "", NewRedisNotFoundErr()
	}
	return v, err
}
