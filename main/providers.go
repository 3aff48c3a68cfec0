package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"rtsdk/common/logger"
	"rtsdk/common/mongo"
	"rtsdk/common/redis"
	"rtsdk/config"
	"rtsdk/credential"
)

const storeTimeout = 5 * time.Second

// buildProvider opens the credential store named by cfg.Source. The returned close func releases
// whatever the store holds open and is never nil.
func buildProvider(ctx context.Context, cfg config.CredentialConfig, log *logger.SimpleLogger) (credential.Provider, func(), error) {
	noop := func() {}
	var (
		provider credential.Provider
		release  = noop
	)
	switch cfg.Source {
	case config.SourceStatic:
		provider = credential.Static(cfg.Token)
	case config.SourceEnv:
		provider = credential.Env(cfg.EnvVar)
	case config.SourceRedis:
		client := redis.NewRedisClient(redis.Options{
			Addr:        cfg.Redis.Server,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: storeTimeout,
		})
		if err := client.Ping(); err != nil {
			client.Close()
			return nil, noop, errors.Wrapf(err, "redis %s", cfg.Redis.Server)
		}
		provider = credential.NewRedisProvider(client, cfg.Redis.Key)
		release = func() { logger.LogError(log, "redis.Close", client.Close()) }
	case config.SourceMySQL:
		db, err := credential.OpenMySQL(cfg.MySQL.DSN)
		if err != nil {
			return nil, noop, err
		}
		provider = credential.NewSQLProvider(db, cfg.UserID)
		release = func() {
			if sqlDB, err := db.DB(); err == nil {
				logger.LogError(log, "mysql.Close", sqlDB.Close())
			}
		}
	case config.SourceMongo:
		client, err := mongo.Connect(ctx, cfg.Mongo.URI, storeTimeout)
		if err != nil {
			return nil, noop, err
		}
		provider = credential.NewMongoProvider(client.Collection(cfg.Mongo.Database, cfg.Mongo.Collection), cfg.UserID)
		release = func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			logger.LogError(log, "mongo.Disconnect", client.Disconnect(ctx))
		}
	default:
		return nil, noop, errors.Errorf("unknown credential source %q", cfg.Source)
	}
	if cfg.ExpiryCheck {
		provider = credential.WithExpiryCheck(provider, cfg.Leeway)
	}
	log.Debugf("credential source: %s", cfg.Source)
	return provider, release, nil
}
