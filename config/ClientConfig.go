package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "RTSDK"

type ClientConfig struct {
	ServerURL        string           `mapstructure:"serverUrl"`
	HandshakeTimeout time.Duration    `mapstructure:"handshakeTimeout"`
	WriteTimeout     time.Duration    `mapstructure:"writeTimeout"`
	PongWait         time.Duration    `mapstructure:"pongWait"`
	PingInterval     time.Duration    `mapstructure:"pingInterval"`
	MaxMessageSize   int64            `mapstructure:"maxMessageSize"`
	Verbose          bool             `mapstructure:"verbose"`
	Reconnect        ReconnectConfig  `mapstructure:"reconnect"`
	Heartbeat        HeartbeatConfig  `mapstructure:"heartbeat"`
	Credential       CredentialConfig `mapstructure:"credential"`
}

type ReconnectConfig struct {
	Attempts            int           `mapstructure:"attempts"`
	Delay               time.Duration `mapstructure:"delay"`
	DelayMax            time.Duration `mapstructure:"delayMax"`
	RandomizationFactor float64       `mapstructure:"randomizationFactor"`
}

// HeartbeatConfig drives the automatic presence heartbeat; a zero Interval disables it.
type HeartbeatConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

const (
	SourceStatic = "static"
	SourceEnv    = "env"
	SourceRedis  = "redis"
	SourceMySQL  = "mysql"
	SourceMongo  = "mongo"
)

type CredentialConfig struct {
	Source      string        `mapstructure:"source"`
	Token       string        `mapstructure:"token"`
	EnvVar      string        `mapstructure:"envVar"`
	UserID      string        `mapstructure:"userId"`
	ExpiryCheck bool          `mapstructure:"expiryCheck"`
	Leeway      time.Duration `mapstructure:"leeway"`
	Redis       RedisConfig   `mapstructure:"redis"`
	MySQL       MySQLConfig   `mapstructure:"mysql"`
	Mongo       MongoConfig   `mapstructure:"mongo"`
}

type RedisConfig struct {
	Server   string `mapstructure:"server"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

func Default() ClientConfig {
	return ClientConfig{
		ServerURL:        "ws://127.0.0.1:8080/ws",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PongWait:         60 * time.Second,
		PingInterval:     54 * time.Second,
		MaxMessageSize:   1 << 20,
		Reconnect: ReconnectConfig{
			Attempts:            5,
			Delay:               time.Second,
			DelayMax:            5 * time.Second,
			RandomizationFactor: 0.5,
		},
		Heartbeat: HeartbeatConfig{Interval: 30 * time.Second},
		Credential: CredentialConfig{
			Source:      SourceEnv,
			EnvVar:      "RTSDK_TOKEN",
			ExpiryCheck: true,
			Leeway:      30 * time.Second,
			Redis:       RedisConfig{Server: "127.0.0.1:6379"},
			Mongo:       MongoConfig{Database: "chat", Collection: "sessions"},
		},
	}
}

// SetDefaults registers Default() on v so that env-only configuration still finds every key.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("serverUrl", d.ServerURL)
	v.SetDefault("handshakeTimeout", d.HandshakeTimeout)
	v.SetDefault("writeTimeout", d.WriteTimeout)
	v.SetDefault("pongWait", d.PongWait)
	v.SetDefault("pingInterval", d.PingInterval)
	v.SetDefault("maxMessageSize", d.MaxMessageSize)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("reconnect.attempts", d.Reconnect.Attempts)
	v.SetDefault("reconnect.delay", d.Reconnect.Delay)
	v.SetDefault("reconnect.delayMax", d.Reconnect.DelayMax)
	v.SetDefault("reconnect.randomizationFactor", d.Reconnect.RandomizationFactor)
	v.SetDefault("heartbeat.interval", d.Heartbeat.Interval)
	v.SetDefault("credential.source", d.Credential.Source)
	v.SetDefault("credential.token", d.Credential.Token)
	v.SetDefault("credential.envVar", d.Credential.EnvVar)
	v.SetDefault("credential.userId", d.Credential.UserID)
	v.SetDefault("credential.expiryCheck", d.Credential.ExpiryCheck)
	v.SetDefault("credential.leeway", d.Credential.Leeway)
	v.SetDefault("credential.redis.server", d.Credential.Redis.Server)
	v.SetDefault("credential.redis.password", d.Credential.Redis.Password)
	v.SetDefault("credential.redis.db", d.Credential.Redis.DB)
	v.SetDefault("credential.redis.key", d.Credential.Redis.Key)
	v.SetDefault("credential.mysql.dsn", d.Credential.MySQL.DSN)
	v.SetDefault("credential.mongo.uri", d.Credential.Mongo.URI)
	v.SetDefault("credential.mongo.database", d.Credential.Mongo.Database)
	v.SetDefault("credential.mongo.collection", d.Credential.Mongo.Collection)
}

// NewViper returns a viper instance with defaults and RTSDK_* environment overrides
// (credential.redis.key -> RTSDK_CREDENTIAL_REDIS_KEY).
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (any format viper understands) over the defaults. An empty path uses defaults
// and environment only.
func Load(path string) (ClientConfig, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ClientConfig{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (ClientConfig, error) {
	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ClientConfig{}, errors.Wrap(err, "decode config")
	}
	return cfg, cfg.Validate()
}

func (c ClientConfig) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return errors.Wrapf(err, "invalid serverUrl %q", c.ServerURL)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.Errorf("serverUrl must use ws or wss, got %q", c.ServerURL)
	}
	if u.Host == "" {
		return errors.Errorf("serverUrl %q has no host", c.ServerURL)
	}
	if c.Reconnect.Attempts < 0 {
		return errors.New("reconnect.attempts must not be negative")
	}
	if c.Reconnect.Delay <= 0 {
		return errors.New("reconnect.delay must be positive")
	}
	if c.Reconnect.DelayMax < c.Reconnect.Delay {
		return errors.New("reconnect.delayMax must not be below reconnect.delay")
	}
	if c.Reconnect.RandomizationFactor < 0 || c.Reconnect.RandomizationFactor > 1 {
		return errors.New("reconnect.randomizationFactor must be within [0, 1]")
	}
	if c.Heartbeat.Interval < 0 {
		return errors.New("heartbeat.interval must not be negative")
	}
	if c.PongWait > 0 && c.PingInterval >= c.PongWait {
		return errors.New("pingInterval must be shorter than pongWait")
	}
	return c.Credential.Validate()
}

func (c CredentialConfig) Validate() error {
	switch c.Source {
	case SourceStatic:
		if c.Token == "" {
			return errors.New("credential.token is required for the static source")
		}
	case SourceEnv:
		if c.EnvVar == "" {
			return errors.New("credential.envVar is required for the env source")
		}
	case SourceRedis:
		if c.Redis.Server == "" || c.Redis.Key == "" {
			return errors.New("credential.redis.server and credential.redis.key are required")
		}
	case SourceMySQL:
		if c.MySQL.DSN == "" || c.UserID == "" {
			return errors.New("credential.mysql.dsn and credential.userId are required")
		}
	case SourceMongo:
		if c.Mongo.URI == "" || c.UserID == "" {
			return errors.New("credential.mongo.uri and credential.userId are required")
		}
	default:
		return errors.Errorf("unknown credential.source %q", c.Source)
	}
	return nil
}
