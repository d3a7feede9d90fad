package rewind

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

type (
	// RedisArchiver stores exported History in Redis or Valkey as a list of
	// JSON records per archive name
	RedisArchiver struct {
		client        *redis.Client
		prefix        string
		putRecordsLua *redis.Script
		getRecordsLua *redis.Script
	}

	RedisConfig struct {
		Addr     string `env:"REWIND_REDIS_ADDR"`
		Password string `env:"REWIND_REDIS_PASSWORD"`
		Prefix   string `env:"REWIND_REDIS_PREFIX"`
		DB       int    `env:"REWIND_REDIS_DB"`
	}
)

const (
	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisPrefix   = "rewind"
	DefaultRedisDB       = 0

	RedisConnectTimeout = 5 * time.Second

	recordsSuffix = ":records"
	countSuffix   = ":count"
)

// ErrUnexpectedLuaResult indicates a Lua script returned an unknown shape
var ErrUnexpectedLuaResult = errors.New("unexpected result from Lua script")

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   DefaultRedisEndpoint,
		Prefix: DefaultRedisPrefix,
		DB:     DefaultRedisDB,
	}
}

// RedisConfigFromEnv returns DefaultRedisConfig overlaid with any
// REWIND_REDIS_* variables present in the environment
func RedisConfigFromEnv() (RedisConfig, error) {
	cfg := DefaultRedisConfig()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// NewRedisArchiver connects to Redis and verifies the connection
func NewRedisArchiver(
	ctx context.Context, cfg RedisConfig,
) (*RedisArchiver, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, RedisConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisArchiver{
		client:        client,
		prefix:        cfg.Prefix,
		putRecordsLua: redis.NewScript(luaPutRecords),
		getRecordsLua: redis.NewScript(luaGetRecords),
	}, nil
}

func (a *RedisArchiver) Close() error {
	return a.client.Close()
}

func (a *RedisArchiver) Put(
	ctx context.Context, name string, records []Record,
) error {
	if name == "" {
		return ErrArchiveNameRequired
	}

	args := make([]any, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		args = append(args, string(data))
	}

	return a.putRecordsLua.Run(ctx, a.client, a.keys(name), args...).Err()
}

func (a *RedisArchiver) Get(ctx context.Context, name string) ([]Record, error) {
	if name == "" {
		return nil, ErrArchiveNameRequired
	}

	result, err := a.getRecordsLua.Run(ctx, a.client, a.keys(name)).Result()
	if err != nil {
		return nil, err
	}

	res, ok := result.([]any)
	if !ok || len(res) == 0 {
		return nil, ErrUnexpectedLuaResult
	}
	if found, _ := res[0].(int64); found == 0 {
		return nil, ErrArchiveNotFound
	}
	if len(res) < 2 {
		return nil, ErrUnexpectedLuaResult
	}

	raw, ok := res[1].([]any)
	if !ok {
		return nil, ErrUnexpectedLuaResult
	}
	return a.unmarshalRecords(raw)
}

func (a *RedisArchiver) Delete(ctx context.Context, name string) error {
	if name == "" {
		return ErrArchiveNameRequired
	}
	return a.client.Del(ctx, a.keys(name)...).Err()
}

func (a *RedisArchiver) keys(name string) []string {
	base := fmt.Sprintf("%s:%s", a.prefix, name)
	return []string{base + recordsSuffix, base + countSuffix}
}

func (a *RedisArchiver) unmarshalRecords(data []any) ([]Record, error) {
	records := make([]Record, 0, len(data))
	for _, item := range data {
		str, ok := item.(string)
		if !ok {
			return nil, ErrUnexpectedLuaResult
		}
		var rec Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
