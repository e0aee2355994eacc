package logger

import (
	"encoding/json"
	"errors"

	"github.com/go-redis/redis"
)

// Forwarder ships error entries to a remote collector in production builds.
// Entries are already redacted; implementations authenticate and encrypt
// their own channel.
type Forwarder interface {
	Forward(entry LogEntry) error
}

// ForwarderFunc adapts a function to Forwarder
type ForwarderFunc func(entry LogEntry) error

func (f ForwarderFunc) Forward(entry LogEntry) error {
	return f(entry)
}

// DefaultForwardListLength caps the Redis list used by RedisForwarder
const DefaultForwardListLength = 1000

// RedisForwarder pushes entries as JSON onto a capped Redis list, newest first.
type RedisForwarder struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisForwarder creates a forwarder writing to key. maxLen <= 0 uses
// DefaultForwardListLength.
func NewRedisForwarder(client *redis.Client, key string, maxLen int64) *RedisForwarder {
	if key == "" {
		key = "witness:logs"
	}
	if maxLen <= 0 {
		maxLen = DefaultForwardListLength
	}
	return &RedisForwarder{client: client, key: key, maxLen: maxLen}
}

// Forward implements Forwarder
func (f *RedisForwarder) Forward(entry LogEntry) error {
	if f.client == nil {
		return errors.New("redis forwarder has no client")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := f.client.TxPipeline()
	pipe.LPush(f.key, data)
	pipe.LTrim(f.key, 0, f.maxLen-1)
	_, err = pipe.Exec()
	return err
}

// Key returns the Redis list key
func (f *RedisForwarder) Key() string {
	return f.key
}
