package redisstream

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Config for the Redis Streams transport.
type Config struct {
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	StreamPrefix string
	Consumer     string
	BatchSize    int
	Block        time.Duration
	AutoCreate   bool
	StartID      string

	MaxLenApprox int64
	DeadLetter   string

	// Pending entry recovery for consumers that died mid-session.
	ClaimMinIdle  time.Duration
	ClaimInterval time.Duration
	ClaimBatch    int
}

// Defaults returns a Config suited to a local Redis.
func Defaults() Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "local"
	}
	return Config{
		Addr:          "127.0.0.1:6379",
		StreamPrefix:  "appbus:",
		Consumer:      fmt.Sprintf("appbus-%s-%d", hostname, os.Getpid()),
		BatchSize:     64,
		Block:         2 * time.Second,
		AutoCreate:    true,
		StartID:       "$",
		ClaimBatch:    64,
		ClaimInterval: 15 * time.Second,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr required"))
	}
	if c.Consumer == "" {
		errs = append(errs, errors.New("consumer required"))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be >= 1, got %d", c.BatchSize))
	}
	if c.Block <= 0 {
		errs = append(errs, fmt.Errorf("block must be > 0, got %v", c.Block))
	}
	if c.StartID == "" {
		errs = append(errs, errors.New("start_id required"))
	}
	if c.ClaimMinIdle > 0 && c.ClaimInterval <= 0 {
		errs = append(errs, errors.New("claim_interval must be > 0 if claim_min_idle is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("redisstream config: %w", errors.Join(errs...))
	}
	return nil
}

// ToMap converts Config to the generic map accepted by the transport factory.
func (c Config) ToMap() map[string]any {
	return map[string]any{
		"addr":            c.Addr,
		"username":        c.Username,
		"password":        c.Password,
		"db":              c.DB,
		"tls":             c.TLS,
		"tls_server_name": c.TLSServerName,
		"stream_prefix":   c.StreamPrefix,
		"consumer":        c.Consumer,
		"batch_size":      c.BatchSize,
		"block":           c.Block,
		"auto_create":     c.AutoCreate,
		"start_id":        c.StartID,
		"max_len_approx":  c.MaxLenApprox,
		"dead_letter":     c.DeadLetter,
		"claim_min_idle":  c.ClaimMinIdle,
		"claim_interval":  c.ClaimInterval,
		"claim_batch":     c.ClaimBatch,
	}
}

// ConfigFromMap overlays m on Defaults. Unknown or mistyped keys are ignored.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	str := func(k string, dst *string, allowEmpty bool) {
		if v, ok := m[k].(string); ok && (allowEmpty || v != "") {
			*dst = v
		}
	}
	num := func(k string) (int64, bool) {
		switch v := m[k].(type) {
		case int:
			return int64(v), true
		case int64:
			return v, true
		case float64:
			return int64(v), true
		}
		return 0, false
	}
	dur := func(k string) (time.Duration, bool) {
		switch v := m[k].(type) {
		case time.Duration:
			return v, true
		case string:
			d, err := time.ParseDuration(v)
			return d, err == nil
		}
		return 0, false
	}
	flag := func(k string, dst *bool) {
		if v, ok := m[k].(bool); ok {
			*dst = v
		}
	}

	str("addr", &c.Addr, false)
	str("username", &c.Username, true)
	str("password", &c.Password, true)
	str("tls_server_name", &c.TLSServerName, true)
	str("stream_prefix", &c.StreamPrefix, true)
	str("consumer", &c.Consumer, false)
	str("start_id", &c.StartID, false)
	str("dead_letter", &c.DeadLetter, true)
	flag("tls", &c.TLS)
	flag("auto_create", &c.AutoCreate)

	if v, ok := num("db"); ok {
		c.DB = int(v)
	}
	if v, ok := num("batch_size"); ok && v > 0 {
		c.BatchSize = int(v)
	}
	if v, ok := num("max_len_approx"); ok && v > 0 {
		c.MaxLenApprox = v
	}
	if v, ok := num("claim_batch"); ok && v > 0 {
		c.ClaimBatch = int(v)
	}
	if v, ok := dur("block"); ok && v > 0 {
		c.Block = v
	}
	if v, ok := dur("claim_min_idle"); ok {
		c.ClaimMinIdle = v
	}
	if v, ok := dur("claim_interval"); ok && v > 0 {
		c.ClaimInterval = v
	}
	return c
}
