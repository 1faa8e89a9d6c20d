package config

import "time"

// pool names, one per request class
const (
	PoolSend           = "send"
	PoolPull           = "pull"
	PoolHeartbeat      = "heartbeat"
	PoolConsumerManage = "consumer-manage"
)

type PoolConfig struct {
	Name             string `json:"name" yaml:"name"`
	CoreSize         int    `json:"core_size" yaml:"core_size"`
	MaxSize          int    `json:"max_size" yaml:"max_size"`
	QueueCapacity    int    `json:"queue_capacity" yaml:"queue_capacity"`
	IdleTimeoutMs    int    `json:"idle_timeout_ms" yaml:"idle_timeout_ms"`
	AllowCoreTimeout bool   `json:"allow_core_timeout" yaml:"allow_core_timeout"` // core workers also expire when idle
}

// NewDefaultPoolConfig mirrors the sizing of the request class. Heartbeats are bursty and cheap, so their
// workers expire after a minute even below core size.
func NewDefaultPoolConfig(name string) PoolConfig {
	switch name {
	case PoolHeartbeat:
		return PoolConfig{Name: name, CoreSize: 1, MaxSize: 2, QueueCapacity: 50000, IdleTimeoutMs: 60000, AllowCoreTimeout: true}
	default:
		return PoolConfig{Name: name, CoreSize: 10, MaxSize: 10, QueueCapacity: 10000, IdleTimeoutMs: 3000}
	}
}

func (p PoolConfig) IdleTimeout() time.Duration {
	return time.Duration(p.IdleTimeoutMs) * time.Millisecond
}

func (p PoolConfig) Validate() error {
	field := p.Name + "_pool"
	if p.Name == "" {
		return &ConfigurationError{Field: "pool.name", Reason: "must not be empty"}
	}
	if p.CoreSize < 0 {
		return &ConfigurationError{Field: field + ".core_size", Reason: "must be non-negative"}
	}
	if p.MaxSize <= 0 || p.MaxSize < p.CoreSize {
		return &ConfigurationError{Field: field + ".max_size", Reason: "must be positive and at least core_size"}
	}
	if p.QueueCapacity < 0 {
		return &ConfigurationError{Field: field + ".queue_capacity", Reason: "must be non-negative"}
	}
	if p.IdleTimeoutMs <= 0 {
		return &ConfigurationError{Field: field + ".idle_timeout_ms", Reason: "must be positive"}
	}
	return nil
}
