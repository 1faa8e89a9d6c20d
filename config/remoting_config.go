package config

import "time"

type ServerConfig struct {
	ListenPort       int `json:"listen_port" yaml:"listen_port"`
	ChanBufferSize   int `json:"chan_buffer_size" yaml:"chan_buffer_size"`     // outbound replies buffered per connection
	IdleTimeoutMs    int `json:"idle_timeout_ms" yaml:"idle_timeout_ms"`       // connection reported idle after this long without a request, 0 disables
	HandlerTimeoutMs int `json:"handler_timeout_ms" yaml:"handler_timeout_ms"` // deadline put on each request context
}

func NewDefaultServerConfig() *ServerConfig {
	config := new(ServerConfig)
	config.ListenPort = PORT
	config.ChanBufferSize = CHAN_BUFFER_SIZE
	config.IdleTimeoutMs = 120000
	config.HandlerTimeoutMs = 3000
	return config
}

func (c *ServerConfig) Validate() error {
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return &ConfigurationError{Field: "server.listen_port", Reason: "must be in [0, 65535], 0 picks a free port"}
	}
	if c.ChanBufferSize <= 0 {
		return &ConfigurationError{Field: "server.chan_buffer_size", Reason: "must be positive"}
	}
	if c.IdleTimeoutMs < 0 {
		return &ConfigurationError{Field: "server.idle_timeout_ms", Reason: "must be non-negative, 0 disables"}
	}
	if c.HandlerTimeoutMs < 0 {
		return &ConfigurationError{Field: "server.handler_timeout_ms", Reason: "must be non-negative, 0 disables"}
	}
	return nil
}

func (c *ServerConfig) HandlerTimeout() time.Duration {
	return time.Duration(c.HandlerTimeoutMs) * time.Millisecond
}

type ClientConfig struct {
	DialTimeoutMs    int `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
	DialAttempts     int `json:"dial_attempts" yaml:"dial_attempts"`
	RequestTimeoutMs int `json:"request_timeout_ms" yaml:"request_timeout_ms"` // timeout for one upstream round trip
	MaxInFlight      int `json:"max_in_flight" yaml:"max_in_flight"`           // outstanding upstream requests across all connections
}

func NewDefaultClientConfig() *ClientConfig {
	config := new(ClientConfig)
	config.DialTimeoutMs = 1000
	config.DialAttempts = 3
	config.RequestTimeoutMs = 3000
	config.MaxInFlight = 1024
	return config
}

func (c *ClientConfig) Validate() error {
	if c.DialTimeoutMs <= 0 {
		return &ConfigurationError{Field: "client.dial_timeout_ms", Reason: "must be positive"}
	}
	if c.DialAttempts <= 0 {
		return &ConfigurationError{Field: "client.dial_attempts", Reason: "must be positive"}
	}
	if c.RequestTimeoutMs <= 0 {
		return &ConfigurationError{Field: "client.request_timeout_ms", Reason: "must be positive"}
	}
	if c.MaxInFlight <= 0 {
		return &ConfigurationError{Field: "client.max_in_flight", Reason: "must be positive"}
	}
	return nil
}

func (c *ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c *ClientConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutMs) * time.Millisecond
}
