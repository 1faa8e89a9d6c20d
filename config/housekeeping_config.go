package config

type HousekeepingConfig struct {
	IntervalMs       int `json:"interval_ms" yaml:"interval_ms"`               // interval between sweeps of expired channels
	ChannelExpiredMs int `json:"channel_expired_ms" yaml:"channel_expired_ms"` // a client channel without heartbeat for this long is dropped
}

func NewDefaultHousekeepingConfig() HousekeepingConfig {
	return HousekeepingConfig{
		IntervalMs:       10000,
		ChannelExpiredMs: 120000,
	}
}
