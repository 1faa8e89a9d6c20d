package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xiaogangfan/rocketmq/log"
	"gopkg.in/yaml.v3"
)

// default values
const (
	PORT                     = 11911
	CHAN_BUFFER_SIZE         = 1024 * 1
	DEFAULT_SHUTDOWN_MS      = 5000
	DEFAULT_HISTORY_DIR      = "raw_data"
	DEFAULT_ROW_OUTPUT_LIMIT = 100000
	DEFAULT_SNODE_NAME       = "snode-a"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigurationError names the offending field. It unwraps to ErrInvalidConfig.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfig
}

/**
 * Represents the configuration of a single snode.
 */

type Config struct {
	SnodeName  string   `json:"snode_name" yaml:"snode_name"`   // name this node registers under at the nnode
	NnodeAddrs []string `json:"nnode_addrs" yaml:"nnode_addrs"` // naming node addresses, seeded before anything else starts

	Server ServerConfig `json:"server" yaml:"server"`
	Client ClientConfig `json:"client" yaml:"client"`

	// one pool per request class
	SendPool           PoolConfig `json:"send_pool" yaml:"send_pool"`
	PullPool           PoolConfig `json:"pull_pool" yaml:"pull_pool"`
	HeartbeatPool      PoolConfig `json:"heartbeat_pool" yaml:"heartbeat_pool"`
	ConsumerManagePool PoolConfig `json:"consumer_manage_pool" yaml:"consumer_manage_pool"`

	Housekeeping HousekeepingConfig `json:"housekeeping" yaml:"housekeeping"`
	Store        StoreConfig        `json:"store" yaml:"store"`

	// scheduled maintenance
	PersistOffsetIntervalMs int `json:"persist_offset_interval_ms" yaml:"persist_offset_interval_ms"`
	FetchEnodeIntervalMs    int `json:"fetch_enode_interval_ms" yaml:"fetch_enode_interval_ms"`
	RegisterIntervalMs      int `json:"register_interval_ms" yaml:"register_interval_ms"`
	PoolStatsIntervalMs     int `json:"pool_stats_interval_ms" yaml:"pool_stats_interval_ms"`

	ShutdownTimeoutMs int    `json:"shutdown_timeout_ms" yaml:"shutdown_timeout_ms"` // bound on draining all pools
	MetricsAddr       string `json:"metrics_addr" yaml:"metrics_addr"`               // prometheus endpoint, disabled if empty

	//Data output variables
	Measure        bool   `json:"measure" yaml:"measure"`                   // record per-dispatch latency rows
	CsvPrefix      string `json:"csv_prefix" yaml:"csv_prefix"`             //configurable prefix for output csv data files
	RowOutputLimit int    `json:"row_output_limit" yaml:"row_output_limit"` //configurable paramater for limit on number of output rows in csv files
	HistoryDir     string `json:"history_dir" yaml:"history_dir"`           //configurable history file dir

	ClusterMembership ClusterMembershipConfig `json:"cluster_membership" yaml:"cluster_membership"`
}

func MakeDefaultConfig() *Config {
	config := new(Config)
	config.SnodeName = DEFAULT_SNODE_NAME
	config.NnodeAddrs = []string{}
	config.Server = *NewDefaultServerConfig()
	config.Client = *NewDefaultClientConfig()
	config.SendPool = NewDefaultPoolConfig(PoolSend)
	config.PullPool = NewDefaultPoolConfig(PoolPull)
	config.HeartbeatPool = NewDefaultPoolConfig(PoolHeartbeat)
	config.ConsumerManagePool = NewDefaultPoolConfig(PoolConsumerManage)
	config.Housekeeping = NewDefaultHousekeepingConfig()
	config.Store = *NewDefaultStoreConfig()
	config.PersistOffsetIntervalMs = 5000
	config.FetchEnodeIntervalMs = 30000
	config.RegisterIntervalMs = 30000
	config.PoolStatsIntervalMs = 1000
	config.ShutdownTimeoutMs = DEFAULT_SHUTDOWN_MS
	config.HistoryDir = DEFAULT_HISTORY_DIR
	config.CsvPrefix = "snode"
	config.RowOutputLimit = DEFAULT_ROW_OUTPUT_LIMIT
	config.ClusterMembership = *MakeDefaultClusterMembershipConfig()
	return config
}

func LoadConfigFromFile(configFile string) *Config {
	cfg, err := LoadFile(configFile)
	if err != nil {
		log.Fatal(err)
		return nil
	}
	return cfg
}

// LoadFile starts from defaults and overlays the file. The format follows the file extension.
func LoadFile(configFile string) (*Config, error) {
	// start from default, make sure nothing is missed
	cfg := MakeDefaultConfig()
	if err := cfg.load(configFile); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns a *ConfigurationError for the first bad field it finds.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Client.Validate(); err != nil {
		return err
	}
	// each pool is looked up by its class name, so a renamed or shared name leaves a class without a pool
	for _, p := range []struct {
		key   string
		class string
		cfg   PoolConfig
	}{
		{"send_pool", PoolSend, c.SendPool},
		{"pull_pool", PoolPull, c.PullPool},
		{"heartbeat_pool", PoolHeartbeat, c.HeartbeatPool},
		{"consumer_manage_pool", PoolConsumerManage, c.ConsumerManagePool},
	} {
		if err := p.cfg.Validate(); err != nil {
			return err
		}
		if p.cfg.Name != p.class {
			return &ConfigurationError{Field: p.key + ".name", Reason: "must be " + p.class}
		}
	}
	if c.Housekeeping.IntervalMs <= 0 {
		return &ConfigurationError{Field: "housekeeping.interval_ms", Reason: "must be positive"}
	}
	if c.Housekeeping.ChannelExpiredMs <= 0 {
		return &ConfigurationError{Field: "housekeeping.channel_expired_ms", Reason: "must be positive"}
	}
	if c.ShutdownTimeoutMs <= 0 {
		return &ConfigurationError{Field: "shutdown_timeout_ms", Reason: "must be positive"}
	}
	if c.PersistOffsetIntervalMs <= 0 || c.FetchEnodeIntervalMs <= 0 || c.RegisterIntervalMs <= 0 || c.PoolStatsIntervalMs <= 0 {
		return &ConfigurationError{Field: "scheduled intervals", Reason: "must be positive"}
	}
	for _, addr := range c.NnodeAddrs {
		if strings.TrimSpace(addr) == "" {
			return &ConfigurationError{Field: "nnode_addrs", Reason: "contains an empty address"}
		}
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Measure && c.RowOutputLimit <= 0 {
		return &ConfigurationError{Field: "row_output_limit", Reason: "must be positive when measure is on"}
	}
	return nil
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// String is implemented to print the config
func (c *Config) String() string {
	config, err := json.Marshal(c)
	if err != nil {
		log.Errorln(err)
	}
	return string(config)
}

// load configurations from config file in JSON or YAML format
func (c *Config) load(configFile string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(configFile)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format: %s", ext)
	}

	c.ClusterMembership.Init()

	return nil
}

// Save save configurations to file in JSON format
func (c *Config) Save(configFile string) error {
	file, err := os.Create(configFile)
	if err != nil {
		return err
	}
	defer file.Close()
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(c)
}
