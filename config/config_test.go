package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaogangfan/rocketmq/ids"
)

func writeTemp(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := MakeDefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.HeartbeatPool.AllowCoreTimeout)
	assert.Equal(t, 60000, cfg.HeartbeatPool.IdleTimeoutMs)
	assert.Equal(t, 3000, cfg.SendPool.IdleTimeoutMs)
	assert.Equal(t, 120000, cfg.Housekeeping.ChannelExpiredMs)
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := writeTemp(t, "snode.yaml", `
snode_name: snode-b
nnode_addrs: ["10.0.0.1:9876", "10.0.0.2:9876"]
pull_pool:
  name: pull
  core_size: 4
  max_size: 8
  queue_capacity: 16
  idle_timeout_ms: 1000
cluster_membership:
  ssh_address:
    "1.1": "10.0.0.5:22"
  usr_name:
    "1.1": "ubuntu"
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "snode-b", cfg.SnodeName)
	assert.Equal(t, []string{"10.0.0.1:9876", "10.0.0.2:9876"}, cfg.NnodeAddrs)
	assert.Equal(t, 8, cfg.PullPool.MaxSize)
	// untouched sections keep defaults
	assert.Equal(t, NewDefaultPoolConfig(PoolSend), cfg.SendPool)

	ni, ok := cfg.ClusterMembership.GetNode(*ids.NewID(1, 1))
	require.True(t, ok)
	assert.Equal(t, "ubuntu", ni.Usr_name)
	assert.Equal(t, "10.0.0.5:22", ni.SshAddr)
}

func TestLoadJSONAndSaveRoundTrip(t *testing.T) {
	path := writeTemp(t, "snode.json", `{"snode_name": "snode-c", "shutdown_timeout_ms": 250}`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.ShutdownTimeoutMs)

	out := filepath.Join(t.TempDir(), "saved.json")
	require.NoError(t, cfg.Save(out))
	again, err := LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.SnodeName, again.SnodeName)
	assert.Equal(t, cfg.ShutdownTimeoutMs, again.ShutdownTimeoutMs)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeTemp(t, "snode.toml", `snode_name = "x"`)
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestValidateReturnsConfigurationError(t *testing.T) {
	cases := map[string]func(c *Config){
		"max below core":   func(c *Config) { c.SendPool.MaxSize = 1; c.SendPool.CoreSize = 2 },
		"bad port":         func(c *Config) { c.Server.ListenPort = -1 },
		"unknown engine":   func(c *Config) { c.Store.StoreEngine = "rocks" },
		"empty nnode":      func(c *Config) { c.NnodeAddrs = []string{" "} },
		"zero expiry":      func(c *Config) { c.Housekeeping.ChannelExpiredMs = 0 },
		"zero shutdown":    func(c *Config) { c.ShutdownTimeoutMs = 0 },
		"tiny btree":       func(c *Config) { c.Store.StoreEngine = EngineInMemory; c.Store.BTreeDegree = 1 },
		"unnamed pool":     func(c *Config) { c.PullPool.Name = "" },
		"negative queue":   func(c *Config) { c.HeartbeatPool.QueueCapacity = -1 },
		"zero stats tick":  func(c *Config) { c.PoolStatsIntervalMs = 0 },
		"shared pool name": func(c *Config) { c.ConsumerManagePool.Name = PoolPull },
		"renamed pool":     func(c *Config) { c.SendPool.Name = "producer" },
		"negative buffer":  func(c *Config) { c.Server.ChanBufferSize = -1 },
		"zero buffer":      func(c *Config) { c.Server.ChanBufferSize = 0 },
		"negative idle":    func(c *Config) { c.Server.IdleTimeoutMs = -1 },
		"zero attempts":    func(c *Config) { c.Client.DialAttempts = 0 },
		"zero in flight":   func(c *Config) { c.Client.MaxInFlight = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := MakeDefaultConfig()
			mutate(cfg)
			err := cfg.Validate()
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestInvalidFileFailsLoad(t *testing.T) {
	path := writeTemp(t, "snode.json", `{"send_pool": {"name": "send", "core_size": 5, "max_size": 1, "idle_timeout_ms": 10}}`)
	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
