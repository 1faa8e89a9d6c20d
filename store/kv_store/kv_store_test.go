package kv_store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/store"
	"github.com/xiaogangfan/rocketmq/store/kv_store/kv_table"
)

func setupStore(t *testing.T, engine string) (*KVStore, *config.StoreConfig) {
	scfg := config.NewDefaultStoreConfig()
	scfg.DBDir = t.TempDir()
	scfg.StoreEngine = engine
	return NewStore(*ids.GetIDFromString("1.1"), scfg), scfg
}

func TestKVStore_InitializeReopensTables(t *testing.T) {
	s, scfg := setupStore(t, config.EngineLevelDB)
	require.NoError(t, s.Initialize())
	assert.Equal(t, []string{TablesTableName}, s.GetTableList())

	created, err := s.CreateTable("consumer_offsets", uuid.New())
	require.NoError(t, err)
	assert.True(t, created)

	tbl := s.GetTableByName("consumer_offsets")
	require.NotNil(t, tbl)
	require.NoError(t, tbl.Write([]store.KVItem{{Key: []byte("k"), Value: []byte("v")}}))
	require.NoError(t, s.Close())

	s = NewStore(*ids.GetIDFromString("1.1"), scfg)
	require.NoError(t, s.Initialize())
	defer s.Close()
	assert.Equal(t, []string{"consumer_offsets", TablesTableName}, s.GetTableList())

	items, err := s.GetTableByName("consumer_offsets").Read(&kv_table.ReadOp{ReadMode: kv_table.POINT, StartKey: []byte("k")})
	require.NoError(t, err)
	assert.Equal(t, "v", string(items[0].Value))
}

func TestKVStore_CreateTableTwice(t *testing.T) {
	s, _ := setupStore(t, config.EngineInMemory)
	require.NoError(t, s.Initialize())
	defer s.Close()

	created, err := s.CreateTable("t1", uuid.New())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateTable("t1", uuid.New())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestKVStore_OpenTable(t *testing.T) {
	s, _ := setupStore(t, config.EngineInMemory)
	require.NoError(t, s.Initialize())
	defer s.Close()

	a, err := s.OpenTable("t1")
	require.NoError(t, err)
	b, err := s.OpenTable("t1")
	require.NoError(t, err)
	assert.Equal(t, a.GetUUID(), b.GetUUID())
	assert.Nil(t, s.GetTableByName("missing"))
}

func TestKVStore_UnknownEngine(t *testing.T) {
	s, _ := setupStore(t, "rocksdb")
	assert.ErrorIs(t, s.Initialize(), store.ErrUnknownEngine)
}
