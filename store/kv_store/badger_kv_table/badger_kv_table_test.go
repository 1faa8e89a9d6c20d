package badgerdb_kv_table

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

func setupBadgerTable(t *testing.T, scfg *config.StoreConfig, id uuid.UUID) *BadgerKVTable {
	tbl, err := NewBadgerDBTable(*ids.GetIDFromString("1.1"), scfg, "testtbl", id)
	require.NoError(t, err)
	return tbl
}

func TestInMemoryBadger(t *testing.T) {
	scfg := config.NewDefaultStoreConfig()
	scfg.StoreEngine = config.EngineBadgerDB
	scfg.BadgerDBInMemory = true
	tbl := setupBadgerTable(t, scfg, uuid.New())
	defer tbl.Close()

	require.NoError(t, tbl.Write([]store.KVItem{
		{Key: []byte("a1"), Value: []byte("1")},
		{Key: []byte("a2"), Value: []byte("2")},
		{Key: []byte("b1"), Value: []byte("3")},
	}))

	items, err := tbl.Read(&kv_table.ReadOp{ReadMode: kv_table.PREFIX, StartKey: []byte("a")})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = tbl.Read(&kv_table.ReadOp{ReadMode: kv_table.RANGE, StartKey: []byte("a2"), EndKey: []byte("b1")})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2", string(items[0].Value))

	_, err = tbl.Read(&kv_table.ReadOp{ReadMode: kv_table.POINT, StartKey: []byte("zz")})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOnDiskBadgerPersists(t *testing.T) {
	scfg := config.NewDefaultStoreConfig()
	scfg.StoreEngine = config.EngineBadgerDB
	scfg.DBDir = t.TempDir()
	scfg.BadgerDBValueLogSize = 1 << 20
	id := uuid.New()

	tbl := setupBadgerTable(t, scfg, id)
	require.NoError(t, tbl.Write([]store.KVItem{{Key: []byte("k"), Value: []byte("v")}}))
	require.NoError(t, tbl.Close())

	tbl = setupBadgerTable(t, scfg, id)
	defer tbl.Close()
	items, err := tbl.Read(&kv_table.ReadOp{ReadMode: kv_table.POINT, StartKey: []byte("k")})
	require.NoError(t, err)
	assert.Equal(t, "v", string(items[0].Value))

	require.NoError(t, tbl.Write([]store.KVItem{{Key: []byte("k")}}))
	_, err = tbl.Read(&kv_table.ReadOp{ReadMode: kv_table.POINT, StartKey: []byte("k")})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
