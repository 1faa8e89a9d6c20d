package inmemory_kv_table

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/store"
	"github.com/xiaogangfan/rocketmq/store/kv_store/kv_table"
)

// InMemoryTable keeps the table in a B-tree in RAM without persistence
type InMemoryTable struct {
	ids.ID // must have an identity
	store.BaseTable
	sync.RWMutex
	btree *btree.BTreeG[store.KVItem]
}

func NewInMemoryTable(identity ids.ID, scfg *config.StoreConfig, name string, id uuid.UUID) *InMemoryTable {
	log.Infof("Creating In-Memory KV-table %v at node %v", name, identity)
	return &InMemoryTable{
		ID:        identity,
		BaseTable: store.NewBaseTable(name, id),
		btree: btree.NewG[store.KVItem](scfg.BTreeDegree, func(itemA, itemB store.KVItem) bool {
			return bytes.Compare(itemA.Key, itemB.Key) < 0
		}),
	}
}

func (tbl *InMemoryTable) Close() error {
	tbl.Lock()
	defer tbl.Unlock()
	tbl.btree.Clear(false)
	return nil
}

func (tbl *InMemoryTable) Size() int {
	tbl.RLock()
	defer tbl.RUnlock()
	return tbl.btree.Len()
}

func (tbl *InMemoryTable) Read(readOp *kv_table.ReadOp) ([]store.KVItem, error) {
	tbl.RLock()
	defer tbl.RUnlock()
	switch readOp.ReadMode {
	case kv_table.POINT:
		item, found := tbl.btree.Get(store.KVItem{Key: readOp.StartKey})
		if !found {
			return nil, store.ErrNotFound
		}
		return []store.KVItem{item}, nil
	case kv_table.RANGE:
		kvItems := make([]store.KVItem, 0, 10)
		collect := func(item store.KVItem) bool {
			kvItems = append(kvItems, item)
			return true
		}
		if readOp.EndKey == nil {
			tbl.btree.AscendGreaterOrEqual(store.KVItem{Key: readOp.StartKey}, collect)
		} else {
			tbl.btree.AscendRange(store.KVItem{Key: readOp.StartKey}, store.KVItem{Key: readOp.EndKey}, collect)
		}
		return kvItems, nil
	case kv_table.PREFIX:
		kvItems := make([]store.KVItem, 0, 10)
		tbl.btree.AscendGreaterOrEqual(store.KVItem{Key: readOp.StartKey}, func(item store.KVItem) bool {
			if !bytes.HasPrefix(item.Key, readOp.StartKey) {
				return false
			}
			kvItems = append(kvItems, item)
			return true
		})
		return kvItems, nil
	}
	return nil, store.ErrStoreGetError
}

func (tbl *InMemoryTable) Write(items []store.KVItem) error {
	tbl.Lock()
	defer tbl.Unlock()
	for _, item := range items {
		if item.Value == nil {
			tbl.btree.Delete(item)
		} else {
			tbl.btree.ReplaceOrInsert(item)
		}
	}
	return nil
}

func (tbl *InMemoryTable) String() string {
	return fmt.Sprintf("In-Memory KVTable on node %v. TableID: %v", tbl.ID, tbl.GetUUID())
}
