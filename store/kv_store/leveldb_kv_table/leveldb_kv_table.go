package leveldb_kv_table

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/store"
	"github.com/xiaogangfan/rocketmq/store/kv_store/kv_table"
)

const slowOpMs = 50

// LevelDBKVTable keeps one table in its own LevelDB directory
type LevelDBKVTable struct {
	ids.ID // must have an identity
	store.BaseTable
	leveldb *leveldb.DB
}

func NewLevelDBTable(identity ids.ID, tableLocation string, name string, id uuid.UUID) (*LevelDBKVTable, error) {
	log.Infof("Creating LevelDB KV-table %v at node %v", name, identity)
	lvlDBName := filepath.Join(tableLocation, identity.String(), id.String(), name)
	lvldb, err := leveldb.OpenFile(lvlDBName, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create levelDB storage for kv_table %s: %w", name, err)
	}
	return &LevelDBKVTable{ID: identity, BaseTable: store.NewBaseTable(name, id), leveldb: lvldb}, nil
}

func (tbl *LevelDBKVTable) Close() error {
	return tbl.leveldb.Close()
}

// Size is not tracked for on-disk tables
func (tbl *LevelDBKVTable) Size() int {
	return 0
}

func (tbl *LevelDBKVTable) Read(readOp *kv_table.ReadOp) ([]store.KVItem, error) {
	log.Debugf("Read against LevelDB on node %v. ReadMode=%v", tbl.ID, readOp.ReadMode)
	s := time.Now()
	defer func() {
		if took := time.Since(s).Milliseconds(); took > slowOpMs {
			log.Warningf("Node %v experienced a long %v read on table %s. Read took %d ms", tbl.ID, readOp.ReadMode, tbl.GetTableName(), took)
		}
	}()

	switch readOp.ReadMode {
	case kv_table.POINT:
		v, err := tbl.leveldb.Get(readOp.StartKey, nil)
		if err != nil {
			if errors.Is(err, leveldb.ErrNotFound) {
				return nil, store.ErrNotFound
			}
			log.Errorln(err)
			return nil, store.ErrStoreGetError
		}
		return []store.KVItem{{Key: readOp.StartKey, Value: v}}, nil
	case kv_table.RANGE:
		return tbl.collect(&util.Range{Start: readOp.StartKey, Limit: readOp.EndKey})
	case kv_table.PREFIX:
		return tbl.collect(util.BytesPrefix(readOp.StartKey))
	}
	return nil, store.ErrStoreGetError
}

func (tbl *LevelDBKVTable) collect(r *util.Range) ([]store.KVItem, error) {
	kvItems := make([]store.KVItem, 0, 10)
	iter := tbl.leveldb.NewIterator(r, nil)
	defer iter.Release()
	for iter.Next() {
		// iterator buffers are reused
		k := make([]byte, len(iter.Key()))
		v := make([]byte, len(iter.Value()))
		copy(k, iter.Key())
		copy(v, iter.Value())
		kvItems = append(kvItems, store.KVItem{Key: k, Value: v})
	}
	if err := iter.Error(); err != nil {
		log.Errorln(err)
		return nil, store.ErrStoreGetError
	}
	return kvItems, nil
}

func (tbl *LevelDBKVTable) Write(items []store.KVItem) error {
	log.Debugf("Node %v writing %d items to LevelDB table %s", tbl.ID, len(items), tbl.GetTableName())
	batch := new(leveldb.Batch)
	for _, item := range items {
		if item.Value == nil {
			batch.Delete(item.Key)
		} else {
			batch.Put(item.Key, item.Value)
		}
	}
	if err := tbl.leveldb.Write(batch, nil); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorePutError, err)
	}
	return nil
}

func (tbl *LevelDBKVTable) String() string {
	return fmt.Sprintf("LevelDB KVTable on node %v. TableID: %v", tbl.ID, tbl.GetUUID())
}
