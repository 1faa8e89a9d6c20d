package badgerdb_kv_table

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/store"
	"github.com/xiaogangfan/rocketmq/store/kv_store/kv_table"
)

type BadgerKVTable struct {
	ids.ID // must have an identity
	store.BaseTable
	badgerdb *badger.DB
}

func NewBadgerDBTable(identity ids.ID, scfg *config.StoreConfig, name string, id uuid.UUID) (*BadgerKVTable, error) {
	log.Infof("Creating BadgerDB KV-table %v at node %v", name, identity)
	var opts badger.Options
	if scfg.BadgerDBInMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dbname := filepath.Join(scfg.DBDir, identity.String(), id.String(), name)
		opts = badger.DefaultOptions(dbname).
			WithValueLogFileSize(int64(scfg.BadgerDBValueLogSize)).
			WithSyncWrites(scfg.BadgerDBSyncWrites).
			WithDetectConflicts(false)
	}
	// badger has its own logger, keep it quiet
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("could not create badgerDB storage for KVTable %s: %w", name, err)
	}
	return &BadgerKVTable{ID: identity, BaseTable: store.NewBaseTable(name, id), badgerdb: db}, nil
}

func (tbl *BadgerKVTable) Close() error {
	return tbl.badgerdb.Close()
}

func (tbl *BadgerKVTable) Size() int {
	return 0
}

func (tbl *BadgerKVTable) Read(readOp *kv_table.ReadOp) ([]store.KVItem, error) {
	log.Debugf("Read against BadgerDB on node %v. ReadMode=%v", tbl.ID, readOp.ReadMode)
	s := time.Now()
	kvItems := make([]store.KVItem, 0, 10)
	err := tbl.badgerdb.View(func(txn *badger.Txn) error {
		switch readOp.ReadMode {
		case kv_table.POINT:
			item, err := txn.Get(readOp.StartKey)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return store.ErrNotFound
				}
				log.Errorln(err)
				return store.ErrStoreGetError
			}
			return appendItem(&kvItems, item)
		case kv_table.RANGE, kv_table.PREFIX:
			opts := badger.DefaultIteratorOptions
			if readOp.ReadMode == kv_table.PREFIX {
				opts.Prefix = readOp.StartKey
			}
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Seek(readOp.StartKey); it.Valid(); it.Next() {
				item := it.Item()
				if readOp.ReadMode == kv_table.RANGE && readOp.EndKey != nil && string(item.Key()) >= string(readOp.EndKey) {
					break
				}
				if err := appendItem(&kvItems, item); err != nil {
					return err
				}
			}
			return nil
		default:
			return store.ErrStoreGetError
		}
	})
	if took := time.Since(s).Milliseconds(); took > 5 {
		log.Warningf("Node %v experienced a long %v read on table %s. Read took %d ms", tbl.ID, readOp.ReadMode, tbl.GetTableName(), took)
	}
	if err != nil {
		return nil, err
	}
	return kvItems, nil
}

func appendItem(kvItems *[]store.KVItem, item *badger.Item) error {
	v, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	*kvItems = append(*kvItems, store.KVItem{Key: item.KeyCopy(nil), Value: v})
	return nil
}

func (tbl *BadgerKVTable) Write(items []store.KVItem) error {
	log.Debugf("Node %v writing %d items to BadgerDB table %s", tbl.ID, len(items), tbl.GetTableName())
	wb := tbl.badgerdb.NewWriteBatch()
	defer wb.Cancel()

	for _, item := range items {
		var err error
		if item.Value == nil {
			err = wb.Delete(item.Key) // Will create txns as needed.
		} else {
			err = wb.Set(item.Key, item.Value)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrStorePutError, err)
		}
	}
	return wb.Flush()
}

func (tbl *BadgerKVTable) String() string {
	return fmt.Sprintf("BadgerDB KVTable on node %v. TableID: %v", tbl.ID, tbl.GetUUID())
}
