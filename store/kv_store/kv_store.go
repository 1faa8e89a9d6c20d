package kv_store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/store"
	badgerdb_kv_table "github.com/xiaogangfan/rocketmq/store/kv_store/badger_kv_table"
	"github.com/xiaogangfan/rocketmq/store/kv_store/inmemory_kv_table"
	"github.com/xiaogangfan/rocketmq/store/kv_store/kv_table"
	"github.com/xiaogangfan/rocketmq/store/kv_store/leveldb_kv_table"
)

// the tables table maps table uuid -> table name so tables are reopened on Initialize
const TablesTableName = "snode_tables"

var TablesTableUUID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// KVStore owns the tables of one snode
type KVStore struct {
	ids.ID     // must have an identity
	scfg       *config.StoreConfig
	tables     map[uuid.UUID]kv_table.KVTable
	tableNames map[string]uuid.UUID
	sync.RWMutex
}

// NewStore get the instance of storage component
func NewStore(identity ids.ID, scfg *config.StoreConfig) *KVStore {
	log.Infof("Creating KV store at node %v", identity)
	return &KVStore{
		ID:         identity,
		scfg:       scfg,
		tables:     make(map[uuid.UUID]kv_table.KVTable),
		tableNames: make(map[string]uuid.UUID),
	}
}

func (s *KVStore) Initialize() error {
	log.Infof("Initializing KV store at node %v", s.ID)
	if _, err := s.CreateTable(TablesTableName, TablesTableUUID); err != nil {
		return err
	}

	// read tables table and load other tables
	kvItems, err := s.GetTable(TablesTableUUID).Read(&kv_table.ReadOp{ReadMode: kv_table.PREFIX})
	if err != nil {
		return fmt.Errorf("error initializing KVStore: %w", err)
	}
	for _, item := range kvItems {
		tableId, err := uuid.FromBytes(item.Key)
		if err != nil {
			log.Errorf("Error reading table (%v) tableId: %v", string(item.Value), item.Key)
			return err
		}
		if _, err = s.CreateTable(string(item.Value), tableId); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every table and returns their joined errors
func (s *KVStore) Close() error {
	s.Lock()
	defer s.Unlock()
	var errs []error
	for id, tbl := range s.tables {
		if err := tbl.Close(); err != nil {
			errs = append(errs, fmt.Errorf("table %s: %w", tbl.GetTableName(), err))
		}
		delete(s.tables, id)
		delete(s.tableNames, tbl.GetTableName())
	}
	return errors.Join(errs...)
}

func (s *KVStore) GetTableList() []string {
	s.RLock()
	defer s.RUnlock()
	tblList := make([]string, 0, len(s.tables))
	for _, tbl := range s.tables {
		tblList = append(tblList, tbl.GetTableName())
	}
	sort.Strings(tblList)
	return tblList
}

func (s *KVStore) openTable(tableName string, tableId uuid.UUID) (kv_table.KVTable, error) {
	switch s.scfg.StoreEngine {
	case config.EngineLevelDB:
		return leveldb_kv_table.NewLevelDBTable(s.ID, s.scfg.DBDir, tableName, tableId)
	case config.EngineBadgerDB:
		return badgerdb_kv_table.NewBadgerDBTable(s.ID, s.scfg, tableName, tableId)
	case config.EngineInMemory:
		return inmemory_kv_table.NewInMemoryTable(s.ID, s.scfg, tableName, tableId), nil
	}
	return nil, fmt.Errorf("%w: %s", store.ErrUnknownEngine, s.scfg.StoreEngine)
}

// CreateTable opens a table and records it in the tables table.
// Returns false without error when a table with this name or id is already open.
func (s *KVStore) CreateTable(tableName string, tableId uuid.UUID) (bool, error) {
	s.Lock()
	defer s.Unlock()
	log.Debugf("KVStore %v creating table %s with id=%v", s.ID, tableName, tableId)
	if _, ok := s.tables[tableId]; ok {
		return false, nil
	}
	if _, ok := s.tableNames[tableName]; ok {
		log.Infof("KVStore %v: table with name %s already exists, skipping CreateTable", s.ID, tableName)
		return false, nil
	}

	tbl, err := s.openTable(tableName, tableId)
	if err != nil {
		return false, err
	}
	s.tables[tableId] = tbl
	s.tableNames[tableName] = tableId

	tblIdBytes, err := tableId.MarshalBinary()
	if err != nil {
		return false, err
	}
	if err := s.tables[TablesTableUUID].Write([]store.KVItem{{Key: tblIdBytes, Value: store.ByteString(tableName)}}); err != nil {
		return false, err
	}
	return true, nil
}

// OpenTable returns the named table, creating it with a fresh id when missing
func (s *KVStore) OpenTable(tableName string) (kv_table.KVTable, error) {
	if tbl := s.GetTableByName(tableName); tbl != nil {
		return tbl, nil
	}
	if _, err := s.CreateTable(tableName, uuid.New()); err != nil {
		return nil, err
	}
	tbl := s.GetTableByName(tableName)
	if tbl == nil {
		return nil, store.ErrTableNotFound
	}
	return tbl, nil
}

func (s *KVStore) GetTable(id uuid.UUID) kv_table.KVTable {
	s.RLock()
	defer s.RUnlock()
	return s.tables[id]
}

func (s *KVStore) GetTableByName(name string) kv_table.KVTable {
	s.RLock()
	defer s.RUnlock()
	id, ok := s.tableNames[name]
	if !ok {
		return nil
	}
	return s.tables[id]
}

func (s *KVStore) String() string {
	return fmt.Sprintf("KVStore(%s) on node %v", s.scfg.StoreEngine, s.ID)
}
