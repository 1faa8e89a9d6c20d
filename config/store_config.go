package config

// store engines
const (
	EngineLevelDB  = "leveldb"
	EngineBadgerDB = "badgerdb"
	EngineInMemory = "inmemory"
)

type StoreConfig struct {
	DBDir                string `json:"db_dir" yaml:"db_dir"`                         // directory for table files
	StoreEngine          string `json:"store_engine" yaml:"store_engine"`             // store engine. Currently leveldb or badgerdb, inmemory
	BadgerDBInMemory     bool   `json:"badgerdb_in_memory" yaml:"badgerdb_in_memory"` // whether badgerdb runs in-memory only
	BadgerDBSyncWrites   bool   `json:"badgerdb_sync_writes" yaml:"badgerdb_sync_writes"`
	BadgerDBValueLogSize int    `json:"badgerdb_value_log_size" yaml:"badgerdb_value_log_size"`
	BTreeDegree          int    `json:"btree_degree" yaml:"btree_degree"` // degree of b-tree when StoreEngine="inmemory"
}

func NewDefaultStoreConfig() *StoreConfig {
	config := new(StoreConfig)
	config.DBDir = "/tmp/snode/"
	config.StoreEngine = EngineLevelDB
	config.BadgerDBInMemory = false
	config.BadgerDBSyncWrites = true
	config.BadgerDBValueLogSize = 1024 * 1024 * 200 // 200 MBs
	config.BTreeDegree = 25

	return config
}

func (c *StoreConfig) Validate() error {
	switch c.StoreEngine {
	case EngineLevelDB, EngineBadgerDB:
		if c.DBDir == "" && !(c.StoreEngine == EngineBadgerDB && c.BadgerDBInMemory) {
			return &ConfigurationError{Field: "store.db_dir", Reason: "must be set for on-disk engines"}
		}
	case EngineInMemory:
		if c.BTreeDegree < 2 {
			return &ConfigurationError{Field: "store.btree_degree", Reason: "must be at least 2"}
		}
	default:
		return &ConfigurationError{Field: "store.store_engine", Reason: "unknown engine " + c.StoreEngine}
	}
	return nil
}
