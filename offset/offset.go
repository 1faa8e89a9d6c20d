// Package offset tracks the committed consume offset of every (group, topic, queue) the snode has seen.
package offset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/store"
	"github.com/xiaogangfan/rocketmq/store/kv_store/kv_table"
)

const TableName = "consumer_offsets"

var ErrBadOffsetKey = errors.New("malformed offset key")

// Key addresses one consume queue of a topic for one consumer group
type Key struct {
	Group   string
	Topic   string
	QueueID int32
}

func (k Key) String() string {
	return k.Topic + "@" + k.Group + ":" + strconv.Itoa(int(k.QueueID))
}

func parseKey(s string) (Key, error) {
	colon := strings.LastIndexByte(s, ':')
	at := strings.IndexByte(s, '@')
	if colon < 0 || at < 0 || at > colon {
		return Key{}, fmt.Errorf("%w: %q", ErrBadOffsetKey, s)
	}
	q, err := strconv.ParseInt(s[colon+1:], 10, 32)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q", ErrBadOffsetKey, s)
	}
	return Key{Topic: s[:at], Group: s[at+1 : colon], QueueID: int32(q)}, nil
}

// ConsumerOffsetManager keeps offsets in memory and writes the changed ones to a table on Persist
type ConsumerOffsetManager struct {
	mu      sync.RWMutex
	offsets map[Key]int64
	dirty   map[Key]struct{}
	table   kv_table.KVTable
}

// NewConsumerOffsetManager with a nil table keeps offsets in memory only
func NewConsumerOffsetManager(table kv_table.KVTable) *ConsumerOffsetManager {
	return &ConsumerOffsetManager{
		offsets: make(map[Key]int64),
		dirty:   make(map[Key]struct{}),
		table:   table,
	}
}

// Attach binds the manager to its table and loads what was persisted there
func (m *ConsumerOffsetManager) Attach(table kv_table.KVTable) error {
	m.mu.Lock()
	m.table = table
	m.mu.Unlock()
	return m.Load()
}

// Load replaces the in-memory offsets with the persisted ones
func (m *ConsumerOffsetManager) Load() error {
	m.mu.RLock()
	table := m.table
	m.mu.RUnlock()
	if table == nil {
		return nil
	}
	items, err := table.Read(&kv_table.ReadOp{ReadMode: kv_table.PREFIX})
	if err != nil {
		return fmt.Errorf("load consumer offsets: %w", err)
	}
	loaded := make(map[Key]int64, len(items))
	for _, item := range items {
		k, err := parseKey(string(item.Key))
		if err != nil {
			log.Warningf("skipping offset entry: %v", err)
			continue
		}
		v, err := strconv.ParseInt(string(item.Value), 10, 64)
		if err != nil {
			log.Warningf("skipping offset entry %s: %v", k, err)
			continue
		}
		loaded[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsets = loaded
	m.dirty = make(map[Key]struct{})
	log.Infof("Loaded %d consumer offsets", len(loaded))
	return nil
}

func (m *ConsumerOffsetManager) CommitOffset(clientHost string, k Key, offset int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.offsets[k]; ok && prev > offset {
		log.Warningf("[NOTIFYME] update consumer offset less than store. clientHost=%s, key=%s, requestOffset=%d, storeOffset=%d", clientHost, k, offset, prev)
	}
	m.offsets[k] = offset
	m.dirty[k] = struct{}{}
}

// QueryOffset returns -1 when the group never committed on this queue
func (m *ConsumerOffsetManager) QueryOffset(k Key) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.offsets[k]; ok {
		return v
	}
	return -1
}

// Topics returns the topics a group has committed offsets for
func (m *ConsumerOffsetManager) Topics(group string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	topics := make([]string, 0)
	for k := range m.offsets {
		if k.Group != group {
			continue
		}
		if _, ok := seen[k.Topic]; !ok {
			seen[k.Topic] = struct{}{}
			topics = append(topics, k.Topic)
		}
	}
	return topics
}

func (m *ConsumerOffsetManager) DirtyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dirty)
}

// Persist writes every offset changed since the last successful Persist
func (m *ConsumerOffsetManager) Persist() error {
	m.mu.Lock()
	table := m.table
	if table == nil || len(m.dirty) == 0 {
		m.mu.Unlock()
		return nil
	}
	items := make([]store.KVItem, 0, len(m.dirty))
	for k := range m.dirty {
		items = append(items, store.KVItem{
			Key:   store.ByteString(k.String()),
			Value: store.ByteString(strconv.FormatInt(m.offsets[k], 10)),
		})
	}
	pending := m.dirty
	m.dirty = make(map[Key]struct{})
	m.mu.Unlock()

	if err := table.Write(items); err != nil {
		// put the keys back so the next round retries them
		m.mu.Lock()
		for k := range pending {
			m.dirty[k] = struct{}{}
		}
		m.mu.Unlock()
		return fmt.Errorf("persist consumer offsets: %w", err)
	}
	log.Debugf("Persisted %d consumer offsets", len(items))
	return nil
}
