package store

import (
	"fmt"
)

// KVItem is a pair in a KV table. A nil Value in a write deletes the key.
type KVItem struct {
	Key   ByteString
	Value ByteString
}

func (kv KVItem) String() string {
	return fmt.Sprintf("KVItem: {key: %s, Value: %s}", kv.Key, kv.Value)
}
