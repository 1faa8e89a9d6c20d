package kv_table

import (
	"github.com/google/uuid"
	"github.com/xiaogangfan/rocketmq/store"
)

type ReadMode int

const (
	POINT  ReadMode = iota
	RANGE           // [StartKey, EndKey)
	PREFIX          // every key starting with StartKey
)

func (m ReadMode) String() string {
	return [...]string{"POINT", "RANGE", "PREFIX"}[m]
}

type ReadOp struct {
	ReadMode ReadMode
	StartKey store.ByteString
	EndKey   store.ByteString
}

type KVTable interface {
	Close() error
	Size() int
	Read(readOp *ReadOp) ([]store.KVItem, error)
	Write(items []store.KVItem) error
	String() string

	GetTableName() string
	GetUUID() uuid.UUID
}
