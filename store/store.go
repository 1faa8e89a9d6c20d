package store

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrStoreError    = errors.New("store error")
	ErrStoreGetError = errors.New("store error during Get operation")
	ErrNotFound      = errors.New("store: item not found")
	ErrStorePutError = errors.New("store error during Put operation")
	ErrTableNotFound = errors.New("table not found")
	ErrUnknownEngine = errors.New("unknown store engine")
)

type BaseTable struct {
	tableName string
	uuid      uuid.UUID
}

func NewBaseTable(name string, uuid uuid.UUID) BaseTable {
	return BaseTable{tableName: name, uuid: uuid}
}

func (bt *BaseTable) GetTableName() string {
	return bt.tableName
}

func (bt *BaseTable) GetUUID() uuid.UUID {
	return bt.uuid
}
