package ids

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// ClientID identifies a producer or consumer instance connected to the snode.
type ClientID string

// NewClientID makes a random client id for clients that did not report one.
func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

// RequestID correlates a request with its response on a connection.
type RequestID uint64

// RequestIDGenerator hands out request ids that are unique per node. The upper 16 bits carry the
// node id so ids from different snodes do not collide in upstream logs.
type RequestIDGenerator struct {
	prefix  uint64
	counter uint64
}

func NewRequestIDGenerator(nodeId ID) *RequestIDGenerator {
	return &RequestIDGenerator{prefix: uint64(nodeId.Int()) << 48}
}

func (g *RequestIDGenerator) Next() RequestID {
	c := atomic.AddUint64(&g.counter, 1) & (1<<48 - 1)
	return RequestID(g.prefix | c)
}
