package core

import (
	"context"
	"sync"
	"time"

	"github.com/xiaogangfan/rocketmq/protocol"
)

// RequestContext carries one inbound request through the interceptors and the processor bound to its opcode.
type RequestContext struct {
	Request    *protocol.Command
	RemoteAddr string
	ReceivedAt time.Time

	mu    sync.Mutex
	attrs map[string]interface{}
}

func NewRequestContext(req *protocol.Command, remoteAddr string) *RequestContext {
	return &RequestContext{Request: req, RemoteAddr: remoteAddr, ReceivedAt: time.Now()}
}

// Set stores an attribute for later interceptors or the processor.
func (rc *RequestContext) Set(key string, value interface{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.attrs == nil {
		rc.attrs = make(map[string]interface{})
	}
	rc.attrs[key] = value
}

func (rc *RequestContext) Get(key string) (interface{}, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.attrs[key]
	return v, ok
}

// Processor handles the requests of one or more opcodes. A nil response with a nil error means no reply.
type Processor interface {
	Process(ctx context.Context, rc *RequestContext) (*protocol.Command, error)
}

type ProcessorFunc func(ctx context.Context, rc *RequestContext) (*protocol.Command, error)

func (f ProcessorFunc) Process(ctx context.Context, rc *RequestContext) (*protocol.Command, error) {
	return f(ctx, rc)
}
