package core

import (
	"context"

	"github.com/xiaogangfan/rocketmq/ids"
)

// Service is anything the controller starts and stops. Only the owner of a Service calls these.
type Service interface {
	Start() error
	Shutdown() error
}

// ConnectionEventListener receives connection events from the inbound server.
type ConnectionEventListener interface {
	OnConnect(remoteAddr string)
	OnClose(remoteAddr string)
	OnException(remoteAddr string, err error)
	OnIdle(remoteAddr string)
}

// ContextMeta is attached to the context of every dispatched request
type ContextMeta struct {
	RequestID  ids.RequestID
	RemoteAddr string // the connection the request arrived on
}

type ctxKey struct{}

// CtxMeta is the context key of *ContextMeta
var CtxMeta = ctxKey{}

func WithMeta(ctx context.Context, meta *ContextMeta) context.Context {
	return context.WithValue(ctx, CtxMeta, meta)
}

// MetaFrom returns the request meta, or nil when ctx did not come from the dispatcher.
func MetaFrom(ctx context.Context) *ContextMeta {
	meta, _ := ctx.Value(CtxMeta).(*ContextMeta)
	return meta
}
