package processor

import (
	"context"

	"github.com/xiaogangfan/rocketmq/core"
	"github.com/xiaogangfan/rocketmq/protocol"
)

// SendMessageProcessor relays send and resend-failed requests to the storing enode
type SendMessageProcessor struct {
	enodes Forwarder
}

func NewSendMessageProcessor(enodes Forwarder) *SendMessageProcessor {
	return &SendMessageProcessor{enodes: enodes}
}

func (p *SendMessageProcessor) Process(ctx context.Context, rc *core.RequestContext) (*protocol.Command, error) {
	if err := requireFields(rc.Request, protocol.FieldTopic); err != nil {
		return badRequest(err), nil
	}
	return forward(ctx, p.enodes, rc.Request)
}
