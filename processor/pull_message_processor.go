package processor

import (
	"context"

	"github.com/xiaogangfan/rocketmq/core"
	"github.com/xiaogangfan/rocketmq/protocol"
)

type PullMessageProcessor struct {
	enodes Forwarder
}

func NewPullMessageProcessor(enodes Forwarder) *PullMessageProcessor {
	return &PullMessageProcessor{enodes: enodes}
}

func (p *PullMessageProcessor) Process(ctx context.Context, rc *core.RequestContext) (*protocol.Command, error) {
	if err := requireFields(rc.Request, protocol.FieldTopic, protocol.FieldConsumerGroup, protocol.FieldQueueID); err != nil {
		return badRequest(err), nil
	}
	return forward(ctx, p.enodes, rc.Request)
}
