package processor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xiaogangfan/rocketmq/client_manager"
	"github.com/xiaogangfan/rocketmq/core"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/messages"
	"github.com/xiaogangfan/rocketmq/offset"
	"github.com/xiaogangfan/rocketmq/protocol"
)

// ConsumerManageProcessor serves group membership and offset requests. Offsets kept by the snode are
// answered locally; queue offset bounds and timestamp search go to the enode.
type ConsumerManageProcessor struct {
	consumers *client_manager.ConsumerManager
	offsets   *offset.ConsumerOffsetManager
	enodes    Forwarder
}

func NewConsumerManageProcessor(consumers *client_manager.ConsumerManager, offsets *offset.ConsumerOffsetManager, enodes Forwarder) *ConsumerManageProcessor {
	return &ConsumerManageProcessor{consumers: consumers, offsets: offsets, enodes: enodes}
}

func (p *ConsumerManageProcessor) Process(ctx context.Context, rc *core.RequestContext) (*protocol.Command, error) {
	switch rc.Request.Opcode() {
	case protocol.GetConsumerListByGroup:
		return p.consumerList(rc)
	case protocol.UpdateConsumerOffset:
		return p.updateOffset(rc)
	case protocol.QueryConsumerOffset:
		return p.queryOffset(rc)
	case protocol.GetMinOffset, protocol.GetMaxOffset, protocol.SearchOffsetByTimestamp:
		return forward(ctx, p.enodes, rc.Request)
	}
	return nil, fmt.Errorf("consumer manage processor cannot serve %v", rc.Request.Opcode())
}

func (p *ConsumerManageProcessor) consumerList(rc *core.RequestContext) (*protocol.Command, error) {
	group := rc.Request.Field(protocol.FieldConsumerGroup)
	ids := p.consumers.ConsumerIDs(group)
	if len(ids) == 0 {
		log.Warningf("getConsumerGroupInfo failed, %s %s", group, rc.RemoteAddr)
		return protocol.NewResponse(protocol.SystemError, "no consumer for this group, "+group), nil
	}
	body, err := messages.Encode(messages.ConsumerListBody{ConsumerIDList: ids})
	if err != nil {
		return nil, err
	}
	resp := protocol.NewResponse(protocol.Success, "")
	resp.Body = body
	return resp, nil
}

func offsetKey(req *protocol.Command) (offset.Key, error) {
	if err := requireFields(req, protocol.FieldTopic, protocol.FieldConsumerGroup); err != nil {
		return offset.Key{}, err
	}
	q, err := req.IntField(protocol.FieldQueueID)
	if err != nil {
		return offset.Key{}, err
	}
	return offset.Key{Group: req.Field(protocol.FieldConsumerGroup), Topic: req.Field(protocol.FieldTopic), QueueID: int32(q)}, nil
}

func (p *ConsumerManageProcessor) updateOffset(rc *core.RequestContext) (*protocol.Command, error) {
	k, err := offsetKey(rc.Request)
	if err != nil {
		return badRequest(err), nil
	}
	o, err := rc.Request.IntField(protocol.FieldOffset)
	if err != nil {
		return badRequest(err), nil
	}
	p.offsets.CommitOffset(rc.RemoteAddr, k, o)
	return protocol.NewResponse(protocol.Success, ""), nil
}

func (p *ConsumerManageProcessor) queryOffset(rc *core.RequestContext) (*protocol.Command, error) {
	k, err := offsetKey(rc.Request)
	if err != nil {
		return badRequest(err), nil
	}
	o := p.offsets.QueryOffset(k)
	if o < 0 {
		return protocol.NewResponse(protocol.QueryNotFound, "Not found, maybe this group consumer boot first"), nil
	}
	resp := protocol.NewResponse(protocol.Success, "")
	resp.SetField(protocol.FieldOffset, strconv.FormatInt(o, 10))
	return resp, nil
}
