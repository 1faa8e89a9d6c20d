package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaogangfan/rocketmq/client_manager"
	"github.com/xiaogangfan/rocketmq/core"
	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/messages"
	"github.com/xiaogangfan/rocketmq/protocol"
)

// HeartbeatProcessor serves HeartBeat and UnregisterClient
type HeartbeatProcessor struct {
	producers *client_manager.ProducerManager
	consumers *client_manager.ConsumerManager
}

func NewHeartbeatProcessor(producers *client_manager.ProducerManager, consumers *client_manager.ConsumerManager) *HeartbeatProcessor {
	return &HeartbeatProcessor{producers: producers, consumers: consumers}
}

func (p *HeartbeatProcessor) Process(ctx context.Context, rc *core.RequestContext) (*protocol.Command, error) {
	switch rc.Request.Opcode() {
	case protocol.HeartBeat:
		return p.heartbeat(rc)
	case protocol.UnregisterClient:
		return p.unregister(rc)
	}
	return nil, fmt.Errorf("heartbeat processor cannot serve %v", rc.Request.Opcode())
}

func (p *HeartbeatProcessor) heartbeat(rc *core.RequestContext) (*protocol.Command, error) {
	var data messages.HeartbeatData
	if err := messages.Decode(rc.Request.Body, &data); err != nil {
		return badRequest(err), nil
	}
	if data.ClientID == "" {
		data.ClientID = string(ids.NewClientID())
	}
	ch := client_manager.ClientChannelInfo{ClientID: data.ClientID, RemoteAddr: rc.RemoteAddr, LastUpdate: time.Now()}
	for _, consumer := range data.ConsumerDataSet {
		if p.consumers.RegisterConsumer(consumer, ch) {
			log.Infof("registerConsumer info changed %v %s", data, rc.RemoteAddr)
		}
	}
	for _, producer := range data.ProducerDataSet {
		p.producers.RegisterProducer(producer.GroupName, ch)
	}
	return protocol.NewResponse(protocol.Success, ""), nil
}

func (p *HeartbeatProcessor) unregister(rc *core.RequestContext) (*protocol.Command, error) {
	if group := rc.Request.Field(protocol.FieldProducerGroup); group != "" {
		p.producers.UnregisterProducer(group, rc.RemoteAddr)
	}
	if group := rc.Request.Field(protocol.FieldConsumerGroup); group != "" {
		p.consumers.UnregisterConsumer(group, rc.RemoteAddr)
	}
	return protocol.NewResponse(protocol.Success, ""), nil
}
