package client_manager

import (
	"sync/atomic"

	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/messages"
	"github.com/xiaogangfan/rocketmq/protocol"
)

// Notifier pushes a one-way command to a client connection
type Notifier interface {
	Notify(remoteAddr string, cmd *protocol.Command) error
}

type notifierHolder struct {
	Notifier
}

// ConsumerIdsNotifier tells the remaining members of a group that membership changed.
// The target is attached once the inbound server exists; until then changes are only logged.
type ConsumerIdsNotifier struct {
	target atomic.Value
}

func (n *ConsumerIdsNotifier) SetTarget(target Notifier) {
	n.target.Store(notifierHolder{target})
}

func (n *ConsumerIdsNotifier) ConsumerIdsChanged(group string, remaining []ClientChannelInfo) {
	holder, ok := n.target.Load().(notifierHolder)
	if !ok || holder.Notifier == nil || len(remaining) == 0 {
		log.Debugf("consumer ids of group %s changed, %d members left", group, len(remaining))
		return
	}
	ids := make([]string, 0, len(remaining))
	for _, ch := range remaining {
		ids = append(ids, ch.ClientID)
	}
	body, err := messages.Encode(messages.NotifyConsumerIdsChanged{ConsumerGroup: group, ConsumerIDList: ids})
	if err != nil {
		log.Errorf("encode consumer ids change of %s: %v", group, err)
		return
	}
	for _, ch := range remaining {
		cmd := protocol.NewRequest(protocol.NotifyConsumerIdsChanged, map[string]string{protocol.FieldConsumerGroup: group}, body)
		if err := holder.Notify(ch.RemoteAddr, cmd); err != nil {
			log.Warningf("notify consumer %s of group %s: %v", ch.ClientID, group, err)
		}
	}
}
