package client_manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/messages"
)

// ConsumerIdsChangeListener hears about membership changes of a consumer group
type ConsumerIdsChangeListener interface {
	ConsumerIdsChanged(group string, remaining []ClientChannelInfo)
}

// ConsumerGroupInfo is the latest group settings and subscriptions reported by heartbeats
type ConsumerGroupInfo struct {
	GroupName        string
	ConsumeType      string
	MessageModel     string
	ConsumeFromWhere string
	Subscriptions    map[string]messages.SubscriptionData
	LastUpdate       time.Time
}

type ConsumerManager struct {
	channels *channelTable
	listener ConsumerIdsChangeListener

	mu     sync.RWMutex
	groups map[string]*ConsumerGroupInfo
}

// NewConsumerManager takes an optional listener
func NewConsumerManager(expiry time.Duration, listener ConsumerIdsChangeListener) *ConsumerManager {
	m := &ConsumerManager{
		channels: newChannelTable(expiry),
		listener: listener,
		groups:   make(map[string]*ConsumerGroupInfo),
	}
	m.channels.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[channelKey, ClientChannelInfo]) {
		if reason == ttlcache.EvictionReasonExpired {
			log.Warningf("sweep: remove expired channel %s from consumer group %s", item.Key().RemoteAddr, item.Key().Group)
		}
		m.groupChanged(item.Key().Group)
	})
	return m
}

// RegisterConsumer records the group settings and the channel. Returns true when the channel is new to the group.
func (m *ConsumerManager) RegisterConsumer(data messages.ConsumerData, ch ClientChannelInfo) bool {
	m.mu.Lock()
	info, ok := m.groups[data.GroupName]
	if !ok {
		info = &ConsumerGroupInfo{GroupName: data.GroupName}
		m.groups[data.GroupName] = info
	}
	info.ConsumeType = data.ConsumeType
	info.MessageModel = data.MessageModel
	info.ConsumeFromWhere = data.ConsumeFromWhere
	info.Subscriptions = make(map[string]messages.SubscriptionData, len(data.Subscriptions))
	for _, sub := range data.Subscriptions {
		info.Subscriptions[sub.Topic] = sub
	}
	info.LastUpdate = ch.LastUpdate
	m.mu.Unlock()

	k := channelKey{Group: data.GroupName, RemoteAddr: ch.RemoteAddr}
	isNew := m.channels.Get(k) == nil
	m.channels.Set(k, ch, ttlcache.DefaultTTL)
	if isNew {
		log.Infof("consumer group %s: new channel %v", data.GroupName, ch)
		m.notify(data.GroupName)
	}
	return isNew
}

func (m *ConsumerManager) UnregisterConsumer(group string, remoteAddr string) {
	m.channels.Delete(channelKey{Group: group, RemoteAddr: remoteAddr})
}

func (m *ConsumerManager) DoChannelCloseEvent(remoteAddr string) {
	for _, g := range removeAddr(m.channels, remoteAddr) {
		log.Infof("connection event: remove channel %s from consumer group %s", remoteAddr, g)
	}
}

func (m *ConsumerManager) ScanNotActiveChannel() {
	m.channels.DeleteExpired()
}

// groupChanged runs after a channel left the group. An empty group is forgotten.
func (m *ConsumerManager) groupChanged(group string) {
	if len(groupChannels(m.channels, group)) == 0 {
		m.mu.Lock()
		delete(m.groups, group)
		m.mu.Unlock()
		log.Infof("unregister consumer ok, no any connection, and remove consumer group, %s", group)
	}
	m.notify(group)
}

func (m *ConsumerManager) notify(group string) {
	if m.listener != nil {
		m.listener.ConsumerIdsChanged(group, groupChannels(m.channels, group))
	}
}

func (m *ConsumerManager) GroupInfo(group string) (ConsumerGroupInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.groups[group]
	if !ok {
		return ConsumerGroupInfo{}, false
	}
	return *info, true
}

func (m *ConsumerManager) FindSubscription(group, topic string) (messages.SubscriptionData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if info, ok := m.groups[group]; ok {
		sub, ok := info.Subscriptions[topic]
		return sub, ok
	}
	return messages.SubscriptionData{}, false
}

// ConsumerIDs lists the client ids of a group, sorted
func (m *ConsumerManager) ConsumerIDs(group string) []string {
	chans := groupChannels(m.channels, group)
	ids := make([]string, 0, len(chans))
	for _, ch := range chans {
		ids = append(ids, ch.ClientID)
	}
	sort.Strings(ids)
	return ids
}

func (m *ConsumerManager) GroupChannels(group string) []ClientChannelInfo {
	return groupChannels(m.channels, group)
}
