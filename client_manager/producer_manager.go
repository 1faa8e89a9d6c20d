package client_manager

import (
	"sort"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/xiaogangfan/rocketmq/log"
)

type ProducerManager struct {
	channels *channelTable
}

func NewProducerManager(expiry time.Duration) *ProducerManager {
	return &ProducerManager{channels: newChannelTable(expiry)}
}

func (m *ProducerManager) RegisterProducer(group string, ch ClientChannelInfo) {
	k := channelKey{Group: group, RemoteAddr: ch.RemoteAddr}
	if m.channels.Get(k) == nil {
		log.Infof("new producer connected, group: %s channel: %v", group, ch)
	}
	m.channels.Set(k, ch, ttlcache.DefaultTTL)
}

func (m *ProducerManager) UnregisterProducer(group string, remoteAddr string) {
	m.channels.Delete(channelKey{Group: group, RemoteAddr: remoteAddr})
	log.Infof("unregister a producer %s from groupChannelTable %s", group, remoteAddr)
}

func (m *ProducerManager) GroupChannels(group string) []ClientChannelInfo {
	return groupChannels(m.channels, group)
}

func (m *ProducerManager) Groups() []string {
	seen := make(map[string]struct{})
	for _, k := range m.channels.Keys() {
		seen[k.Group] = struct{}{}
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

func (m *ProducerManager) DoChannelCloseEvent(remoteAddr string) {
	for _, g := range removeAddr(m.channels, remoteAddr) {
		log.Infof("connection event: remove channel %s from producer group %s", remoteAddr, g)
	}
}

// ScanNotActiveChannel drops channels that did not heartbeat within the expiry window
func (m *ProducerManager) ScanNotActiveChannel() {
	m.channels.DeleteExpired()
}

func (m *ProducerManager) ChannelCount() int {
	return m.channels.Len()
}
