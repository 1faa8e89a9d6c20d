package client_manager

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/messages"
	"github.com/xiaogangfan/rocketmq/protocol"
)

type recordingListener struct {
	mu      sync.Mutex
	changes map[string][]ClientChannelInfo
}

func (r *recordingListener) ConsumerIdsChanged(group string, remaining []ClientChannelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.changes == nil {
		r.changes = make(map[string][]ClientChannelInfo)
	}
	r.changes[group] = remaining
}

func (r *recordingListener) last(group string) ([]ClientChannelInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chans, ok := r.changes[group]
	return chans, ok
}

func consumerData(group string, topics ...string) messages.ConsumerData {
	data := messages.ConsumerData{GroupName: group, ConsumeType: "CONSUME_PASSIVELY", MessageModel: "CLUSTERING"}
	for _, t := range topics {
		data.Subscriptions = append(data.Subscriptions, messages.SubscriptionData{Topic: t, SubString: "*"})
	}
	return data
}

func channel(id, addr string) ClientChannelInfo {
	return ClientChannelInfo{ClientID: id, RemoteAddr: addr, LastUpdate: time.Now()}
}

func TestProducerRegisterAndClose(t *testing.T) {
	m := NewProducerManager(time.Minute)
	m.RegisterProducer("pg", channel("c1", "10.0.0.1:1"))
	m.RegisterProducer("pg", channel("c2", "10.0.0.2:1"))
	m.RegisterProducer("other", channel("c1", "10.0.0.1:1"))
	assert.Len(t, m.GroupChannels("pg"), 2)
	assert.Equal(t, []string{"other", "pg"}, m.Groups())

	m.DoChannelCloseEvent("10.0.0.1:1")
	assert.Len(t, m.GroupChannels("pg"), 1)
	assert.Empty(t, m.GroupChannels("other"))

	m.UnregisterProducer("pg", "10.0.0.2:1")
	assert.Equal(t, 0, m.ChannelCount())
}

func TestProducerChannelsExpire(t *testing.T) {
	m := NewProducerManager(20 * time.Millisecond)
	m.RegisterProducer("pg", channel("c1", "10.0.0.1:1"))
	time.Sleep(50 * time.Millisecond)
	m.ScanNotActiveChannel()
	assert.Equal(t, 0, m.ChannelCount())
}

func TestConsumerRegister(t *testing.T) {
	listener := &recordingListener{}
	m := NewConsumerManager(time.Minute, listener)

	assert.True(t, m.RegisterConsumer(consumerData("cg", "orders"), channel("c1", "10.0.0.1:1")))
	assert.False(t, m.RegisterConsumer(consumerData("cg", "orders", "payments"), channel("c1", "10.0.0.1:1")))
	assert.True(t, m.RegisterConsumer(consumerData("cg", "orders"), channel("c2", "10.0.0.2:1")))

	assert.Equal(t, []string{"c1", "c2"}, m.ConsumerIDs("cg"))
	_, ok := m.FindSubscription("cg", "orders")
	assert.True(t, ok)
	_, ok = m.FindSubscription("cg", "payments")
	assert.False(t, ok)

	info, ok := m.GroupInfo("cg")
	require.True(t, ok)
	assert.Equal(t, "CLUSTERING", info.MessageModel)

	chans, ok := listener.last("cg")
	require.True(t, ok)
	assert.Len(t, chans, 2)
}

func TestConsumerGroupForgottenWhenEmpty(t *testing.T) {
	listener := &recordingListener{}
	m := NewConsumerManager(time.Minute, listener)
	m.RegisterConsumer(consumerData("cg", "orders"), channel("c1", "10.0.0.1:1"))

	m.DoChannelCloseEvent("10.0.0.1:1")
	assert.Eventually(t, func() bool {
		_, ok := m.GroupInfo("cg")
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		chans, ok := listener.last("cg")
		return ok && len(chans) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, m.ConsumerIDs("cg"))
}

func TestHousekeepingDropsOnConnectionEvents(t *testing.T) {
	producers := NewProducerManager(time.Minute)
	consumers := NewConsumerManager(time.Minute, nil)
	hc := config.NewDefaultHousekeepingConfig()
	h := NewHousekeepingService(&hc, producers, consumers, clock.NewMock())

	producers.RegisterProducer("pg", channel("p", "10.0.0.1:1"))
	consumers.RegisterConsumer(consumerData("cg", "t"), channel("c", "10.0.0.2:1"))
	consumers.RegisterConsumer(consumerData("cg", "t"), channel("d", "10.0.0.3:1"))

	h.OnClose("10.0.0.1:1")
	h.OnIdle("10.0.0.2:1")
	assert.Equal(t, 0, producers.ChannelCount())
	assert.Equal(t, []string{"d"}, consumers.ConsumerIDs("cg"))
}

func TestHousekeepingSweepsOnTick(t *testing.T) {
	mock := clock.NewMock()
	cfg := &config.HousekeepingConfig{IntervalMs: 1000, ChannelExpiredMs: 10}
	producers := NewProducerManager(time.Duration(cfg.ChannelExpiredMs) * time.Millisecond)
	h := NewHousekeepingService(cfg, producers, NewConsumerManager(time.Minute, nil), mock)
	require.NoError(t, h.Start())
	assert.ErrorIs(t, h.Start(), ErrAlreadyStarted)
	defer h.Shutdown()

	producers.RegisterProducer("pg", channel("p", "10.0.0.1:1"))
	time.Sleep(30 * time.Millisecond)

	assert.Eventually(t, func() bool {
		mock.Add(time.Second)
		return producers.ChannelCount() == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, h.Shutdown())
	require.NoError(t, h.Shutdown())
}

type pushLog struct {
	mu    sync.Mutex
	addrs []string
}

func (p *pushLog) Notify(remoteAddr string, cmd *protocol.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addrs = append(p.addrs, remoteAddr)
	return nil
}

func (p *pushLog) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.addrs)
}

func TestConsumerIdsNotifierPushesToRemainingMembers(t *testing.T) {
	notifier := &ConsumerIdsNotifier{}
	m := NewConsumerManager(time.Minute, notifier)
	m.RegisterConsumer(consumerData("cg", "t"), channel("c1", "10.0.0.1:1"))

	pushes := &pushLog{}
	notifier.SetTarget(pushes)
	m.RegisterConsumer(consumerData("cg", "t"), channel("c2", "10.0.0.2:1"))
	assert.Equal(t, 2, pushes.count())

	m.UnregisterConsumer("cg", "10.0.0.2:1")
	assert.Eventually(t, func() bool { return pushes.count() == 3 }, time.Second, 5*time.Millisecond)
}
