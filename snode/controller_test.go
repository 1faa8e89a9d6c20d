package snode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/core"
	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/interceptor"
	"github.com/xiaogangfan/rocketmq/messages"
	"github.com/xiaogangfan/rocketmq/netwrk"
	"github.com/xiaogangfan/rocketmq/operation_dispatcher"
	"github.com/xiaogangfan/rocketmq/protocol"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.MakeDefaultConfig()
	cfg.Server.ListenPort = 0
	cfg.Store.StoreEngine = config.EngineInMemory
	cfg.Store.DBDir = t.TempDir()
	cfg.HistoryDir = t.TempDir()
	cfg.ShutdownTimeoutMs = 1000
	return cfg
}

func newController(t *testing.T, cfg *config.Config, opts Options) *Controller {
	c, err := NewController(*ids.NewID(1, 1), cfg, opts)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

// trace records interceptor hooks in call order
type trace struct {
	mu    sync.Mutex
	calls []string
}

func (tr *trace) add(s string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.calls = append(tr.calls, s)
}

func (tr *trace) get() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.calls...)
}

type tracingInterceptor struct {
	n  int
	tr *trace
}

func (i tracingInterceptor) Name() string { return fmt.Sprintf("trace%d", i.n) }

func (i tracingInterceptor) Before(ctx context.Context, rc *core.RequestContext) error {
	i.tr.add(fmt.Sprintf("before%d", i.n))
	return nil
}

func (i tracingInterceptor) After(ctx context.Context, rc *core.RequestContext, resp *protocol.Command, err error) {
	i.tr.add(fmt.Sprintf("after%d", i.n))
}

// dispatch runs one request through the registry and waits for its reply
func dispatch(t *testing.T, c *Controller, req *protocol.Command) (*protocol.Command, error) {
	replies := make(chan *protocol.Command, 1)
	err := c.Registry().Dispatch(context.Background(), core.NewRequestContext(req, "10.0.0.1:4000"), func(resp *protocol.Command) {
		replies <- resp
	})
	if err != nil {
		return nil, err
	}
	select {
	case resp := <-replies:
		return resp, nil
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
		return nil, nil
	}
}

func TestNewControllerRejectsBadConfig(t *testing.T) {
	cases := map[string]func(c *config.Config){
		"empty pull pool":       func(c *config.Config) { c.PullPool.MaxSize = 0 },
		"pull label reused":     func(c *config.Config) { c.ConsumerManagePool.Name = config.PoolPull },
		"send pool renamed":     func(c *config.Config) { c.SendPool.Name = "producer" },
		"negative reply buffer": func(c *config.Config) { c.Server.ChanBufferSize = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(cfg)
			c, err := NewController(*ids.NewID(1, 1), cfg, Options{})
			assert.Nil(t, c)
			var cfgErr *config.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestNnodeAddressesSeededAtConstruction(t *testing.T) {
	cfg := testConfig(t)
	cfg.NnodeAddrs = []string{"10.0.0.1:9876", "10.0.0.2:9876"}
	c := newController(t, cfg, Options{})

	assert.Equal(t, StateConstructed, c.State())
	assert.Nil(t, c.Server())
	assert.Equal(t, cfg.NnodeAddrs, c.Client().UpstreamAddressList())
}

func TestOpcodeTableBindsPoolsAndChains(t *testing.T) {
	c := newController(t, testConfig(t), Options{})
	require.NoError(t, c.Initialize())
	assert.True(t, c.Registry().Sealed())

	expected := map[protocol.Opcode][2]string{
		protocol.SendMessageV2:           {config.PoolSend, "send"},
		protocol.ConsumerSendMsgBack:     {config.PoolSend, "send"},
		protocol.HeartBeat:               {config.PoolHeartbeat, ""},
		protocol.UnregisterClient:        {config.PoolHeartbeat, ""},
		protocol.SnodePullMessage:        {config.PoolPull, "consume"},
		protocol.GetConsumerListByGroup:  {config.PoolConsumerManage, "consume"},
		protocol.UpdateConsumerOffset:    {config.PoolConsumerManage, "consume"},
		protocol.QueryConsumerOffset:     {config.PoolConsumerManage, "consume"},
		protocol.GetMinOffset:            {config.PoolConsumerManage, "consume"},
		protocol.GetMaxOffset:            {config.PoolConsumerManage, "consume"},
		protocol.SearchOffsetByTimestamp: {config.PoolConsumerManage, "consume"},
	}
	assert.Len(t, c.Registry().Opcodes(), len(expected))
	for op, want := range expected {
		b, ok := c.Registry().Lookup(op)
		require.True(t, ok, op.String())
		assert.Equal(t, want[0], b.Pool.Name(), op.String())
		if want[1] == "" {
			assert.Nil(t, b.Chain, op.String())
		} else {
			require.NotNil(t, b.Chain, op.String())
			assert.Equal(t, want[1], b.Chain.Name(), op.String())
		}
	}

	pull, _ := c.Pools().Get(config.PoolPull)
	manage, _ := c.Pools().Get(config.PoolConsumerManage)
	assert.NotSame(t, pull, manage)
}

func TestInitializeTwiceIsNoop(t *testing.T) {
	c := newController(t, testConfig(t), Options{})
	require.NoError(t, c.Initialize())
	require.NoError(t, c.Initialize())
	assert.Equal(t, StateInitialized, c.State())
}

func TestStartWithoutInitializeRegistersSameTable(t *testing.T) {
	a := newController(t, testConfig(t), Options{})
	require.NoError(t, a.Initialize())

	b := newController(t, testConfig(t), Options{})
	require.NoError(t, b.Start())
	assert.Equal(t, StateRunning, b.State())
	assert.Equal(t, a.Registry().Opcodes(), b.Registry().Opcodes())
	require.NoError(t, b.Start())
}

func TestUnknownOpcodeNeverSaturated(t *testing.T) {
	cfg := testConfig(t)
	cfg.PullPool = config.PoolConfig{Name: config.PoolPull, CoreSize: 1, MaxSize: 1, QueueCapacity: 1, IdleTimeoutMs: 1000}
	c := newController(t, cfg, Options{})
	require.NoError(t, c.Initialize())

	release := saturate(t, c, config.PoolPull, 2)
	defer close(release)

	_, err := dispatch(t, c, protocol.NewRequest(protocol.Opcode(9999), nil, nil))
	assert.ErrorIs(t, err, operation_dispatcher.ErrUnknownOpcode)
	assert.NotErrorIs(t, err, operation_dispatcher.ErrPoolSaturated)
}

// saturate fills a pool with n blocked tasks
func saturate(t *testing.T, c *Controller, pool string, n int) chan struct{} {
	p, ok := c.Pools().Get(pool)
	require.True(t, ok)
	release := make(chan struct{})
	for i := 0; i < n; i++ {
		require.NoError(t, p.Submit(func() { <-release }))
	}
	return release
}

func TestSaturatedPullPoolLeavesHeartbeatWorking(t *testing.T) {
	cfg := testConfig(t)
	cfg.PullPool = config.PoolConfig{Name: config.PoolPull, CoreSize: 1, MaxSize: 1, QueueCapacity: 1, IdleTimeoutMs: 1000}
	c := newController(t, cfg, Options{})
	require.NoError(t, c.Initialize())

	release := saturate(t, c, config.PoolPull, 2)
	defer close(release)

	_, err := dispatch(t, c, protocol.NewRequest(protocol.SnodePullMessage, nil, nil))
	require.ErrorIs(t, err, operation_dispatcher.ErrPoolSaturated)
	assert.Equal(t, protocol.SystemBusy, operation_dispatcher.ResponseForError(protocol.NewRequest(protocol.SnodePullMessage, nil, nil), err).ResponseCode())

	body, err := messages.Encode(messages.HeartbeatData{ClientID: "c1"})
	require.NoError(t, err)
	resp, err := dispatch(t, c, protocol.NewRequest(protocol.HeartBeat, nil, body))
	require.NoError(t, err)
	assert.Equal(t, protocol.Success, resp.ResponseCode())
}

func tracingLoader(tr *trace) interceptor.Loader {
	return interceptor.StaticLoader{Send: []interceptor.Interceptor{
		tracingInterceptor{1, tr}, tracingInterceptor{2, tr}, tracingInterceptor{3, tr},
	}}
}

func TestInterceptorOrderOnSuccessAndFailure(t *testing.T) {
	want := []string{"before1", "before2", "before3", "after3", "after2", "after1"}
	tests := []struct {
		name   string
		fields map[string]string
	}{
		// missing enode name is answered by the handler itself
		{"handler answers", map[string]string{protocol.FieldTopic: "orders"}},
		// an enode nobody knows makes the handler fail
		{"handler fails", map[string]string{protocol.FieldTopic: "orders", protocol.FieldEnodeName: "enode-x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &trace{}
			c := newController(t, testConfig(t), Options{Loader: tracingLoader(tr)})
			require.NoError(t, c.Initialize())

			resp, err := dispatch(t, c, protocol.NewRequest(protocol.SendMessageV2, tt.fields, nil))
			require.NoError(t, err)
			assert.Equal(t, protocol.SystemError, resp.ResponseCode())
			assert.Equal(t, want, tr.get())
		})
	}
}

func TestShutdownTwiceAndWorkersGone(t *testing.T) {
	c := newController(t, testConfig(t), Options{})
	require.NoError(t, c.Start())

	body, err := messages.Encode(messages.HeartbeatData{ClientID: "c1"})
	require.NoError(t, err)
	_, err = dispatch(t, c, protocol.NewRequest(protocol.HeartBeat, nil, body))
	require.NoError(t, err)

	c.Shutdown()
	assert.Equal(t, StateStopped, c.State())
	assert.Eventually(t, func() bool { return c.Pools().WorkerCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.NotPanics(t, c.Shutdown)

	_, err = dispatch(t, c, protocol.NewRequest(protocol.HeartBeat, nil, body))
	assert.ErrorIs(t, err, operation_dispatcher.ErrShuttingDown)
	assert.Error(t, c.Start())
}

func TestShutdownBeforeInitialize(t *testing.T) {
	c := newController(t, testConfig(t), Options{})
	assert.NotPanics(t, c.Shutdown)
	assert.Equal(t, StateStopped, c.State())
}

func TestStartFailureIsLifecycleError(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(t)
	cfg.Server.ListenPort = busy.Addr().(*net.TCPAddr).Port
	c := newController(t, cfg, Options{})

	err = c.Start()
	var lerr *LifecycleError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "server", lerr.Service)
	assert.Equal(t, "start", lerr.Op)
	assert.Equal(t, StateInitialized, c.State())
}

func TestEndToEndOverTCP(t *testing.T) {
	cfg := testConfig(t)
	cfg.Measure = true
	cfg.RowOutputLimit = 100
	c := newController(t, cfg, Options{})
	require.NoError(t, c.Start())

	cli := netwrk.NewClient(config.NewDefaultClientConfig())
	require.NoError(t, cli.Start())
	defer cli.Shutdown()
	addr := fmt.Sprintf("127.0.0.1:%d", c.Server().Addr().(*net.TCPAddr).Port)

	body, err := messages.Encode(messages.HeartbeatData{
		ClientID:        "client-1",
		ConsumerDataSet: []messages.ConsumerData{{GroupName: "cg", Subscriptions: []messages.SubscriptionData{{Topic: "orders"}}}},
	})
	require.NoError(t, err)
	resp, err := cli.InvokeSync(context.Background(), addr, protocol.NewRequest(protocol.HeartBeat, nil, body))
	require.NoError(t, err)
	assert.Equal(t, protocol.Success, resp.ResponseCode())

	resp, err = cli.InvokeSync(context.Background(), addr, protocol.NewRequest(protocol.GetConsumerListByGroup, map[string]string{protocol.FieldConsumerGroup: "cg"}, nil))
	require.NoError(t, err)
	require.Equal(t, protocol.Success, resp.ResponseCode())
	var list messages.ConsumerListBody
	require.NoError(t, messages.Decode(resp.Body, &list))
	assert.Equal(t, []string{"client-1"}, list.ConsumerIDList)

	offsetFields := map[string]string{
		protocol.FieldTopic: "orders", protocol.FieldConsumerGroup: "cg", protocol.FieldQueueID: "0", protocol.FieldOffset: "77",
	}
	resp, err = cli.InvokeSync(context.Background(), addr, protocol.NewRequest(protocol.UpdateConsumerOffset, offsetFields, nil))
	require.NoError(t, err)
	assert.Equal(t, protocol.Success, resp.ResponseCode())
	resp, err = cli.InvokeSync(context.Background(), addr, protocol.NewRequest(protocol.QueryConsumerOffset, offsetFields, nil))
	require.NoError(t, err)
	assert.Equal(t, "77", resp.Field(protocol.FieldOffset))

	resp, err = cli.InvokeSync(context.Background(), addr, protocol.NewRequest(protocol.Opcode(4242), nil, nil))
	require.NoError(t, err)
	assert.Equal(t, protocol.RequestCodeNotSupported, resp.ResponseCode())
}

func TestOffsetsSurviveRestart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.StoreEngine = config.EngineLevelDB

	c := newController(t, cfg, Options{})
	require.NoError(t, c.Initialize())
	fields := map[string]string{
		protocol.FieldTopic: "orders", protocol.FieldConsumerGroup: "cg", protocol.FieldQueueID: "1", protocol.FieldOffset: "12",
	}
	resp, err := dispatch(t, c, protocol.NewRequest(protocol.UpdateConsumerOffset, fields, nil))
	require.NoError(t, err)
	require.Equal(t, protocol.Success, resp.ResponseCode())
	c.Shutdown()

	restarted := newController(t, cfg, Options{})
	require.NoError(t, restarted.Initialize())
	resp, err = dispatch(t, restarted, protocol.NewRequest(protocol.QueryConsumerOffset, fields, nil))
	require.NoError(t, err)
	assert.Equal(t, "12", resp.Field(protocol.FieldOffset))
}

func TestLifecycleErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := &LifecycleError{Service: "client", Op: "start", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "client start: boom", err.Error())
	assert.Equal(t, "ShuttingDown", StateShuttingDown.String())
}
