// Package snode wires the snode together: pools, handler registry, interceptor chains, the inbound server
// and the services the handlers depend on, and sequences their startup and shutdown.
package snode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xiaogangfan/rocketmq/client_manager"
	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/core"
	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/interceptor"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/measurement"
	"github.com/xiaogangfan/rocketmq/netwrk"
	"github.com/xiaogangfan/rocketmq/offset"
	"github.com/xiaogangfan/rocketmq/operation_dispatcher"
	"github.com/xiaogangfan/rocketmq/processor"
	"github.com/xiaogangfan/rocketmq/service"
	"github.com/xiaogangfan/rocketmq/store/kv_store"
	"github.com/xiaogangfan/rocketmq/utils"
	"github.com/xiaogangfan/rocketmq/worker_pool"
)

var ErrBadState = errors.New("illegal controller state")

// Options are the collaborators a controller does not build itself. The zero value is usable.
type Options struct {
	Loader     interceptor.Loader    // interceptors of the send and consume chains
	Registerer prometheus.Registerer // metrics are not registered when nil
	Clock      clock.Clock
}

type Controller struct {
	id     ids.ID
	cfg    *config.Config
	loader interceptor.Loader

	pools        *worker_pool.PoolSet
	registry     *operation_dispatcher.Registry
	sendChain    *interceptor.Chain
	consumeChain *interceptor.Chain
	scheduler    *utils.Scheduler

	client       *netwrk.Client
	nnode        *service.NnodeService
	enode        *service.EnodeService
	scheduled    *service.ScheduledService
	producers    *client_manager.ProducerManager
	consumers    *client_manager.ConsumerManager
	notifier     *client_manager.ConsumerIdsNotifier
	housekeeping *client_manager.HousekeepingService
	store        *kv_store.KVStore
	offsets      *offset.ConsumerOffsetManager
	measurement  *measurement.Measurement
	processors   map[string]core.Processor

	server *netwrk.Server // built by Initialize

	mu    sync.Mutex
	state State
}

func NewController(id ids.ID, cfg *config.Config, opts Options) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	loader := opts.Loader
	if loader == nil {
		loader = interceptor.StaticLoader{}
	}

	c := &Controller{id: id, cfg: cfg, loader: loader}

	// the naming connector learns its addresses before anything else exists
	c.client = netwrk.NewClient(&cfg.Client)
	c.nnode = service.NewNnodeService(c.client, cfg.SnodeName, advertisedAddr(cfg.Server.ListenPort))
	c.nnode.UpdateNnodeAddressList(cfg.NnodeAddrs)

	specs := make([]worker_pool.Spec, 0, 4)
	for _, pc := range []config.PoolConfig{cfg.SendPool, cfg.PullPool, cfg.HeartbeatPool, cfg.ConsumerManagePool} {
		specs = append(specs, worker_pool.SpecFromConfig(pc))
	}
	pools, err := worker_pool.NewPoolSet(specs, worker_pool.NewMetrics(opts.Registerer))
	if err != nil {
		return nil, err
	}
	c.pools = pools
	c.registry = operation_dispatcher.NewRegistry(cfg.Server.HandlerTimeout(), operation_dispatcher.NewMetrics(opts.Registerer))
	c.sendChain = interceptor.NewChain("send")
	c.consumeChain = interceptor.NewChain("consume")
	c.scheduler = utils.NewScheduler("snode-controller", clk)
	statsPeriod := time.Duration(cfg.PoolStatsIntervalMs) * time.Millisecond
	if err := c.scheduler.ScheduleAtFixedRate("pool-stats", statsPeriod, statsPeriod, c.pools.SampleQueues); err != nil {
		return nil, err
	}

	expiry := time.Duration(cfg.Housekeeping.ChannelExpiredMs) * time.Millisecond
	c.notifier = &client_manager.ConsumerIdsNotifier{}
	c.producers = client_manager.NewProducerManager(expiry)
	c.consumers = client_manager.NewConsumerManager(expiry, c.notifier)
	c.housekeeping = client_manager.NewHousekeepingService(&cfg.Housekeeping, c.producers, c.consumers, clk)

	c.store = kv_store.NewStore(id, &cfg.Store)
	c.offsets = offset.NewConsumerOffsetManager(nil)
	c.enode = service.NewEnodeService(c.client, c.nnode)
	c.scheduled = service.NewScheduledService(cfg, c.offsets, c.nnode, clk)
	if cfg.Measure {
		c.measurement = measurement.NewMeasurement(id, cfg.HistoryDir, cfg.CsvPrefix, cfg.RowOutputLimit)
	}

	c.processors = map[string]core.Processor{
		config.PoolSend:           processor.NewSendMessageProcessor(c.enode),
		config.PoolPull:           processor.NewPullMessageProcessor(c.enode),
		config.PoolHeartbeat:      processor.NewHeartbeatProcessor(c.producers, c.consumers),
		config.PoolConsumerManage: processor.NewConsumerManageProcessor(c.consumers, c.offsets, c.enode),
	}
	log.Infof("Snode %s (%v) constructed", cfg.SnodeName, id)
	return c, nil
}

func advertisedAddr(port int) string {
	host, err := os.Hostname()
	if err != nil {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize builds the inbound server, registers the opcode table and seals the registry and chains.
// Calling it again after success is a no-op.
func (c *Controller) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initializeLocked()
}

func (c *Controller) initializeLocked() error {
	switch c.state {
	case StateConstructed:
	case StateInitialized, StateRunning:
		return nil
	default:
		return &LifecycleError{Service: "controller", Op: "initialize", Err: fmt.Errorf("%w: %v", ErrBadState, c.state)}
	}
	if err := c.openOffsetStore(); err != nil {
		return &LifecycleError{Service: "offset store", Op: "initialize", Err: err}
	}

	c.server = netwrk.NewServer(&c.cfg.Server, c.id, c.registry, c.housekeeping)
	c.notifier.SetTarget(c.server)
	if c.measurement != nil {
		c.registry.SetRecorder(c.measurement)
	}
	if err := c.registerProcessors(); err != nil {
		return &LifecycleError{Service: "registry", Op: "initialize", Err: err}
	}
	if err := c.sendChain.Append(c.loader.LoadSendInterceptors()...); err != nil {
		return &LifecycleError{Service: "send chain", Op: "initialize", Err: err}
	}
	if err := c.consumeChain.Append(c.loader.LoadConsumeInterceptors()...); err != nil {
		return &LifecycleError{Service: "consume chain", Op: "initialize", Err: err}
	}
	c.sendChain.Seal()
	c.consumeChain.Seal()
	c.registry.Seal()

	c.state = StateInitialized
	log.Infof("Snode %s initialized with %d opcodes", c.cfg.SnodeName, len(c.registry.Opcodes()))
	return nil
}

func (c *Controller) openOffsetStore() error {
	if err := c.store.Initialize(); err != nil {
		return err
	}
	tbl, err := c.store.OpenTable(offset.TableName)
	if err != nil {
		return err
	}
	return c.offsets.Attach(tbl)
}

func (c *Controller) registerProcessors() error {
	for _, b := range opcodeTable {
		pool, ok := c.pools.Get(b.class)
		if !ok {
			return fmt.Errorf("no pool %q for %v", b.class, b.op)
		}
		var chain *interceptor.Chain
		switch b.chain {
		case sendChain:
			chain = c.sendChain
		case consumeChain:
			chain = c.consumeChain
		}
		if err := c.server.RegisterProcessor(b.op, c.processors[b.class], pool, chain); err != nil {
			return err
		}
	}
	return nil
}

// Start initializes when needed and starts the services in dependency order. The first failure aborts
// startup; the caller still owns a Shutdown.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		return nil
	}
	if err := c.initializeLocked(); err != nil {
		return err
	}
	if c.state != StateInitialized {
		return &LifecycleError{Service: "controller", Op: "start", Err: fmt.Errorf("%w: %v", ErrBadState, c.state)}
	}

	steps := []struct {
		name string
		svc  core.Service
	}{
		{"server", c.server},
		{"client", c.client},
		{"scheduled service", c.scheduled},
		{"housekeeping", c.housekeeping},
		{"controller scheduler", c.scheduler},
	}
	for _, step := range steps {
		if err := step.svc.Start(); err != nil {
			log.Errorf("Snode %s failed to start %s: %v", c.cfg.SnodeName, step.name, err)
			return &LifecycleError{Service: step.name, Op: "start", Err: err}
		}
	}
	c.state = StateRunning
	log.Infof("Snode %s started on %v", c.cfg.SnodeName, c.server.Addr())
	return nil
}

// Shutdown tears everything down in order. Every step runs even when an earlier one failed; failures are
// logged. Safe from any state and safe to call twice.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	if c.state == StateShuttingDown || c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.state = StateShuttingDown
	c.mu.Unlock()
	log.Infof("Snode %s shutting down", c.cfg.SnodeName)

	var errs []error
	stop := func(name string, f func() error) {
		if err := safeStop(f); err != nil {
			errs = append(errs, &LifecycleError{Service: name, Op: "shutdown", Err: err})
		}
	}
	if c.server != nil {
		stop("server", c.server.Shutdown)
	}
	stop("pools", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout())
		defer cancel()
		return c.pools.ShutdownAll(ctx)
	})
	stop("controller scheduler", c.scheduler.Shutdown)
	stop("client", c.client.Shutdown)
	stop("scheduled service", c.scheduled.Shutdown)
	stop("housekeeping", c.housekeeping.Shutdown)
	stop("offset store", c.store.Close)
	if c.measurement != nil {
		stop("measurement", c.measurement.Close)
	}

	if err := errors.Join(errs...); err != nil {
		log.Errorf("Snode %s shutdown finished with errors: %v", c.cfg.SnodeName, err)
	}
	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	log.Infof("Snode %s stopped", c.cfg.SnodeName)
}

func safeStop(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f()
}

func (c *Controller) Registry() *operation_dispatcher.Registry {
	return c.registry
}

func (c *Controller) Pools() *worker_pool.PoolSet {
	return c.pools
}

// Server is nil before Initialize
func (c *Controller) Server() *netwrk.Server {
	return c.server
}

func (c *Controller) Client() *netwrk.Client {
	return c.client
}

func (c *Controller) Offsets() *offset.ConsumerOffsetManager {
	return c.offsets
}
