package netwrk

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/protocol"
	"github.com/xiaogangfan/rocketmq/utils"
)

var (
	ErrNoUpstream       = errors.New("no upstream address available")
	ErrConnectionClosed = errors.New("connection closed before response")
)

// Client talks request/response to upstream nodes. Connections are dialed lazily per address and reused.
type Client struct {
	ModeStateMachine
	cfg *config.ClientConfig

	upstreamMu sync.RWMutex
	upstream   []string

	connsMu sync.Mutex
	conns   map[string]*clientConn

	opaque   uint64
	inFlight utils.Semaphore
	notify   func(addr string, cmd *protocol.Command)
}

func NewClient(cfg *config.ClientConfig) *Client {
	return &Client{
		ModeStateMachine: *NewModeStateMachine(),
		cfg:              cfg,
		conns:            make(map[string]*clientConn),
		inFlight:         utils.NewSemaphore(utils.Max(cfg.MaxInFlight, 1)),
	}
}

// UpdateUpstreamAddressList replaces the naming node addresses. No connection is made here.
func (c *Client) UpdateUpstreamAddressList(addrs []string) {
	c.upstreamMu.Lock()
	defer c.upstreamMu.Unlock()
	c.upstream = append([]string(nil), addrs...)
}

func (c *Client) UpstreamAddressList() []string {
	c.upstreamMu.RLock()
	defer c.upstreamMu.RUnlock()
	return append([]string(nil), c.upstream...)
}

// SetNotifyHandler receives requests pushed by the remote side. Set it before Start.
func (c *Client) SetNotifyHandler(h func(addr string, cmd *protocol.Command)) {
	c.notify = h
}

func (c *Client) Start() error {
	if oldState, ok := c.TransitionToState(StateStarting); !ok {
		return fmt.Errorf("cannot start client from state %v", oldState)
	}
	c.TransitionToState(StateRunning)
	log.Infof("Client started with upstream %v", c.UpstreamAddressList())
	return nil
}

// Shutdown closes all connections and fails the requests waiting on them.
func (c *Client) Shutdown() error {
	if oldState, ok := c.TransitionToState(StateClosing); !ok {
		log.Debugf("Client shutdown from state %v is a no-op", oldState)
		return nil
	}
	c.connsMu.Lock()
	conns := c.conns
	c.conns = make(map[string]*clientConn)
	c.connsMu.Unlock()
	for _, cc := range conns {
		cc.close(ErrConnectionClosed)
	}
	c.TransitionToState(StateClosed)
	log.Infof("Client closed")
	return nil
}

// InvokeSync sends req to addr and waits for the matching response. Without a deadline on ctx the configured
// request timeout applies.
func (c *Client) InvokeSync(ctx context.Context, addr string, req *protocol.Command) (*protocol.Command, error) {
	if c.GetLinkState() != StateRunning {
		return nil, fmt.Errorf("client: %w", ErrNotRunning)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout())
		defer cancel()
	}
	if err := c.inFlight.AcquireCtx(ctx); err != nil {
		return nil, err
	}
	defer c.inFlight.Release(1)

	cc, err := c.connection(addr)
	if err != nil {
		return nil, err
	}

	req.Opaque = atomic.AddUint64(&c.opaque, 1)
	req.Response = false
	respChan, err := cc.send(req)
	if err != nil {
		return nil, err
	}
	select {
	case resp := <-respChan:
		if resp == nil {
			return nil, fmt.Errorf("invoke %v on %s: %w", req.Opcode(), addr, cc.err())
		}
		return resp, nil
	case <-ctx.Done():
		cc.forget(req.Opaque)
		return nil, fmt.Errorf("invoke %v on %s: %w", req.Opcode(), addr, ctx.Err())
	}
}

// InvokeUpstream tries the upstream addresses in order until one answers.
func (c *Client) InvokeUpstream(ctx context.Context, req *protocol.Command) (*protocol.Command, error) {
	addrs := c.UpstreamAddressList()
	if len(addrs) == 0 {
		return nil, ErrNoUpstream
	}
	var errs []error
	for _, addr := range addrs {
		resp, err := c.InvokeSync(ctx, addr, req)
		if err == nil {
			return resp, nil
		}
		log.Warningf("Upstream %s failed for %v: %v", addr, req.Opcode(), err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

func (c *Client) connection(addr string) (*clientConn, error) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	if cc, ok := c.conns[addr]; ok && !cc.isClosed() {
		return cc, nil
	}
	var conn net.Conn
	dial := func() error {
		var err error
		conn, err = net.DialTimeout("tcp", addr, c.cfg.DialTimeout())
		return err
	}
	log.Debugf("Dialing %s", addr)
	if err := utils.Retry(dial, utils.Max(c.cfg.DialAttempts, 1), c.cfg.DialTimeout()/10); err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	cc := newClientConn(addr, conn)
	cc.notify = c.notify
	c.conns[addr] = cc
	go cc.read(func() {
		c.connsMu.Lock()
		if c.conns[addr] == cc {
			delete(c.conns, addr)
		}
		c.connsMu.Unlock()
	})
	return cc, nil
}

type clientConn struct {
	addr string
	conn net.Conn

	writeMu sync.Mutex
	encoder *gob.Encoder

	mu       sync.Mutex
	pending  map[uint64]chan *protocol.Command
	closed   bool
	closeErr error

	notify func(addr string, cmd *protocol.Command)
}

func newClientConn(addr string, conn net.Conn) *clientConn {
	return &clientConn{
		addr:    addr,
		conn:    conn,
		encoder: gob.NewEncoder(conn),
		pending: make(map[uint64]chan *protocol.Command),
	}
}

func (cc *clientConn) send(req *protocol.Command) (chan *protocol.Command, error) {
	respChan := make(chan *protocol.Command, 1)
	cc.mu.Lock()
	if cc.closed {
		cc.mu.Unlock()
		return nil, cc.closeErr
	}
	cc.pending[req.Opaque] = respChan
	cc.mu.Unlock()

	cc.writeMu.Lock()
	err := cc.encoder.Encode(req)
	cc.writeMu.Unlock()
	if err != nil {
		cc.close(err)
		return nil, fmt.Errorf("send to %s: %w", cc.addr, err)
	}
	return respChan, nil
}

func (cc *clientConn) read(onClose func()) {
	defer onClose()
	decoder := gob.NewDecoder(cc.conn)
	for {
		var resp protocol.Command
		if err := decoder.Decode(&resp); err != nil {
			cc.close(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			return
		}
		if !resp.Response {
			if cc.notify != nil {
				cc.notify(cc.addr, &resp)
			} else {
				log.Debugf("Ignoring pushed %v from %s", resp.Opcode(), cc.addr)
			}
			continue
		}
		cc.mu.Lock()
		respChan, ok := cc.pending[resp.Opaque]
		delete(cc.pending, resp.Opaque)
		cc.mu.Unlock()
		if !ok {
			log.Debugf("Dropping response %v from %s with no waiter", resp, cc.addr)
			continue
		}
		respChan <- &resp
	}
}

func (cc *clientConn) forget(opaque uint64) {
	cc.mu.Lock()
	delete(cc.pending, opaque)
	cc.mu.Unlock()
}

// close fails every pending request by closing its channel.
func (cc *clientConn) close(err error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.closed {
		return
	}
	cc.closed = true
	cc.closeErr = err
	cc.conn.Close()
	for opaque, respChan := range cc.pending {
		close(respChan)
		delete(cc.pending, opaque)
	}
}

func (cc *clientConn) isClosed() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.closed
}

func (cc *clientConn) err() error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.closeErr == nil {
		return ErrConnectionClosed
	}
	return cc.closeErr
}
