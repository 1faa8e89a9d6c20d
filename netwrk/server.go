package netwrk

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/core"
	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/interceptor"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/operation_dispatcher"
	"github.com/xiaogangfan/rocketmq/protocol"
	"github.com/xiaogangfan/rocketmq/worker_pool"
)

var ErrNotRunning = errors.New("not running")

// Server accepts client connections and feeds decoded requests to the registry. One reader and one writer
// goroutine serve each connection; processing happens on the pools the registry binds.
type Server struct {
	ModeStateMachine
	cfg      *config.ServerConfig
	registry *operation_dispatcher.Registry
	events   core.ConnectionEventListener
	reqIds   *ids.RequestIDGenerator

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	mu    sync.Mutex
	conns map[*serverConn]struct{}
	wg    sync.WaitGroup
}

// NewServer builds a server around registry. events may be nil.
func NewServer(cfg *config.ServerConfig, nodeId ids.ID, registry *operation_dispatcher.Registry, events core.ConnectionEventListener) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ModeStateMachine: *NewModeStateMachine(),
		cfg:              cfg,
		registry:         registry,
		events:           events,
		reqIds:           ids.NewRequestIDGenerator(nodeId),
		ctx:              ctx,
		cancel:           cancel,
		conns:            make(map[*serverConn]struct{}),
	}
}

func (s *Server) RegisterProcessor(op protocol.Opcode, proc core.Processor, pool *worker_pool.Pool, chain *interceptor.Chain) error {
	return s.registry.Register(op, proc, pool, chain)
}

func (s *Server) Registry() *operation_dispatcher.Registry {
	return s.registry
}

// Addr is the bound listen address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Start() error {
	if oldState, ok := s.TransitionToState(StateStarting); !ok {
		return fmt.Errorf("cannot start server from state %v", oldState)
	}
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.ListenPort))
	if err != nil {
		s.TransitionToState(StateNone)
		return fmt.Errorf("TCP listener error: %w", err)
	}
	s.listener = listener
	s.TransitionToState(StateRunning)
	log.Infof("Server listening on %v", listener.Addr())

	s.wg.Add(1)
	go s.accept()
	return nil
}

// Shutdown stops accepting, closes every connection and waits for their goroutines. Requests already on
// a pool keep running; their replies are dropped.
func (s *Server) Shutdown() error {
	oldState, ok := s.TransitionToState(StateClosing)
	if !ok {
		log.Debugf("Server shutdown from state %v is a no-op", oldState)
		return nil
	}
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	for c := range s.conns {
		c.close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.TransitionToState(StateClosed)
	log.Infof("Server closed")
	return err
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.GetLinkState() != StateRunning {
				return
			}
			log.Errorf("TCP Accept error: %v", err)
			continue
		}
		s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	c := &serverConn{
		conn:   conn,
		addr:   conn.RemoteAddr().String(),
		out:    make(chan *protocol.Command, s.cfg.ChanBufferSize),
		closed: make(chan struct{}),
	}
	s.mu.Lock()
	if s.GetLinkState() != StateRunning {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	log.Debugf("Accepted connection from %s", c.addr)
	if s.events != nil {
		s.events.OnConnect(c.addr)
	}
	s.wg.Add(2)
	go s.write(c)
	go s.read(c)
}

func (s *Server) read(c *serverConn) {
	defer s.wg.Done()
	defer s.drop(c)
	decoder := gob.NewDecoder(c.conn)
	idle := time.Duration(s.cfg.IdleTimeoutMs) * time.Millisecond
	for {
		if idle > 0 {
			c.conn.SetReadDeadline(time.Now().Add(idle))
		}
		var req protocol.Command
		err := decoder.Decode(&req)
		if err != nil {
			s.readFailed(c, err)
			return
		}
		if req.Response {
			log.Warningf("Ignoring response %v sent by client %s", req, c.addr)
			continue
		}
		s.handle(c, &req)
	}
}

func (s *Server) readFailed(c *serverConn, err error) {
	if s.events == nil {
		return
	}
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), c.isClosed():
		s.events.OnClose(c.addr)
	case errors.As(err, &netErr) && netErr.Timeout():
		log.Debugf("Connection %s idle, closing", c.addr)
		s.events.OnIdle(c.addr)
	default:
		log.Warningf("Connection %s failed: %v", c.addr, err)
		s.events.OnException(c.addr, err)
	}
}

func (s *Server) handle(c *serverConn, req *protocol.Command) {
	rc := core.NewRequestContext(req, c.addr)
	ctx := core.WithMeta(s.ctx, &core.ContextMeta{RequestID: s.reqIds.Next(), RemoteAddr: c.addr})
	if err := s.registry.Dispatch(ctx, rc, c.send); err != nil {
		c.send(operation_dispatcher.ResponseForError(req, err))
	}
}

func (s *Server) write(c *serverConn) {
	defer s.wg.Done()
	encoder := gob.NewEncoder(c.conn)
	for {
		select {
		case resp := <-c.out:
			if err := encoder.Encode(resp); err != nil {
				log.Errorf("Error replying to %s: %v", c.addr, err)
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (s *Server) drop(c *serverConn) {
	c.close()
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Notify pushes a one-way request to the client connected from remoteAddr.
func (s *Server) Notify(remoteAddr string, cmd *protocol.Command) error {
	s.mu.Lock()
	var target *serverConn
	for c := range s.conns {
		if c.addr == remoteAddr {
			target = c
			break
		}
	}
	s.mu.Unlock()
	if target == nil || target.isClosed() {
		return fmt.Errorf("notify %s: %w", remoteAddr, ErrConnectionClosed)
	}
	cmd.Response = false
	if !target.enqueue(cmd) {
		return fmt.Errorf("notify %s: %w", remoteAddr, ErrConnectionClosed)
	}
	return nil
}

// ConnectionCount is the number of open client connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

type serverConn struct {
	conn      net.Conn
	addr      string
	out       chan *protocol.Command
	closed    chan struct{}
	closeOnce sync.Once
}

// send queues a reply without blocking the caller, which is usually a pool worker.
func (c *serverConn) send(resp *protocol.Command) {
	c.enqueue(resp)
}

// enqueue reports whether cmd was queued. A client that lets chan_buffer_size writes pile up is too slow
// to keep: the command is dropped and the connection closed.
func (c *serverConn) enqueue(cmd *protocol.Command) bool {
	if c.isClosed() {
		log.Debugf("Dropping %v to closed connection %s", cmd, c.addr)
		return false
	}
	select {
	case c.out <- cmd:
		return true
	default:
		log.Warningf("Write buffer of %s full, dropping %v and closing the connection", c.addr, cmd)
		c.close()
		return false
	}
}

func (c *serverConn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

func (c *serverConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
