package operation_dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xiaogangfan/rocketmq/core"
	"github.com/xiaogangfan/rocketmq/interceptor"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/protocol"
	"github.com/xiaogangfan/rocketmq/utils"
	"github.com/xiaogangfan/rocketmq/worker_pool"
)

var (
	ErrUnknownOpcode   = errors.New("no processor registered for opcode")
	ErrPoolSaturated   = errors.New("processor pool saturated")
	ErrShuttingDown    = errors.New("processor pool is shut down")
	ErrRegistrySealed  = errors.New("registry is sealed")
	ErrDuplicateOpcode = errors.New("opcode already registered")
)

// dispatch outcomes, used as metric and measurement labels
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomeUnknown   = "unknown"
	OutcomeCancelled = "cancelled"
)

// Binding ties an opcode to the processor that handles it, the pool it runs on and an optional chain.
type Binding struct {
	Opcode    protocol.Opcode
	Processor core.Processor
	Pool      *worker_pool.Pool
	Chain     *interceptor.Chain
}

// Recorder receives one row per executed request.
type Recorder interface {
	Record(op protocol.Opcode, pool string, outcome string, startMicro, endMicro int64)
}

// Registry maps opcodes to bindings. Registration happens during initialization only; after Seal the table is
// read concurrently without locking.
type Registry struct {
	mu       sync.Mutex
	sealed   bool
	bindings map[protocol.Opcode]Binding

	handlerTimeout time.Duration
	metrics        *Metrics
	recorder       Recorder
}

func NewRegistry(handlerTimeout time.Duration, metrics *Metrics) *Registry {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Registry{
		bindings:       make(map[protocol.Opcode]Binding),
		handlerTimeout: handlerTimeout,
		metrics:        metrics,
	}
}

// SetRecorder must be called before Seal.
func (r *Registry) SetRecorder(rec Recorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

// Register binds op. A second registration of the same opcode is rejected.
func (r *Registry) Register(op protocol.Opcode, proc core.Processor, pool *worker_pool.Pool, chain *interceptor.Chain) error {
	if proc == nil || pool == nil {
		return fmt.Errorf("register %v: processor and pool are required", op)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("register %v: %w", op, ErrRegistrySealed)
	}
	if _, exists := r.bindings[op]; exists {
		return fmt.Errorf("register %v: %w", op, ErrDuplicateOpcode)
	}
	chainName := "none"
	if chain != nil {
		chainName = chain.Name()
	}
	log.Infof("Registering %v on pool %s with chain %s", op, pool.Name(), chainName)
	r.bindings[op] = Binding{Opcode: op, Processor: proc, Pool: pool, Chain: chain}
	return nil
}

func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

func (r *Registry) Lookup(op protocol.Opcode) (Binding, bool) {
	b, ok := r.bindings[op]
	return b, ok
}

// Opcodes lists registered opcodes in ascending order.
func (r *Registry) Opcodes() []protocol.Opcode {
	ops := make([]protocol.Opcode, 0, len(r.bindings))
	for op := range r.bindings {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Dispatch hands rc to the pool bound to its opcode and returns once it is queued. The response, if any, is
// passed to reply from the pool worker. An unbound opcode gives ErrUnknownOpcode; a full pool gives
// ErrPoolSaturated. In both cases reply is not called.
func (r *Registry) Dispatch(ctx context.Context, rc *core.RequestContext, reply func(*protocol.Command)) error {
	op := rc.Request.Opcode()
	b, ok := r.bindings[op]
	if !ok {
		r.metrics.Dispatched.WithLabelValues(op.String(), OutcomeUnknown).Inc()
		log.Debugf("No processor for %v from %s", op, rc.RemoteAddr)
		return fmt.Errorf("%w: %v", ErrUnknownOpcode, op)
	}

	err := b.Pool.Submit(func() {
		r.execute(ctx, b, rc, reply)
	})
	if err != nil {
		r.metrics.Dispatched.WithLabelValues(op.String(), OutcomeRejected).Inc()
		if errors.Is(err, worker_pool.ErrPoolShutdown) {
			return fmt.Errorf("%w: %w", ErrShuttingDown, err)
		}
		log.Warningf("Rejecting %v from %s: %v", op, rc.RemoteAddr, err)
		return fmt.Errorf("%w: %w", ErrPoolSaturated, err)
	}
	return nil
}

func (r *Registry) execute(ctx context.Context, b Binding, rc *core.RequestContext, reply func(*protocol.Command)) {
	if err := ctx.Err(); err != nil {
		r.metrics.Dispatched.WithLabelValues(b.Opcode.String(), OutcomeCancelled).Inc()
		log.Debugf("Dropping %v from %s, request context done: %v", b.Opcode, rc.RemoteAddr, err)
		return
	}
	if r.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.handlerTimeout)
		defer cancel()
	}

	start := utils.CurrentTimeInMicro()
	resp, err := b.Chain.Invoke(ctx, rc, b.Processor.Process)
	end := utils.CurrentTimeInMicro()

	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
		log.Errorf("Processing %v from %s failed: %v", b.Opcode, rc.RemoteAddr, err)
		resp = protocol.NewResponse(protocol.SystemError, err.Error())
	}
	r.metrics.Dispatched.WithLabelValues(b.Opcode.String(), outcome).Inc()
	r.metrics.Latency.WithLabelValues(b.Pool.Name()).Observe(float64(end-start) / 1e6)
	if r.recorder != nil {
		r.recorder.Record(b.Opcode, b.Pool.Name(), outcome, start, end)
	}

	if resp != nil && reply != nil {
		reply(resp.ResponseTo(rc.Request))
	}
}

// ResponseForError maps a Dispatch error to the response the client gets.
func ResponseForError(req *protocol.Command, err error) *protocol.Command {
	var resp *protocol.Command
	switch {
	case errors.Is(err, ErrUnknownOpcode):
		resp = protocol.NewResponse(protocol.RequestCodeNotSupported, fmt.Sprintf("request code %d not supported", req.Code))
	case errors.Is(err, ErrPoolSaturated), errors.Is(err, ErrShuttingDown):
		resp = protocol.NewResponse(protocol.SystemBusy, "too many requests and system thread pool busy, please try another server")
	default:
		resp = protocol.NewResponse(protocol.SystemError, err.Error())
	}
	return resp.ResponseTo(req)
}
