package worker_pool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/log"
)

var (
	ErrPoolSaturated = errors.New("worker pool saturated")
	ErrPoolShutdown  = errors.New("worker pool is shut down")
)

type Task func()

// Spec sizes one pool.
type Spec struct {
	Name             string
	CoreSize         int
	MaxSize          int
	QueueCapacity    int
	IdleTimeout      time.Duration
	AllowCoreTimeout bool
}

func SpecFromConfig(c config.PoolConfig) Spec {
	return Spec{
		Name:             c.Name,
		CoreSize:         c.CoreSize,
		MaxSize:          c.MaxSize,
		QueueCapacity:    c.QueueCapacity,
		IdleTimeout:      c.IdleTimeout(),
		AllowCoreTimeout: c.AllowCoreTimeout,
	}
}

func (s Spec) validate() error {
	if s.Name == "" || s.CoreSize < 0 || s.MaxSize <= 0 || s.MaxSize < s.CoreSize || s.QueueCapacity < 0 || s.IdleTimeout <= 0 {
		return fmt.Errorf("bad pool spec %+v", s)
	}
	return nil
}

// Pool is a bounded goroutine pool. It keeps CoreSize workers around, queues up to QueueCapacity tasks,
// adds workers up to MaxSize once the queue is full, and rejects beyond that. Submit never blocks.
type Pool struct {
	spec    Spec
	metrics *Metrics

	mu       sync.Mutex
	queue    chan Task
	workers  int
	shutdown bool

	terminated     chan struct{}
	terminatedOnce sync.Once
}

func NewPool(spec Spec, metrics *Metrics) (*Pool, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	log.Infof("Creating pool %s with core=%d, max=%d, queue=%d, idle=%v", spec.Name, spec.CoreSize, spec.MaxSize, spec.QueueCapacity, spec.IdleTimeout)
	return &Pool{
		spec:       spec,
		metrics:    metrics,
		queue:      make(chan Task, spec.QueueCapacity),
		terminated: make(chan struct{}),
	}, nil
}

func (p *Pool) Spec() Spec {
	return p.spec
}

func (p *Pool) Name() string {
	return p.spec.Name
}

// Submit hands task to the pool. It returns ErrPoolSaturated when the queue is full and MaxSize workers
// are busy, and ErrPoolShutdown once Shutdown has been called.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		p.metrics.Rejected.WithLabelValues(p.spec.Name, "shutdown").Inc()
		return fmt.Errorf("pool %s: %w", p.spec.Name, ErrPoolShutdown)
	}
	if p.workers < p.spec.CoreSize {
		p.startWorkerLocked(task)
		p.metrics.Submitted.WithLabelValues(p.spec.Name).Inc()
		return nil
	}
	select {
	case p.queue <- task:
		if p.workers == 0 {
			p.startWorkerLocked(nil)
		}
		p.metrics.Submitted.WithLabelValues(p.spec.Name).Inc()
		return nil
	default:
	}
	if p.workers < p.spec.MaxSize {
		p.startWorkerLocked(task)
		p.metrics.Submitted.WithLabelValues(p.spec.Name).Inc()
		return nil
	}
	p.metrics.Rejected.WithLabelValues(p.spec.Name, "saturated").Inc()
	return fmt.Errorf("pool %s (workers=%d, queued=%d): %w", p.spec.Name, p.workers, len(p.queue), ErrPoolSaturated)
}

// Shutdown stops accepting tasks. Queued tasks still run. Use AwaitTermination to wait for them.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdownLocked()
}

// ShutdownNow stops accepting tasks and drops whatever is still queued. Running tasks are not interrupted.
func (p *Pool) ShutdownNow() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdownLocked()
	dropped := 0
	for {
		select {
		case _, ok := <-p.queue:
			if !ok {
				return dropped
			}
			dropped++
		default:
			return dropped
		}
	}
}

func (p *Pool) shutdownLocked() {
	if p.shutdown {
		return
	}
	p.shutdown = true
	close(p.queue)
	log.Debugf("Pool %s shutting down with %d workers and %d queued tasks", p.spec.Name, p.workers, len(p.queue))
	if p.workers == 0 {
		p.markTerminated()
	}
}

// AwaitTermination blocks until every worker has exited after shutdown, or ctx is done.
func (p *Pool) AwaitTermination(ctx context.Context) error {
	select {
	case <-p.terminated:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool %s did not terminate: %w", p.spec.Name, ctx.Err())
	}
}

func (p *Pool) IsShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdown
}

func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

func (p *Pool) QueueLen() int {
	return len(p.queue)
}

func (p *Pool) markTerminated() {
	p.terminatedOnce.Do(func() {
		close(p.terminated)
		log.Debugf("Pool %s terminated", p.spec.Name)
	})
}

func (p *Pool) startWorkerLocked(first Task) {
	p.workers++
	p.metrics.Workers.WithLabelValues(p.spec.Name).Set(float64(p.workers))
	go p.work(first)
}

func (p *Pool) exitWorkerLocked() {
	p.workers--
	p.metrics.Workers.WithLabelValues(p.spec.Name).Set(float64(p.workers))
	if p.shutdown && p.workers == 0 {
		p.markTerminated()
	}
}

func (p *Pool) work(first Task) {
	if first != nil {
		p.run(first)
	}
	idle := time.NewTimer(p.spec.IdleTimeout)
	defer idle.Stop()
	for {
		select {
		case task, ok := <-p.queue:
			if !ok {
				p.mu.Lock()
				p.exitWorkerLocked()
				p.mu.Unlock()
				return
			}
			p.run(task)
		case <-idle.C:
			if p.idleExit() {
				return
			}
		}
		resetTimer(idle, p.spec.IdleTimeout)
	}
}

// idleExit retires the calling worker if it is above core size (or core workers may time out) and there
// is nothing queued for it.
func (p *Pool) idleExit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return false
	}
	if (p.workers > p.spec.CoreSize || p.spec.AllowCoreTimeout) && len(p.queue) == 0 {
		p.exitWorkerLocked()
		return true
	}
	return false
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.Panics.WithLabelValues(p.spec.Name).Inc()
			log.Errorf("Task on pool %s panicked: %v\n%s", p.spec.Name, r, debug.Stack())
		}
		p.metrics.Completed.WithLabelValues(p.spec.Name).Inc()
	}()
	task()
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
