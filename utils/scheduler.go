package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/xiaogangfan/rocketmq/log"
)

var ErrSchedulerStopped = errors.New("scheduler is stopped")

type scheduledTask struct {
	name         string
	initialDelay time.Duration
	period       time.Duration
	f            func()
}

// Scheduler runs periodic tasks one at a time on a single executor goroutine. Ticks that arrive while the
// executor is busy are coalesced, so a slow task never piles up runs behind itself.
type Scheduler struct {
	name  string
	clock clock.Clock

	mu      sync.Mutex
	tasks   []*scheduledTask
	started bool
	stopped bool

	runs   chan *scheduledTask
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(name string, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		name:   name,
		clock:  clk,
		runs:   make(chan *scheduledTask),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ScheduleAtFixedRate registers f. Tasks added before Start begin ticking at Start, later ones right away.
func (s *Scheduler) ScheduleAtFixedRate(name string, initialDelay, period time.Duration, f func()) error {
	if period <= 0 {
		return errors.New("period must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	task := &scheduledTask{name: name, initialDelay: initialDelay, period: period, f: f}
	s.tasks = append(s.tasks, task)
	if s.started {
		s.startTicker(task)
	}
	return nil
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return nil
	}
	s.started = true
	log.Debugf("Scheduler %s starting with %d tasks", s.name, len(s.tasks))
	s.wg.Add(1)
	go s.execute()
	for _, task := range s.tasks {
		s.startTicker(task)
	}
	return nil
}

// Shutdown stops all tickers and waits for a running task to return. Safe to call more than once.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	log.Debugf("Scheduler %s stopped", s.name)
	return nil
}

func (s *Scheduler) startTicker(task *scheduledTask) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if task.initialDelay > 0 {
			timer := s.clock.Timer(task.initialDelay)
			select {
			case <-timer.C:
			case <-s.ctx.Done():
				timer.Stop()
				return
			}
			if !s.submit(task) {
				return
			}
		}
		ticker := s.clock.Ticker(task.period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.submit(task) {
					return
				}
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) submit(task *scheduledTask) bool {
	select {
	case s.runs <- task:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Scheduler) execute() {
	defer s.wg.Done()
	for {
		select {
		case task := <-s.runs:
			s.run(task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(task *scheduledTask) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Scheduler %s task %s panicked: %v", s.name, task.name, r)
		}
	}()
	task.f()
}
