package client_manager

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/log"
)

var ErrAlreadyStarted = errors.New("housekeeping already started")

// HousekeepingService sweeps expired client channels and drops channels whose connection went away.
// It is the connection event sink of the inbound server.
type HousekeepingService struct {
	producers *ProducerManager
	consumers *ConsumerManager
	interval  time.Duration
	clk       clock.Clock

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func NewHousekeepingService(cfg *config.HousekeepingConfig, producers *ProducerManager, consumers *ConsumerManager, clk clock.Clock) *HousekeepingService {
	if clk == nil {
		clk = clock.New()
	}
	return &HousekeepingService{
		producers: producers,
		consumers: consumers,
		interval:  time.Duration(cfg.IntervalMs) * time.Millisecond,
		clk:       clk,
	}
}

func (h *HousekeepingService) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return ErrAlreadyStarted
	}
	h.started = true
	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	go h.loop(h.clk.Ticker(h.interval))
	log.Infof("Housekeeping started, sweeping every %v", h.interval)
	return nil
}

func (h *HousekeepingService) loop(ticker *clock.Ticker) {
	defer close(h.done)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Sweep()
		case <-h.stop:
			return
		}
	}
}

// Sweep removes the channels that stopped heartbeating
func (h *HousekeepingService) Sweep() {
	h.producers.ScanNotActiveChannel()
	h.consumers.ScanNotActiveChannel()
}

func (h *HousekeepingService) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started || h.stop == nil {
		return nil
	}
	close(h.stop)
	<-h.done
	h.stop = nil
	log.Infof("Housekeeping stopped")
	return nil
}

func (h *HousekeepingService) OnConnect(remoteAddr string) {
	log.Debugf("connection event: connect %s", remoteAddr)
}

func (h *HousekeepingService) OnClose(remoteAddr string) {
	h.drop(remoteAddr)
}

func (h *HousekeepingService) OnException(remoteAddr string, err error) {
	log.Warningf("connection event: exception on %s: %v", remoteAddr, err)
	h.drop(remoteAddr)
}

func (h *HousekeepingService) OnIdle(remoteAddr string) {
	h.drop(remoteAddr)
}

func (h *HousekeepingService) drop(remoteAddr string) {
	h.producers.DoChannelCloseEvent(remoteAddr)
	h.consumers.DoChannelCloseEvent(remoteAddr)
}
