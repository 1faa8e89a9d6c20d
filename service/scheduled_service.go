package service

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/utils"
)

// OffsetPersister is the part of the offset manager the maintenance needs
type OffsetPersister interface {
	Persist() error
}

// ScheduledService runs the snode's periodic maintenance: offset persistence, enode table refresh and
// registration with the nnodes. Shutdown persists offsets one last time.
type ScheduledService struct {
	cfg       *config.Config
	offsets   OffsetPersister
	nnode     *NnodeService
	scheduler *utils.Scheduler
	timeout   time.Duration
}

func NewScheduledService(cfg *config.Config, offsets OffsetPersister, nnode *NnodeService, clk clock.Clock) *ScheduledService {
	return &ScheduledService{
		cfg:       cfg,
		offsets:   offsets,
		nnode:     nnode,
		scheduler: utils.NewScheduler("snode-maintenance", clk),
		timeout:   cfg.Client.RequestTimeout(),
	}
}

func (s *ScheduledService) Start() error {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	tasks := []struct {
		name         string
		initialDelay time.Duration
		period       time.Duration
		f            func()
	}{
		{"persist-offsets", ms(s.cfg.PersistOffsetIntervalMs), ms(s.cfg.PersistOffsetIntervalMs), s.persistOffsets},
		{"fetch-enodes", time.Second, ms(s.cfg.FetchEnodeIntervalMs), s.fetchEnodes},
		{"register-snode", time.Second, ms(s.cfg.RegisterIntervalMs), s.register},
	}
	for _, t := range tasks {
		if err := s.scheduler.ScheduleAtFixedRate(t.name, t.initialDelay, t.period, t.f); err != nil {
			return err
		}
	}
	return s.scheduler.Start()
}

func (s *ScheduledService) persistOffsets() {
	if err := s.offsets.Persist(); err != nil {
		log.Errorf("ScheduledTask persist consumer offsets exception: %v", err)
	}
}

func (s *ScheduledService) fetchEnodes() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.nnode.FetchEnodeTable(ctx); err != nil {
		log.Warningf("ScheduledTask fetch enode table exception: %v", err)
	}
}

func (s *ScheduledService) register() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.nnode.RegisterSnode(ctx); err != nil {
		log.Warningf("ScheduledTask register snode exception: %v", err)
	}
}

func (s *ScheduledService) Shutdown() error {
	err := s.scheduler.Shutdown()
	if perr := s.offsets.Persist(); perr != nil {
		err = errors.Join(err, perr)
	}
	return err
}
