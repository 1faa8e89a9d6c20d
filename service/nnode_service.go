// Package service holds the snode's connectors to naming (nnode) and storage (enode) nodes and the
// periodic maintenance that keeps them fresh.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/messages"
	"github.com/xiaogangfan/rocketmq/protocol"
)

var (
	ErrUnknownEnode    = errors.New("unknown enode")
	ErrUpstreamFailure = errors.New("upstream answered with an error")
)

// Invoker sends requests upstream. *netwrk.Client implements it.
type Invoker interface {
	UpdateUpstreamAddressList(addrs []string)
	UpstreamAddressList() []string
	InvokeSync(ctx context.Context, addr string, req *protocol.Command) (*protocol.Command, error)
	InvokeUpstream(ctx context.Context, req *protocol.Command) (*protocol.Command, error)
}

// NnodeService keeps the nnode address list and the enode table learned from the nnodes
type NnodeService struct {
	invoker   Invoker
	snodeName string
	snodeAddr string

	mu     sync.RWMutex
	enodes map[string]string
}

func NewNnodeService(invoker Invoker, snodeName, snodeAddr string) *NnodeService {
	return &NnodeService{
		invoker:   invoker,
		snodeName: snodeName,
		snodeAddr: snodeAddr,
		enodes:    make(map[string]string),
	}
}

// UpdateNnodeAddressList only updates memory; the first connection happens on the first request
func (s *NnodeService) UpdateNnodeAddressList(addrs []string) {
	log.Infof("Set nnode address list %v", addrs)
	s.invoker.UpdateUpstreamAddressList(addrs)
}

func (s *NnodeService) NnodeAddressList() []string {
	return s.invoker.UpstreamAddressList()
}

// FetchEnodeTable replaces the enode table with the one served by the nnodes
func (s *NnodeService) FetchEnodeTable(ctx context.Context) error {
	resp, err := s.invoker.InvokeUpstream(ctx, protocol.NewRequest(protocol.GetEnodeTable, nil, nil))
	if err != nil {
		return fmt.Errorf("fetch enode table: %w", err)
	}
	if resp.ResponseCode() != protocol.Success {
		return fmt.Errorf("fetch enode table: %w: %v %s", ErrUpstreamFailure, resp.ResponseCode(), resp.Remark)
	}
	var table messages.EnodeTable
	if err := messages.Decode(resp.Body, &table); err != nil {
		return fmt.Errorf("fetch enode table: %w", err)
	}

	s.mu.Lock()
	s.enodes = make(map[string]string, len(table.Enodes))
	for name, addr := range table.Enodes {
		s.enodes[name] = addr
	}
	s.mu.Unlock()
	log.Debugf("Enode table refreshed: %v", table.Enodes)
	return nil
}

func (s *NnodeService) EnodeAddress(enodeName string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.enodes[enodeName]
	return addr, ok
}

// RegisterSnode announces this snode to every nnode. Errors from all nnodes are joined.
func (s *NnodeService) RegisterSnode(ctx context.Context) error {
	body, err := messages.Encode(messages.SnodeRegistration{SnodeName: s.snodeName, SnodeAddr: s.snodeAddr})
	if err != nil {
		return err
	}
	var errs []error
	for _, addr := range s.invoker.UpstreamAddressList() {
		req := protocol.NewRequest(protocol.RegisterSnode, map[string]string{
			protocol.FieldSnodeName: s.snodeName,
			protocol.FieldSnodeAddr: s.snodeAddr,
		}, body)
		resp, err := s.invoker.InvokeSync(ctx, addr, req)
		if err == nil && resp.ResponseCode() != protocol.Success {
			err = fmt.Errorf("%w: %v %s", ErrUpstreamFailure, resp.ResponseCode(), resp.Remark)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("register at %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}
