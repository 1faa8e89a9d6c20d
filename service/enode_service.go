package service

import (
	"context"
	"fmt"

	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/protocol"
)

// EnodeService forwards requests to the enode that owns the data
type EnodeService struct {
	invoker Invoker
	nnode   *NnodeService
}

func NewEnodeService(invoker Invoker, nnode *NnodeService) *EnodeService {
	return &EnodeService{invoker: invoker, nnode: nnode}
}

// Forward sends a copy of req to enodeName. An unknown enode triggers one refresh of the enode table.
func (s *EnodeService) Forward(ctx context.Context, enodeName string, req *protocol.Command) (*protocol.Command, error) {
	addr, ok := s.nnode.EnodeAddress(enodeName)
	if !ok {
		if err := s.nnode.FetchEnodeTable(ctx); err != nil {
			log.Warningf("Refreshing enode table for %s failed: %v", enodeName, err)
		}
		if addr, ok = s.nnode.EnodeAddress(enodeName); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEnode, enodeName)
		}
	}
	return s.invoker.InvokeSync(ctx, addr, req.Clone())
}
