// Package processor implements the handlers bound to the snode's opcodes.
package processor

import (
	"context"
	"fmt"

	"github.com/xiaogangfan/rocketmq/protocol"
)

// Forwarder sends a request to a named enode. *service.EnodeService implements it.
type Forwarder interface {
	Forward(ctx context.Context, enodeName string, req *protocol.Command) (*protocol.Command, error)
}

func requireFields(req *protocol.Command, names ...string) error {
	for _, name := range names {
		if req.Field(name) == "" {
			return fmt.Errorf("the request field %s is missing", name)
		}
	}
	return nil
}

func badRequest(err error) *protocol.Command {
	return protocol.NewResponse(protocol.SystemError, err.Error())
}

// forward relays req to the enode it names
func forward(ctx context.Context, fwd Forwarder, req *protocol.Command) (*protocol.Command, error) {
	if err := requireFields(req, protocol.FieldEnodeName); err != nil {
		return badRequest(err), nil
	}
	return fwd.Forward(ctx, req.Field(protocol.FieldEnodeName), req)
}
