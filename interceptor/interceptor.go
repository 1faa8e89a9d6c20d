package interceptor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/xiaogangfan/rocketmq/core"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/protocol"
)

var (
	ErrChainSealed  = errors.New("interceptor chain is sealed")
	ErrHandlerPanic = errors.New("handler panicked")
)

// Interceptor wraps request handling. After is called for every interceptor whose Before was entered,
// including one whose Before returned an error.
type Interceptor interface {
	Name() string
	Before(ctx context.Context, rc *core.RequestContext) error
	After(ctx context.Context, rc *core.RequestContext, response *protocol.Command, err error)
}

type Handler func(ctx context.Context, rc *core.RequestContext) (*protocol.Command, error)

// Chain is an ordered list of interceptors. It is appended to during initialization and read-only once sealed.
type Chain struct {
	name         string
	interceptors []Interceptor
	sealed       bool
}

func NewChain(name string) *Chain {
	return &Chain{name: name}
}

func (c *Chain) Name() string {
	return c.name
}

func (c *Chain) Append(interceptors ...Interceptor) error {
	if c.sealed {
		return fmt.Errorf("chain %s: %w", c.name, ErrChainSealed)
	}
	for _, i := range interceptors {
		if i == nil {
			continue
		}
		log.Infof("Registering interceptor %s on chain %s", i.Name(), c.name)
		c.interceptors = append(c.interceptors, i)
	}
	return nil
}

func (c *Chain) Seal() {
	c.sealed = true
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.interceptors)
}

// Invoke runs the Before hooks in order, then handler, then the After hooks in reverse. A failing Before
// skips the handler and the remaining Before hooks. Panics in handler or in a Before come back as ErrHandlerPanic.
// A nil chain just runs handler.
func (c *Chain) Invoke(ctx context.Context, rc *core.RequestContext, handler Handler) (*protocol.Command, error) {
	if c == nil || len(c.interceptors) == 0 {
		return safeCall(ctx, rc, handler)
	}

	var resp *protocol.Command
	var err error
	entered := 0
	for _, i := range c.interceptors {
		entered++
		if beforeErr := c.before(ctx, i, rc); beforeErr != nil {
			err = fmt.Errorf("interceptor %s: %w", i.Name(), beforeErr)
			break
		}
	}
	if err == nil {
		resp, err = safeCall(ctx, rc, handler)
	}
	for k := entered - 1; k >= 0; k-- {
		c.after(ctx, c.interceptors[k], rc, resp, err)
	}
	return resp, err
}

func (c *Chain) before(ctx context.Context, i Interceptor, rc *core.RequestContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Interceptor %s on chain %s panicked in Before: %v\n%s", i.Name(), c.name, r, debug.Stack())
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return i.Before(ctx, rc)
}

func (c *Chain) after(ctx context.Context, i Interceptor, rc *core.RequestContext, resp *protocol.Command, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Interceptor %s on chain %s panicked in After: %v", i.Name(), c.name, r)
		}
	}()
	i.After(ctx, rc, resp, err)
}

func safeCall(ctx context.Context, rc *core.RequestContext, handler Handler) (resp *protocol.Command, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Handler for %v panicked: %v\n%s", rc.Request.Opcode(), r, debug.Stack())
			resp = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(ctx, rc)
}
