package interceptor

import (
	"context"
	"time"

	"github.com/xiaogangfan/rocketmq/core"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/protocol"
)

const slowRequestStartKey = "slow_request.start"

// SlowRequestLogger warns about requests whose handling exceeds a threshold.
type SlowRequestLogger struct {
	Threshold time.Duration
}

func (s SlowRequestLogger) Name() string {
	return "slow-request-logger"
}

func (s SlowRequestLogger) Before(ctx context.Context, rc *core.RequestContext) error {
	rc.Set(slowRequestStartKey, time.Now())
	return nil
}

func (s SlowRequestLogger) After(ctx context.Context, rc *core.RequestContext, response *protocol.Command, err error) {
	v, ok := rc.Get(slowRequestStartKey)
	if !ok {
		return
	}
	if took := time.Since(v.(time.Time)); took > s.Threshold {
		log.Warningf("Slow request %v from %s took %v (err=%v)", rc.Request.Opcode(), rc.RemoteAddr, took, err)
	}
}
