package worker_pool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/xiaogangfan/rocketmq/log"
	"golang.org/x/sync/errgroup"
)

// PoolSet owns the named pools of a node. It is built once and never mutated afterwards.
type PoolSet struct {
	pools   map[string]*Pool
	metrics *Metrics
}

func NewPoolSet(specs []Spec, metrics *Metrics) (*PoolSet, error) {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	ps := &PoolSet{pools: make(map[string]*Pool, len(specs)), metrics: metrics}
	for _, spec := range specs {
		if _, exists := ps.pools[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate pool name %s", spec.Name)
		}
		pool, err := NewPool(spec, metrics)
		if err != nil {
			return nil, err
		}
		ps.pools[spec.Name] = pool
	}
	return ps, nil
}

func (ps *PoolSet) Get(name string) (*Pool, bool) {
	p, ok := ps.pools[name]
	return p, ok
}

func (ps *PoolSet) Names() []string {
	names := make([]string, 0, len(ps.pools))
	for name := range ps.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ShutdownAll shuts every pool down and waits for them to drain in parallel. A pool that does not drain
// before ctx is done has its queue dropped; the others are unaffected. All failures are returned joined.
func (ps *PoolSet) ShutdownAll(ctx context.Context) error {
	var g errgroup.Group
	errs := make([]error, len(ps.pools))
	for i, name := range ps.Names() {
		i, pool := i, ps.pools[name]
		g.Go(func() error {
			pool.Shutdown()
			if err := pool.AwaitTermination(ctx); err != nil {
				dropped := pool.ShutdownNow()
				log.Warningf("Pool %s did not drain in time, dropped %d queued tasks", pool.Name(), dropped)
				errs[i] = err
				return err
			}
			return nil
		})
	}
	// Wait keeps only the first failure, the rest are in errs
	if err := g.Wait(); err != nil {
		return errors.Join(errs...)
	}
	return nil
}

// SampleQueues publishes the queue length of each pool and logs the busy ones.
func (ps *PoolSet) SampleQueues() {
	for _, name := range ps.Names() {
		pool := ps.pools[name]
		queued := pool.QueueLen()
		ps.metrics.Queued.WithLabelValues(name).Set(float64(queued))
		if queued > 0 {
			log.Debugf("Pool %s: workers=%d queued=%d", name, pool.WorkerCount(), queued)
		}
	}
}

// WorkerCount sums live workers over all pools.
func (ps *PoolSet) WorkerCount() int {
	total := 0
	for _, pool := range ps.pools {
		total += pool.WorkerCount()
	}
	return total
}
