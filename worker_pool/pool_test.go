package worker_pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaogangfan/rocketmq/config"
)

func newTestPool(t *testing.T, core, max, queue int) *Pool {
	p, err := NewPool(Spec{Name: "test", CoreSize: core, MaxSize: max, QueueCapacity: queue, IdleTimeout: time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.ShutdownNow() })
	return p
}

// blocker parks tasks until released
type blocker struct {
	started sync.WaitGroup
	release chan struct{}
}

func newBlocker() *blocker {
	return &blocker{release: make(chan struct{})}
}

func (b *blocker) task() Task {
	b.started.Add(1)
	return func() {
		b.started.Done()
		<-b.release
	}
}

func TestSubmitRunsTask(t *testing.T) {
	p := newTestPool(t, 1, 1, 1)
	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestRejectsWhenQueueFullAndMaxWorkersBusy(t *testing.T) {
	p := newTestPool(t, 1, 2, 1)
	b := newBlocker()
	require.NoError(t, p.Submit(b.task()))  // core worker
	require.NoError(t, p.Submit(func() {})) // queued
	require.NoError(t, p.Submit(b.task()))  // extra worker up to max
	b.started.Wait()

	err := p.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolSaturated)
	assert.Equal(t, 2, p.WorkerCount())
	close(b.release)
}

func TestSubmitDoesNotBlockWhenSaturated(t *testing.T) {
	p := newTestPool(t, 1, 1, 0)
	b := newBlocker()
	require.NoError(t, p.Submit(b.task()))
	b.started.Wait()

	start := time.Now()
	for i := 0; i < 100; i++ {
		assert.ErrorIs(t, p.Submit(func() {}), ErrPoolSaturated)
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	close(b.release)
}

func TestShutdownDrainsQueue(t *testing.T) {
	p := newTestPool(t, 1, 1, 10)
	var ran int32
	b := newBlocker()
	require.NoError(t, p.Submit(b.task()))
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(func() { atomic.AddInt32(&ran, 1) }))
	}
	b.started.Wait()
	p.Shutdown()
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolShutdown)

	close(b.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.AwaitTermination(ctx))
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
	assert.Equal(t, 0, p.WorkerCount())
}

func TestShutdownNowDropsQueued(t *testing.T) {
	p := newTestPool(t, 1, 1, 10)
	b := newBlocker()
	require.NoError(t, p.Submit(b.task()))
	b.started.Wait()
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(func() {}))
	}
	assert.Equal(t, 4, p.ShutdownNow())
	assert.Equal(t, 0, p.ShutdownNow())

	close(b.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.AwaitTermination(ctx))
}

func TestAwaitTerminationTimesOut(t *testing.T) {
	p := newTestPool(t, 1, 1, 1)
	b := newBlocker()
	require.NoError(t, p.Submit(b.task()))
	b.started.Wait()
	p.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.AwaitTermination(ctx), context.DeadlineExceeded)
	close(b.release)
}

func TestPanickingTaskKeepsWorker(t *testing.T) {
	metrics := NewMetrics(nil)
	p, err := NewPool(Spec{Name: "panicky", CoreSize: 1, MaxSize: 1, QueueCapacity: 4, IdleTimeout: time.Second}, metrics)
	require.NoError(t, err)
	defer p.ShutdownNow()

	require.NoError(t, p.Submit(func() { panic("handler bug") }))
	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool stopped running tasks after a panic")
	}
	assert.Equal(t, 1, p.WorkerCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Panics.WithLabelValues("panicky")))
}

func TestNonCoreWorkersExpire(t *testing.T) {
	p, err := NewPool(Spec{Name: "elastic", CoreSize: 1, MaxSize: 3, QueueCapacity: 0, IdleTimeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer p.ShutdownNow()

	b := newBlocker()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(b.task()))
	}
	b.started.Wait()
	assert.Equal(t, 3, p.WorkerCount())
	close(b.release)

	assert.Eventually(t, func() bool { return p.WorkerCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCoreTimeoutLetsAllWorkersExpire(t *testing.T) {
	p, err := NewPool(Spec{Name: "hb", CoreSize: 2, MaxSize: 2, QueueCapacity: 4, IdleTimeout: 20 * time.Millisecond, AllowCoreTimeout: true}, nil)
	require.NoError(t, err)
	defer p.ShutdownNow()

	require.NoError(t, p.Submit(func() {}))
	require.NoError(t, p.Submit(func() {}))
	assert.Eventually(t, func() bool { return p.WorkerCount() == 0 }, time.Second, 5*time.Millisecond)

	// the pool comes back to life on demand
	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran after workers expired")
	}
}

func TestSpecFromConfig(t *testing.T) {
	spec := SpecFromConfig(config.NewDefaultPoolConfig(config.PoolHeartbeat))
	assert.Equal(t, config.PoolHeartbeat, spec.Name)
	assert.True(t, spec.AllowCoreTimeout)
	assert.Equal(t, time.Minute, spec.IdleTimeout)
}

func TestNewPoolRejectsBadSpec(t *testing.T) {
	_, err := NewPool(Spec{Name: "bad", CoreSize: 3, MaxSize: 1, IdleTimeout: time.Second}, nil)
	assert.Error(t, err)
}

func TestPoolSetShutdownAllIsolatesStuckPool(t *testing.T) {
	ps, err := NewPoolSet([]Spec{
		{Name: "stuck", CoreSize: 1, MaxSize: 1, QueueCapacity: 1, IdleTimeout: time.Second},
		{Name: "idle", CoreSize: 1, MaxSize: 1, QueueCapacity: 1, IdleTimeout: time.Second},
	}, nil)
	require.NoError(t, err)

	stuck, _ := ps.Get("stuck")
	idle, _ := ps.Get("idle")
	b := newBlocker()
	require.NoError(t, stuck.Submit(b.task()))
	require.NoError(t, idle.Submit(func() {}))
	b.started.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = ps.ShutdownAll(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 0, idle.WorkerCount())
	assert.True(t, stuck.IsShutdown())

	close(b.release)
	assert.Eventually(t, func() bool { return ps.WorkerCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPoolSetShutdownAllJoinsEveryStuckPool(t *testing.T) {
	ps, err := NewPoolSet([]Spec{
		{Name: "pull", CoreSize: 1, MaxSize: 1, QueueCapacity: 1, IdleTimeout: time.Second},
		{Name: "send", CoreSize: 1, MaxSize: 1, QueueCapacity: 1, IdleTimeout: time.Second},
	}, nil)
	require.NoError(t, err)

	b := newBlocker()
	for _, name := range ps.Names() {
		pool, _ := ps.Get(name)
		require.NoError(t, pool.Submit(b.task()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = ps.ShutdownAll(ctx)
	close(b.release)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "pool pull did not terminate")
	assert.Contains(t, err.Error(), "pool send did not terminate")
	assert.Eventually(t, func() bool { return ps.WorkerCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPoolSetRejectsDuplicateNames(t *testing.T) {
	spec := Spec{Name: "dup", CoreSize: 1, MaxSize: 1, IdleTimeout: time.Second}
	_, err := NewPoolSet([]Spec{spec, spec}, nil)
	assert.Error(t, err)
}

func TestMetricsRegisterAndSample(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	ps, err := NewPoolSet([]Spec{{Name: "send", CoreSize: 1, MaxSize: 1, QueueCapacity: 2, IdleTimeout: time.Second}}, metrics)
	require.NoError(t, err)
	defer ps.ShutdownAll(context.Background())

	pool, _ := ps.Get("send")
	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(done) }))
	<-done
	ps.SampleQueues()

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Submitted.WithLabelValues("send")))
	assert.Equal(t, []string{"send"}, ps.Names())
	count, err := testutil.GatherAndCount(reg, "snode_pool_submitted_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
