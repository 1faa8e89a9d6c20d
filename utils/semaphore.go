package utils

import "context"

type empty struct{}
type Semaphore chan empty

func NewSemaphore(capacity int) Semaphore {
	s := make(Semaphore, capacity)
	return s
}

func (s Semaphore) Acquire(numResources int) {
	e := empty{}
	for i := 0; i < numResources; i++ {
		s <- e
	}
}

// AcquireCtx takes one resource or gives up when ctx is done.
func (s Semaphore) AcquireCtx(ctx context.Context) error {
	select {
	case s <- empty{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s Semaphore) Release(numResources int) {
	for i := 0; i < numResources; i++ {
		<-s
	}
}

func (s Semaphore) GetCapacity() int {
	return cap(s)
}

func (s Semaphore) GetUtilization() int {
	return len(s)
}
