package collab

import (
	"context"
	"errors"
)

const DefaultSemaphoreSize = 100

var ErrSemaphoreNotAcquired = errors.New("release failed, semaphore is not acquired")

// SemaphoreControl caps how many callers run a section at once.
type SemaphoreControl struct {
	ch chan struct{}
}

func NewSemaphoreControl(size int) *SemaphoreControl {
	if size <= 0 {
		size = DefaultSemaphoreSize
	}
	return &SemaphoreControl{ch: make(chan struct{}, size)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrSemaphoreNotAcquired
	}
}

func (s *SemaphoreControl) InUse() int { return len(s.ch) }
