package backend

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// EngineLock admits one prediction at a time. Waiting for it honors the
// caller's context.
type EngineLock struct {
	sem *semaphore.Weighted
}

func NewEngineLock() *EngineLock {
	return &EngineLock{sem: semaphore.NewWeighted(1)}
}

// Lock waits for the engine or for ctx. A nil error means the caller holds
// the engine and must Unlock it.
func (l *EngineLock) Lock(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	// Acquire may succeed on an already cancelled ctx
	if err := ctx.Err(); err != nil {
		l.sem.Release(1)
		return err
	}
	return nil
}

func (l *EngineLock) Unlock() { l.sem.Release(1) }

// Serial is a Streamer that queues its callers on its own EngineLock.
// Callers should not hold other shared slots while Stream waits.
type Serial interface {
	Streamer
	Serial()
}
