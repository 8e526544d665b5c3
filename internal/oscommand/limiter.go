package oscommand

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultPermitTimeout bounds the wait for an SSH permit.
const DefaultPermitTimeout = 2 * time.Minute

// ErrPermitTimeout is returned when no SSH permit could be acquired in time.
var ErrPermitTimeout = errors.New("timed out waiting for ssh permit")

// PermitError reports the host whose SSH permits were exhausted.
type PermitError struct {
	Host string
}

func (e *PermitError) Error() string {
	return fmt.Sprintf("Failed to run SSH command on %s. Timed out trying to get ssh semaphore permit.", e.Host)
}

// Unwrap makes errors.Is(err, ErrPermitTimeout) hold.
func (e *PermitError) Unwrap() error { return ErrPermitTimeout }

// SemaphoreFactory creates the semaphore of a host.
type SemaphoreFactory func(host string) *semaphore.Weighted

// PermitFactory returns a factory creating semaphores with n permits.
func PermitFactory(n int64) SemaphoreFactory {
	if n < 1 {
		n = 1
	}
	return func(string) *semaphore.Weighted { return semaphore.NewWeighted(n) }
}

// Limiter bounds the number of concurrent SSH commands per host. Semaphores
// are created on first use.
type Limiter struct {
	mu      sync.Mutex
	sems    map[string]*semaphore.Weighted
	factory SemaphoreFactory
	wait    time.Duration
}

// NewLimiter creates a limiter. A nil factory gives one permit per host and
// a non-positive wait uses DefaultPermitTimeout.
func NewLimiter(factory SemaphoreFactory, wait time.Duration) *Limiter {
	if factory == nil {
		factory = PermitFactory(1)
	}
	if wait <= 0 {
		wait = DefaultPermitTimeout
	}
	return &Limiter{
		sems:    make(map[string]*semaphore.Weighted),
		factory: factory,
		wait:    wait,
	}
}

func (l *Limiter) semaphore(host string) *semaphore.Weighted {
	key := strings.ToLower(host)

	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.sems[key]
	if !ok {
		sem = l.factory(host)
		l.sems[key] = sem
	}
	return sem
}

// Do runs fn while holding a permit of host. Cancellation of ctx is
// reported as is; running out of wait time yields a *PermitError.
func (l *Limiter) Do(ctx context.Context, host string, fn func() (string, error)) (string, error) {
	sem := l.semaphore(host)

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	err := sem.Acquire(waitCtx, 1)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &PermitError{Host: host}
	}
	defer sem.Release(1)

	return fn()
}
