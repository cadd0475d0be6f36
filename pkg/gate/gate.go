/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package gate

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Observer is the minimal interface for recording wait durations.
type Observer interface {
	Observe(float64)
}

// Status is a point-in-time view of the gate, for monitoring and
// backpressure decisions by the caller.
type Status struct {
	// Available is the number of permits that can be acquired without waiting.
	Available int `json:"available"`

	// Waiting is the number of callers currently queued in Acquire.
	Waiting int `json:"waiting"`
}

// Gate bounds the number of callers that may concurrently hold a permit.
// Callers that find no permit available queue in strict arrival order: a
// Release hands its permit directly to the longest-waiting caller, so no
// waiter is skipped while an earlier one remains queued.
//
// The gate does not pair acquires with releases. Every successful Acquire
// must be matched by exactly one Release, including when the caller's work
// fails; an unmatched Release grows the available count past the configured
// capacity (see the over-release note on Release).
type Gate struct {
	mu        sync.Mutex
	capacity  int
	available int
	// waiters holds one chan struct{} per queued Acquire, oldest first.
	// A channel is closed by Release to hand over the permit.
	waiters list.List

	logger       logr.Logger
	waitDuration Observer
	clock        clock.PassiveClock
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger used for warnings about gate misuse.
func WithLogger(logger logr.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithWaitObserver sets an observer that records the seconds each Acquire
// spent waiting for a permit. Acquires that succeed on the fast path
// observe zero.
func WithWaitObserver(o Observer) Option {
	return func(g *Gate) {
		g.waitDuration = o
	}
}

// WithClock overrides the clock used to time waits. Intended for tests.
func WithClock(c clock.PassiveClock) Option {
	return func(g *Gate) {
		g.clock = c
	}
}

// New creates a gate with the given permit capacity.
func New(capacity int, opts ...Option) (*Gate, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("gate capacity must be positive, got %d", capacity)
	}
	g := &Gate{
		capacity:  capacity,
		available: capacity,
		logger:    logr.Discard(),
		clock:     clock.RealClock{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Acquire obtains a permit, blocking while none is available. Waiters are
// served strictly in arrival order.
//
// A canceled context returns ctx.Err() and removes the caller from the wait
// queue. If a permit is handed to the caller concurrently with cancellation,
// Acquire forwards it to the next waiter before returning the error, so the
// permit is never silently dropped.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.available > 0 && g.waiters.Len() == 0 {
		g.available--
		g.mu.Unlock()
		if g.waitDuration != nil {
			g.waitDuration.Observe(0)
		}
		return nil
	}
	if err := ctx.Err(); err != nil {
		g.mu.Unlock()
		return err
	}
	ready := make(chan struct{})
	elem := g.waiters.PushBack(ready)
	g.mu.Unlock()

	start := g.clock.Now()
	select {
	case <-ctx.Done():
		g.mu.Lock()
		select {
		case <-ready:
			// The permit was handed over concurrently with cancellation.
			// Pass it on rather than dropping it.
			g.mu.Unlock()
			g.Release()
		default:
			g.waiters.Remove(elem)
			g.mu.Unlock()
		}
		return ctx.Err()
	case <-ready:
		if g.waitDuration != nil {
			g.waitDuration.Observe(g.clock.Since(start).Seconds())
		}
		return nil
	}
}

// TryAcquire obtains a permit without blocking. It returns false when no
// permit is immediately available or when earlier callers are still queued.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.available > 0 && g.waiters.Len() == 0 {
		g.available--
		return true
	}
	return false
}

// Release returns a permit. If callers are queued, the permit is handed
// directly to the head of the queue in the same critical section, so no
// other caller can observe a state where the permit is free while a waiter
// is queued.
//
// Release never fails. Calling it more times than Acquire grows the
// available count past the configured capacity; the gate logs the condition
// but does not clamp it.
func (g *Gate) Release() {
	g.mu.Lock()
	if front := g.waiters.Front(); front != nil {
		g.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		g.mu.Unlock()
		return
	}
	g.available++
	if g.available > g.capacity {
		g.logger.Info("gate released more permits than acquired",
			"available", g.available,
			"capacity", g.capacity)
	}
	g.mu.Unlock()
}

// Capacity returns the permit capacity the gate was created with.
func (g *Gate) Capacity() int {
	return g.capacity
}

// AvailablePermits returns the number of permits currently free.
func (g *Gate) AvailablePermits() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.available
}

// WaitingCount returns the number of callers currently queued in Acquire.
func (g *Gate) WaitingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiters.Len()
}

// Status returns the available and waiting counts as one snapshot.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		Available: g.available,
		Waiting:   g.waiters.Len(),
	}
}
