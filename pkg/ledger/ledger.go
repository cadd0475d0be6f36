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

package ledger

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// BudgetStatus is a point-in-time view of the ledger, for monitoring only.
type BudgetStatus struct {
	Total              int64   `json:"total"`
	Used               int64   `json:"used"`
	Reserved           int64   `json:"reserved"`
	Available          int64   `json:"available"`
	ActiveBatches      int     `json:"activeBatches"`
	UtilizationPercent float64 `json:"utilizationPercent"`
}

// StatusObserver receives ledger state changes, typically to update metrics.
type StatusObserver interface {
	// ObserveBudget is called with the ledger status after every state change.
	ObserveBudget(BudgetStatus)

	// ObserveRejectedReservation is called each time Reserve returns false.
	ObserveRejectedReservation()
}

// TokenLedger tracks a shared token budget across concurrently running
// batches using two-phase accounting: Reserve places a pessimistic hold on
// the estimated cost of a batch before it starts, and Release commits that
// estimate to the used count when the batch finishes.
//
// The ledger maintains one invariant across all operations:
//
//	used + reserved <= total
//
// A batch ID has at most one live reservation at a time, and the caller
// must call Release exactly once per successful Reserve, whether the batch
// succeeded or failed. A reservation that is never released stays held
// forever, permanently shrinking the effective budget; the ledger cannot
// detect this on its own.
type TokenLedger struct {
	mu       sync.Mutex
	total    int64
	used     int64
	reserved int64
	// allocations maps a batch ID to its reserved token estimate. One entry
	// per outstanding reservation; the amount never changes while live.
	allocations map[int]int64

	logger   logr.Logger
	observer StatusObserver
}

// Option configures a TokenLedger.
type Option func(*TokenLedger)

// WithLogger sets the logger used for warnings about ledger misuse.
func WithLogger(logger logr.Logger) Option {
	return func(l *TokenLedger) {
		l.logger = logger
	}
}

// WithObserver sets an observer notified of ledger state changes and
// rejected reservations.
func WithObserver(o StatusObserver) Option {
	return func(l *TokenLedger) {
		l.observer = o
	}
}

// New creates a ledger with the given total token budget.
func New(totalBudget int64, opts ...Option) (*TokenLedger, error) {
	if totalBudget <= 0 {
		return nil, fmt.Errorf("total token budget must be positive, got %d", totalBudget)
	}
	l := &TokenLedger{
		total:       totalBudget,
		allocations: make(map[int]int64),
		logger:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Reserve places a hold of estimatedTokens on the budget for the given
// batch ID. It returns false, leaving the ledger unchanged, when the
// estimate is not positive, when the batch already holds a live
// reservation, or when the estimate does not fit in the remaining budget.
//
// Reserve never blocks; a rejected caller applies its own retry or backoff
// policy. The estimate, not the eventual measured cost, is what gets
// reserved and later committed.
func (l *TokenLedger) Reserve(batchID int, estimatedTokens int64) bool {
	l.mu.Lock()
	if estimatedTokens <= 0 {
		l.mu.Unlock()
		l.logger.Info("rejecting reservation with non-positive estimate",
			"batchID", batchID,
			"estimatedTokens", estimatedTokens)
		l.notifyRejected()
		return false
	}
	if _, exists := l.allocations[batchID]; exists {
		l.mu.Unlock()
		l.logger.Info("rejecting duplicate reservation for batch",
			"batchID", batchID)
		l.notifyRejected()
		return false
	}
	if l.used+l.reserved+estimatedTokens > l.total {
		available := l.total - l.used - l.reserved
		l.mu.Unlock()
		l.logger.V(1).Info("rejecting reservation that exceeds budget",
			"batchID", batchID,
			"estimatedTokens", estimatedTokens,
			"available", available)
		l.notifyRejected()
		return false
	}
	l.reserved += estimatedTokens
	l.allocations[batchID] = estimatedTokens
	status := l.statusLocked()
	l.mu.Unlock()

	l.notifyStatus(status)
	return true
}

// Release commits the reservation held by the given batch ID: the reserved
// estimate moves into the used count and the entry is removed. Releasing a
// batch with no live reservation is a logged no-op.
//
// The original estimate is always what gets committed; Release does not
// reconcile against a measured actual cost.
func (l *TokenLedger) Release(batchID int) {
	l.mu.Lock()
	amount, exists := l.allocations[batchID]
	if !exists {
		l.mu.Unlock()
		l.logger.Info("ignoring release for batch with no live reservation",
			"batchID", batchID)
		return
	}
	l.reserved -= amount
	l.used += amount
	delete(l.allocations, batchID)
	status := l.statusLocked()
	l.mu.Unlock()

	l.logger.V(1).Info("committed batch reservation",
		"batchID", batchID,
		"tokens", amount,
		"used", status.Used,
		"available", status.Available)
	l.notifyStatus(status)
}

// UpdateBudget resizes the total budget at runtime. A non-positive total is
// rejected. A total below the current commitments is still applied, with a
// warning; in-flight reservations are not evicted.
func (l *TokenLedger) UpdateBudget(newTotal int64) error {
	if newTotal <= 0 {
		return fmt.Errorf("total token budget must be positive, got %d", newTotal)
	}
	l.mu.Lock()
	committed := l.used + l.reserved
	l.total = newTotal
	status := l.statusLocked()
	l.mu.Unlock()

	if committed > newTotal {
		l.logger.Info("new budget is below current commitments",
			"newTotal", newTotal,
			"committed", committed)
	}
	l.notifyStatus(status)
	return nil
}

// Reset clears used, reserved, and all outstanding reservations. The total
// budget is unchanged. Intended for reusing the ledger across runs.
func (l *TokenLedger) Reset() {
	l.mu.Lock()
	l.used = 0
	l.reserved = 0
	l.allocations = make(map[int]int64)
	status := l.statusLocked()
	l.mu.Unlock()

	l.notifyStatus(status)
}

// AvailableBudget returns total - used - reserved.
func (l *TokenLedger) AvailableBudget() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total - l.used - l.reserved
}

// TotalBudget returns the current total budget.
func (l *TokenLedger) TotalBudget() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// UsedTokens returns the tokens committed by released batches.
func (l *TokenLedger) UsedTokens() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used
}

// ReservedTokens returns the tokens held by outstanding reservations.
func (l *TokenLedger) ReservedTokens() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserved
}

// ActiveBatches returns the number of outstanding reservations.
func (l *TokenLedger) ActiveBatches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.allocations)
}

// Status returns all ledger counters as one snapshot.
func (l *TokenLedger) Status() BudgetStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked()
}

// statusLocked builds a BudgetStatus. Callers must hold l.mu.
func (l *TokenLedger) statusLocked() BudgetStatus {
	return BudgetStatus{
		Total:              l.total,
		Used:               l.used,
		Reserved:           l.reserved,
		Available:          l.total - l.used - l.reserved,
		ActiveBatches:      len(l.allocations),
		UtilizationPercent: float64(l.used+l.reserved) / float64(l.total) * 100,
	}
}

func (l *TokenLedger) notifyStatus(status BudgetStatus) {
	if l.observer != nil {
		l.observer.ObserveBudget(status)
	}
}

func (l *TokenLedger) notifyRejected() {
	if l.observer != nil {
		l.observer.ObserveRejectedReservation()
	}
}
