// Package quota tracks the daily quota budget of the upstream video service.
//
// The ledger is a single owned object handed to every upstream call site, not
// a process global, so tests can reset it and independent pipelines can
// coexist.
package quota

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultDailyLimit is the YouTube Data API v3 default.
const DefaultDailyLimit = 10000

// ErrQuotaExceeded is the sentinel all budget rejections match via errors.Is.
// The CLI maps it to its own exit code.
var ErrQuotaExceeded = errors.New("quota exceeded")

// ErrExceeded is returned by Reserve when the requested cost does not fit in
// the remaining budget. A failed reservation charges nothing.
type ErrExceeded struct {
	Requested int
	Used      int
	Limit     int
}

func (e *ErrExceeded) Error() string {
	return fmt.Sprintf("quota exceeded: need %d units, used %d/%d", e.Requested, e.Used, e.Limit)
}

func (e *ErrExceeded) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Ledger is a process-wide quota counter. All methods are safe for
// concurrent use.
type Ledger struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewLedger creates a ledger with the given daily limit. Non-positive limits
// fall back to DefaultDailyLimit.
func NewLedger(limit int) *Ledger {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &Ledger{limit: limit}
}

// Reserve atomically charges cost units. It either charges the full cost or
// nothing; partial reservations do not exist.
func (l *Ledger) Reserve(cost int) error {
	if cost < 0 {
		return fmt.Errorf("negative quota cost %d", cost)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used+cost > l.limit {
		return &ErrExceeded{Requested: cost, Used: l.used, Limit: l.limit}
	}
	l.used += cost
	return nil
}

// Used returns the units charged so far.
func (l *Ledger) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used
}

// Remaining returns the units left in the budget.
func (l *Ledger) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit - l.used
}

// Limit returns the configured daily limit.
func (l *Ledger) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Reset clears usage. Intended for tests and for the daily rollover of a
// long-lived process.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.used = 0
}
