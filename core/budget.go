package core

import (
	"fmt"
	"sync"
)

// DefaultMaxRounds is the number of model calls a single run may spend
// before the loop gives up and returns a degraded answer.
const DefaultMaxRounds = 8

// BudgetExceededError is returned by RunBudget.Spend once a run has used up
// its model call allowance. The loop converts it into a degraded final
// response rather than failing the process.
type BudgetExceededError struct {
	Limit int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("run budget exhausted after %d model calls", e.Limit)
}

// RunBudget counts model calls for one run and enforces an upper bound.
// A limit of 0 disables enforcement (unbounded). Safe for concurrent use.
type RunBudget struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewRunBudget creates a budget allowing up to limit model calls.
// A negative limit is treated as DefaultMaxRounds.
func NewRunBudget(limit int) *RunBudget {
	if limit < 0 {
		limit = DefaultMaxRounds
	}
	return &RunBudget{limit: limit}
}

// Spend consumes one model call from the budget. It returns a
// *BudgetExceededError when the allowance is already used up; the failed
// spend does not count against the budget.
func (b *RunBudget) Spend() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && b.used >= b.limit {
		return &BudgetExceededError{Limit: b.limit}
	}
	b.used++
	return nil
}

// Used returns the number of model calls consumed so far.
func (b *RunBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Remaining returns the number of model calls left, or -1 when the budget
// is unbounded.
func (b *RunBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit <= 0 {
		return -1
	}
	if b.used >= b.limit {
		return 0
	}
	return b.limit - b.used
}
