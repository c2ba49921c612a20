// Package txn implements the saga-style transaction manager used by tenant
// provisioning: each step records a forward action and an optional undo
// action, and a failure at any point runs the undo actions of the steps
// already completed, in reverse order. Steps registered with a nil undo
// are not reversed.
package txn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vectorgate/vectorgate/internal/telemetry"
)

// Step is a single reversible unit of work.
type Step struct {
	// Name identifies the step for logging and error wrapping.
	Name string
	// Do performs the forward action.
	Do func(ctx context.Context) error
	// Undo reverses Do's effect. Called only if Do succeeded and a later
	// step fails. May be nil for steps with no side effect to reverse.
	Undo func(ctx context.Context) error
}

// Transaction accumulates steps and executes them in order, rolling back
// everything already applied if any step fails.
type Transaction struct {
	logger *slog.Logger
	steps  []Step
}

// New begins a transaction scope.
func New(logger *slog.Logger) *Transaction {
	return &Transaction{logger: logger}
}

// Add appends a step to the transaction. Steps execute in the order added.
func (t *Transaction) Add(name string, do, undo func(ctx context.Context) error) {
	t.steps = append(t.steps, Step{Name: name, Do: do, Undo: undo})
}

// Execute runs every step in order. On failure it rolls back all
// previously applied steps in reverse (LIFO) order and returns the
// original error, wrapped with the failing step's name.
func (t *Transaction) Execute(ctx context.Context) error {
	applied := make([]Step, 0, len(t.steps))

	for _, step := range t.steps {
		if err := step.Do(ctx); err != nil {
			t.rollback(ctx, applied)
			telemetry.TransactionRollbackTotal.Inc()
			return fmt.Errorf("step %q failed: %w", step.Name, err)
		}
		applied = append(applied, step)
	}

	return nil
}

// rollback undoes applied steps in reverse order. Individual undo failures
// are logged, not returned — the caller already has the original failure
// and a partially-unwound transaction is still preferable to giving up.
func (t *Transaction) rollback(ctx context.Context, applied []Step) {
	for i := len(applied) - 1; i >= 0; i-- {
		step := applied[i]
		if step.Undo == nil {
			continue
		}
		if err := step.Undo(ctx); err != nil {
			t.logger.Error("rollback step failed", "step", step.Name, "error", err)
		}
	}
}
