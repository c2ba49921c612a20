package txn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	var order []string

	tx := New(testLogger())
	tx.Add("one", func(ctx context.Context) error {
		order = append(order, "one")
		return nil
	}, nil)
	tx.Add("two", func(ctx context.Context) error {
		order = append(order, "two")
		return nil
	}, nil)

	if err := tx.Execute(context.Background()); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if len(order) != 2 || order[0] != "one" || order[1] != "two" {
		t.Fatalf("unexpected execution order: %v", order)
	}
}

func TestExecuteRollsBackInReverseOnFailure(t *testing.T) {
	var undone []string
	boom := errors.New("boom")

	tx := New(testLogger())
	tx.Add("create-database", func(ctx context.Context) error {
		return nil
	}, func(ctx context.Context) error {
		undone = append(undone, "create-database")
		return nil
	})
	tx.Add("create-role", func(ctx context.Context) error {
		return nil
	}, func(ctx context.Context) error {
		undone = append(undone, "create-role")
		return nil
	})
	tx.Add("create-collection", func(ctx context.Context) error {
		return boom
	}, nil)

	err := tx.Execute(context.Background())
	if err == nil {
		t.Fatal("expected Execute to return an error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped boom error, got %v", err)
	}

	if len(undone) != 2 || undone[0] != "create-role" || undone[1] != "create-database" {
		t.Fatalf("expected reverse rollback order [create-role create-database], got %v", undone)
	}
}

func TestExecuteNoStepsSucceeds(t *testing.T) {
	tx := New(testLogger())
	if err := tx.Execute(context.Background()); err != nil {
		t.Fatalf("expected empty transaction to succeed, got %v", err)
	}
}

func TestRollbackContinuesAfterUndoFailure(t *testing.T) {
	var undoCalls int
	boom := errors.New("boom")

	tx := New(testLogger())
	tx.Add("first", func(ctx context.Context) error {
		return nil
	}, func(ctx context.Context) error {
		undoCalls++
		return errors.New("undo failed")
	})
	tx.Add("second", func(ctx context.Context) error {
		return nil
	}, func(ctx context.Context) error {
		undoCalls++
		return nil
	})
	tx.Add("third", func(ctx context.Context) error {
		return boom
	}, nil)

	_ = tx.Execute(context.Background())

	if undoCalls != 2 {
		t.Errorf("expected both undo steps to run despite failure, got %d calls", undoCalls)
	}
}
