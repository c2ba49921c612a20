package connpool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vectorgate/vectorgate/internal/vectordb"
)

type fakeEngine struct {
	vectordb.Engine
	closed int32
}

func (f *fakeEngine) Close() error {
	atomic.AddInt32(&f.closed, 1)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAcquireCreatesOnFirstCall(t *testing.T) {
	var creates int32
	factory := func(ctx context.Context, key Key) (vectordb.Engine, error) {
		atomic.AddInt32(&creates, 1)
		return &fakeEngine{}, nil
	}

	p := New(factory, 10, time.Minute, 0, testLogger())
	key := Key{URI: "http://milvus:19530", User: "acme", DB: "acme_db"}

	if _, err := p.Acquire(context.Background(), key); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := p.Acquire(context.Background(), key); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if creates != 1 {
		t.Errorf("expected factory called once, got %d", creates)
	}
	if p.Len() != 1 {
		t.Errorf("expected 1 pooled entry, got %d", p.Len())
	}
}

func TestAcquireExhausted(t *testing.T) {
	factory := func(ctx context.Context, key Key) (vectordb.Engine, error) {
		return &fakeEngine{}, nil
	}

	p := New(factory, 1, time.Minute, 0, testLogger())

	if _, err := p.Acquire(context.Background(), Key{URI: "a", User: "u", DB: "d1"}); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	_, err := p.Acquire(context.Background(), Key{URI: "a", User: "u", DB: "d2"})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestSweepEvictsIdleEntries(t *testing.T) {
	engine := &fakeEngine{}
	factory := func(ctx context.Context, key Key) (vectordb.Engine, error) {
		return engine, nil
	}

	p := New(factory, 10, 10*time.Millisecond, 0, testLogger())
	key := Key{URI: "a", User: "u", DB: "d"}

	if _, err := p.Acquire(context.Background(), key); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(key)

	evicted := p.Sweep(time.Now().Add(time.Hour))
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if atomic.LoadInt32(&engine.closed) != 1 {
		t.Error("expected engine to be closed on eviction")
	}
}

func TestSweepRespectsSoftFloor(t *testing.T) {
	factory := func(ctx context.Context, key Key) (vectordb.Engine, error) {
		return &fakeEngine{}, nil
	}

	p := New(factory, 10, time.Millisecond, 5, testLogger())
	for i := 0; i < 3; i++ {
		key := Key{URI: "a", User: "u", DB: string(rune('a' + i))}
		if _, err := p.Acquire(context.Background(), key); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		p.Release(key)
	}

	evicted := p.Sweep(time.Now().Add(time.Hour))
	if evicted != 0 {
		t.Errorf("expected no eviction below soft floor, got %d", evicted)
	}
}

func TestSweepSkipsReferencedEntries(t *testing.T) {
	factory := func(ctx context.Context, key Key) (vectordb.Engine, error) {
		return &fakeEngine{}, nil
	}

	p := New(factory, 10, time.Millisecond, 0, testLogger())
	key := Key{URI: "a", User: "u", DB: "d"}

	if _, err := p.Acquire(context.Background(), key); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Not released — refCount stays at 1.

	evicted := p.Sweep(time.Now().Add(time.Hour))
	if evicted != 0 {
		t.Errorf("expected referenced entry to survive sweep, got %d evicted", evicted)
	}
}
