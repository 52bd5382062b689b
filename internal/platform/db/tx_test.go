package db

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestLocalTransactor_Nested(t *testing.T) {
	tr := NewLocalTransactor()
	calls := 0
	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		calls++
		return tr.WithinTx(ctx, func(context.Context) error {
			calls++
			return nil
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestLocalTransactor_PropagatesError(t *testing.T) {
	tr := NewLocalTransactor()
	want := errors.New("boom")
	if err := tr.WithinTx(context.Background(), func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestLocalTransactor_Serialises(t *testing.T) {
	tr := NewLocalTransactor()
	var inside, maxInside int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.WithinTx(context.Background(), func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Errorf("expected at most one section at a time, saw %d", maxInside)
	}
}

func TestTxFromContext_Empty(t *testing.T) {
	if TxFromContext(context.Background()) != nil {
		t.Error("expected nil tx on empty context")
	}
}
