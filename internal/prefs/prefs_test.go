package prefs

import (
	"context"
	"errors"
	"testing"
)

type failingBackend struct{ *MemoryBackend }

func (failingBackend) Load(context.Context) (map[string]string, error) {
	return nil, errors.New("storage offline")
}

func TestDefaultsBeforeLoad(t *testing.T) {
	s := NewStore(nil, Defaults())
	if !s.ShowStatsInIcon() {
		t.Fatal("ShowStatsInIcon() = false; want default true")
	}
	if got := s.BlockedTotal(); got != 0 {
		t.Fatalf("BlockedTotal() = %d; want 0", got)
	}
	select {
	case <-s.Loaded():
		t.Fatal("Loaded() closed before Load")
	default:
	}
}

func TestWhenLoadedRunsQueuedContinuationsInOrder(t *testing.T) {
	s := NewStore(nil, Defaults())
	var order []int
	s.WhenLoaded(func() { order = append(order, 1) })
	s.WhenLoaded(func() { order = append(order, 2) })
	if len(order) != 0 {
		t.Fatalf("continuations ran before load: %v", order)
	}

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v; want [1 2]", order)
	}

	ran := false
	s.WhenLoaded(func() { ran = true })
	if !ran {
		t.Fatal("WhenLoaded after load did not run immediately")
	}
	select {
	case <-s.Loaded():
	default:
		t.Fatal("Loaded() not closed after Load")
	}
}

func TestFailedLoadKeepsContinuationsPending(t *testing.T) {
	s := NewStore(failingBackend{NewMemoryBackend()}, Defaults())
	ran := false
	s.WhenLoaded(func() { ran = true })

	if err := s.Load(context.Background()); err == nil {
		t.Fatal("Load() = nil; want error")
	}
	if ran {
		t.Fatal("continuation ran after failed load")
	}
}

func TestLoadAppliesStoredValuesAndNotifies(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	_ = backend.Set(ctx, KeyShowStatsInIcon, "false")
	_ = backend.Set(ctx, KeyBlockedTotal, "41")

	s := NewStore(backend, Defaults())
	calls := 0
	s.OnShowStatsInIcon(func() { calls++ })

	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.ShowStatsInIcon() {
		t.Fatal("ShowStatsInIcon() = true; want stored false")
	}
	if got, want := s.BlockedTotal(), int64(41); got != want {
		t.Fatalf("BlockedTotal() = %d; want %d", got, want)
	}
	if calls != 1 {
		t.Fatalf("listener calls = %d; want 1", calls)
	}

	if err := s.IncrementBlockedTotal(ctx); err != nil {
		t.Fatalf("IncrementBlockedTotal() error = %v", err)
	}
	if got, want := s.BlockedTotal(), int64(42); got != want {
		t.Fatalf("BlockedTotal() = %d; want %d", got, want)
	}
}

func TestOnFiresOnlyOnChange(t *testing.T) {
	s := NewStore(nil, Defaults())
	ctx := context.Background()
	calls := 0
	unsubscribe := s.On(KeyShowStatsInIcon, func() { calls++ })

	if err := s.SetBool(ctx, KeyShowStatsInIcon, true); err != nil {
		t.Fatalf("SetBool() error = %v", err)
	}
	if calls != 0 {
		t.Fatalf("calls = %d after setting same value; want 0", calls)
	}

	if err := s.SetBool(ctx, KeyShowStatsInIcon, false); err != nil {
		t.Fatalf("SetBool() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d; want 1", calls)
	}

	unsubscribe()
	if err := s.SetBool(ctx, KeyShowStatsInIcon, true); err != nil {
		t.Fatalf("SetBool() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d after unsubscribe; want 1", calls)
	}
}

func TestUnsubscribeKeepsOtherListeners(t *testing.T) {
	s := NewStore(nil, Defaults())
	var a, b int
	unA := s.On(KeyShowStatsInIcon, func() { a++ })
	s.On(KeyShowStatsInIcon, func() { b++ })
	unA()

	s.Apply(KeyShowStatsInIcon, "false")
	if a != 0 || b != 1 {
		t.Fatalf("a, b = %d, %d; want 0, 1", a, b)
	}
}

func TestUnparsableValuesReadAsZero(t *testing.T) {
	s := NewStore(nil, map[string]string{KeyShowStatsInIcon: "maybe", KeyBlockedTotal: "lots"})
	if s.ShowStatsInIcon() {
		t.Fatal("ShowStatsInIcon() = true for unparsable value")
	}
	if got := s.BlockedTotal(); got != 0 {
		t.Fatalf("BlockedTotal() = %d; want 0", got)
	}
}

// scriptedIncr returns its results in order, like two increments whose
// replies arrive swapped.
type scriptedIncr struct {
	*MemoryBackend
	results []int64
}

func (b *scriptedIncr) Incr(context.Context, string) (int64, error) {
	n := b.results[0]
	b.results = b.results[1:]
	return n, nil
}

func TestIncrementNeverGoesBackwards(t *testing.T) {
	s := NewStore(&scriptedIncr{MemoryBackend: NewMemoryBackend(), results: []int64{6, 5}}, Defaults())
	changes := 0
	s.On(KeyBlockedTotal, func() { changes++ })

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.IncrementBlockedTotal(ctx); err != nil {
			t.Fatalf("IncrementBlockedTotal() error = %v", err)
		}
	}
	if got := s.BlockedTotal(); got != 6 {
		t.Fatalf("BlockedTotal() = %d; want 6", got)
	}
	if changes != 1 {
		t.Fatalf("listener ran %d times; want 1", changes)
	}
}
