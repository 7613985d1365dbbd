// README: Reconciler tests: manual ticks, single-flight sweeps, and survival after failures.
package booking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sagnify/ambulance-booking/internal/config"
	"github.com/Sagnify/ambulance-booking/internal/modules/driver"
)

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

// tick blocks until the reconciler loop has received the tick.
func (m *manualTicker) tick() { m.ch <- time.Now() }

// flakyStore fails or panics on the first listings, then behaves.
type flakyStore struct {
	*MemoryStore
	calls atomic.Int32
}

func (s *flakyStore) ListPending(ctx context.Context, before time.Time, limit int) ([]Booking, error) {
	switch s.calls.Add(1) {
	case 1:
		return nil, errors.New("connection refused")
	case 2:
		panic("unexpected nil row")
	}
	return s.MemoryStore.ListPending(ctx, before, limit)
}

func newReconcilerEnv(t *testing.T, store Store, mem *MemoryStore, clock *fakeClock) (*Reconciler, *manualTicker, *Service) {
	t.Helper()
	svc := NewService(Deps{Store: store, Drivers: mem.Drivers(), Clock: clock})
	policy := NewPolicy(svc, config.LifecycleConfig{})
	ticker := newManualTicker()
	r := NewReconciler(policy, nil, nil, WithTicker(func(d time.Duration) Ticker {
		if d != DefaultSweepInterval {
			t.Errorf("ticker interval = %s, want %s", d, DefaultSweepInterval)
		}
		return ticker
	}))
	return r, ticker, svc
}

func TestReconcilerRunSurvivesFailures(t *testing.T) {
	mem := NewMemoryStore()
	mem.PutDriver(driver.Driver{ID: "d1", HospitalID: "H", Availability: driver.AvailabilityAvailable})
	store := &flakyStore{MemoryStore: mem}
	clock := newFakeClock()
	r, ticker, svc := newReconcilerEnv(t, store, mem, clock)

	id := mustCreateBooking(t, svc, "u1", "H")
	clock.Advance(31 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	ticker.tick() // error
	ticker.tick() // panic
	ticker.tick() // assigns
	ticker.tick() // ensures the previous sweep has returned
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if !ticker.stopped.Load() {
		t.Fatal("ticker not stopped")
	}
	assertStatus(t, svc, id, StatusAssigned)
}

// blockingStore parks ListPending until released.
type blockingStore struct {
	*MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingStore) ListPending(ctx context.Context, before time.Time, limit int) ([]Booking, error) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.MemoryStore.ListPending(ctx, before, limit)
}

func TestReconcilerSingleFlight(t *testing.T) {
	mem := NewMemoryStore()
	store := &blockingStore{MemoryStore: mem, entered: make(chan struct{}), release: make(chan struct{})}
	r, _, _ := newReconcilerEnv(t, store, mem, newFakeClock())

	firstDone := make(chan error, 1)
	go func() {
		_, err := r.RunOnce(context.Background())
		firstDone <- err
	}()
	<-store.entered

	if _, err := r.RunOnce(context.Background()); !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("concurrent RunOnce err = %v, want ErrSweepInProgress", err)
	}

	close(store.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep after release: %v", err)
	}
}

func TestReconcilerRunOnceRecoversPanic(t *testing.T) {
	mem := NewMemoryStore()
	store := &flakyStore{MemoryStore: mem}
	store.calls.Store(1)
	r, _, _ := newReconcilerEnv(t, store, mem, newFakeClock())

	_, err := r.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error from panicking sweep")
	}
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("lock not released after panic: %v", err)
	}
}
