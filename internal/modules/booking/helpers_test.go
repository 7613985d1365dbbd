// README: Shared fixtures for booking tests: fake clock, recording publisher, seeded memory store.
package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sagnify/ambulance-booking/internal/config"
	"github.com/Sagnify/ambulance-booking/internal/modules/driver"
	"github.com/Sagnify/ambulance-booking/internal/modules/hospital"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) transitions() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Status, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.ToStatus)
	}
	return out
}

type testEnv struct {
	svc       *Service
	store     *MemoryStore
	hospitals *hospital.MemoryDirectory
	clock     *fakeClock
	pub       *recordingPublisher
	policy    *Policy
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := NewMemoryStore()
	clock := newFakeClock()
	pub := &recordingPublisher{}
	hospitals := hospital.NewMemoryDirectory(
		hospital.Hospital{ID: "h1", Name: "City Hospital"},
		hospital.Hospital{ID: "h2", Name: "Medical College"},
	)
	svc := NewService(Deps{
		Store:     store,
		Drivers:   store.Drivers(),
		Hospitals: hospitals,
		Clock:     clock,
		Publisher: pub,
	})
	policy := NewPolicy(svc, config.LifecycleConfig{
		SweepInterval: 30 * time.Second,
		AssignAfter:   30 * time.Second,
		CancelAfter:   2 * time.Minute,
		BatchSize:     100,
	})
	return &testEnv{svc: svc, store: store, hospitals: hospitals, clock: clock, pub: pub, policy: policy}
}

func (e *testEnv) addDriver(id, hospitalID types.ID, a driver.Availability) {
	e.store.PutDriver(driver.Driver{ID: id, HospitalID: hospitalID, Name: "Driver " + string(id), Availability: a})
}

func (e *testEnv) driverAvailability(t *testing.T, id types.ID) driver.Availability {
	t.Helper()
	d, err := e.store.Drivers().GetDriver(context.Background(), id)
	if err != nil {
		t.Fatalf("get driver %s: %v", id, err)
	}
	return d.Availability
}

func mustCreateBooking(t *testing.T, svc *Service, requester, hospitalID types.ID) types.ID {
	t.Helper()
	id, err := svc.Create(context.Background(), CreateCommand{
		RequesterID: requester,
		HospitalID:  hospitalID,
		Details: Details{
			PickupLocation: "12 Park Street",
			Pickup:         &types.Point{Lat: 22.5535, Lng: 88.3520},
			BookingType:    "emergency",
			EmergencyType:  "cardiac",
			Severity:       "high",
		},
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return id
}

func assertStatus(t *testing.T, svc *Service, id types.ID, want Status) *Booking {
	t.Helper()
	b, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if b.Status != want {
		t.Fatalf("booking %s status = %s, want %s", id, b.Status, want)
	}
	return b
}

// assertLinkInvariant checks that a driver link exists exactly for statuses that hold a driver.
func assertLinkInvariant(t *testing.T, b *Booking) {
	t.Helper()
	if b.Status.HasDriver() != (b.DriverID != nil) {
		t.Fatalf("booking %s status %s has driver link %v", b.ID, b.Status, b.DriverID)
	}
}

var hospitalActor = Actor{Type: ActorHospital, ID: "h1"}

// failingStore accepts reads but fails every status write.
type failingStore struct {
	*MemoryStore
	err error
}

func (s failingStore) Transition(context.Context, Transition) error { return s.err }

type brokenDirectory struct{}

func (brokenDirectory) GetHospital(context.Context, types.ID) (*hospital.Hospital, error) {
	return nil, errors.New("directory offline")
}
