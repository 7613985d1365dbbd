// README: In-memory booking store and driver registry guarded by one mutex; used in tests and single-node dev runs.
package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Sagnify/ambulance-booking/internal/modules/driver"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

// MemoryStore keeps bookings and drivers under a single lock so every
// dual write is atomic.
type MemoryStore struct {
	mu       sync.Mutex
	bookings map[types.ID]*Booking
	drivers  map[types.ID]*driver.Driver
	events   []Event

	// failAllocate, when set, runs after both guards pass and aborts the write with its error.
	failAllocate func(Allocation) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: map[types.ID]*Booking{},
		drivers:  map[types.ID]*driver.Driver{},
	}
}

// PutDriver inserts or replaces a driver record.
func (s *MemoryStore) PutDriver(d driver.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := d
	s.drivers[d.ID] = &cp
}

// Drivers exposes the driver side of the store as a driver.Registry.
func (s *MemoryStore) Drivers() driver.Registry {
	return memoryDrivers{s: s}
}

func (s *MemoryStore) Create(_ context.Context, b *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[b.ID]; ok {
		return ErrConflict
	}
	for _, other := range s.bookings {
		if other.RequesterID == b.RequesterID && !other.Status.IsTerminal() {
			return ErrActiveBooking
		}
	}
	s.bookings[b.ID] = b.clone()
	s.appendEventLocked(creationEvent(b))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.clone(), nil
}

func (s *MemoryStore) ListPending(_ context.Context, requestedBefore time.Time, limit int) ([]Booking, error) {
	s.mu.Lock()
	out := s.filterLocked(func(b *Booking) bool {
		return b.Status == StatusPending && !b.RequestedAt.After(requestedBefore)
	})
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListAvailableDrivers(_ context.Context, hospitalID types.ID) ([]types.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ID
	for _, d := range s.drivers {
		if d.HospitalID == hospitalID && d.Availability == driver.AvailabilityAvailable {
			out = append(out, d.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryStore) Allocate(_ context.Context, a Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[a.BookingID]
	if !ok || b.HospitalID != a.HospitalID || b.Status != StatusPending {
		return ErrBookingNotPending
	}
	d, ok := s.drivers[a.DriverID]
	if !ok || d.HospitalID != a.HospitalID || d.Availability != driver.AvailabilityAvailable {
		return ErrDriverTaken
	}
	if s.failAllocate != nil {
		if err := s.failAllocate(a); err != nil {
			return err
		}
	}

	driverID := a.DriverID
	at := a.At
	b.Status = StatusAssigned
	b.StatusVersion++
	b.DriverID = &driverID
	b.AssignedAt = &at
	b.AutoAssigned = a.Auto
	d.Availability = driver.AvailabilityBusy
	s.appendEventLocked(a.event())
	return nil
}

func (s *MemoryStore) Transition(_ context.Context, tr Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[tr.BookingID]
	if !ok || b.Status != tr.From || b.StatusVersion != tr.Version {
		return ErrConflict
	}

	b.Status = tr.To
	b.StatusVersion++
	if tr.CompletedAt != nil {
		b.CompletedAt = cloneTime(tr.CompletedAt)
	}
	if tr.CancelReason != nil {
		r := *tr.CancelReason
		b.CancelReason = &r
	}
	if tr.ClearDriver {
		b.DriverID = nil
	}
	if tr.ReleaseDriver && tr.Driver != nil {
		if d, ok := s.drivers[*tr.Driver]; ok && d.Availability == driver.AvailabilityBusy {
			d.Availability = driver.AvailabilityAvailable
		}
	}
	s.appendEventLocked(tr.event())
	return nil
}

func (s *MemoryStore) ActiveByRequester(_ context.Context, requesterID types.ID) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.RequesterID == requesterID && !b.Status.IsTerminal() {
			return b.clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListActiveByDriver(_ context.Context, driverID types.ID) ([]Booking, error) {
	s.mu.Lock()
	out := s.filterLocked(func(b *Booking) bool {
		return b.AssignedTo(driverID) && !b.Status.IsTerminal()
	})
	s.mu.Unlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) ListByHospital(_ context.Context, hospitalID types.ID, statuses []Status) ([]Booking, error) {
	want := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	s.mu.Lock()
	out := s.filterLocked(func(b *Booking) bool {
		return b.HospitalID == hospitalID && want[b.Status]
	})
	s.mu.Unlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, bookingID types.ID) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) filterLocked(keep func(*Booking) bool) []Booking {
	var out []Booking
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, *b.clone())
		}
	}
	return out
}

func (s *MemoryStore) appendEventLocked(e Event) {
	e.ID = int64(len(s.events) + 1)
	s.events = append(s.events, e)
}

func sortNewestFirst(bs []Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].RequestedAt.Equal(bs[j].RequestedAt) {
			return bs[i].ID < bs[j].ID
		}
		return bs[i].RequestedAt.After(bs[j].RequestedAt)
	})
}

type memoryDrivers struct {
	s *MemoryStore
}

func (m memoryDrivers) GetDriver(_ context.Context, id types.ID) (*driver.Driver, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	d, ok := m.s.drivers[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	cp := cloneDriver(d)
	return &cp, nil
}

func (m memoryDrivers) ListByHospital(_ context.Context, hospitalID types.ID) ([]driver.Driver, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []driver.Driver
	for _, d := range m.s.drivers {
		if d.HospitalID == hospitalID {
			out = append(out, cloneDriver(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memoryDrivers) SetAvailability(_ context.Context, id types.ID, to driver.Availability) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	d, ok := m.s.drivers[id]
	if !ok {
		return driver.ErrNotFound
	}
	if d.Availability == driver.AvailabilityBusy {
		return driver.ErrDriverBusy
	}
	d.Availability = to
	return nil
}

func (m memoryDrivers) UpdateLocation(_ context.Context, id types.ID, p types.Point, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	d, ok := m.s.drivers[id]
	if !ok {
		return driver.ErrNotFound
	}
	d.Location = &p
	d.LocationUpdatedAt = &at
	return nil
}

func cloneDriver(d *driver.Driver) driver.Driver {
	cp := *d
	if d.Location != nil {
		p := *d.Location
		cp.Location = &p
	}
	cp.LocationUpdatedAt = cloneTime(d.LocationUpdatedAt)
	return cp
}
