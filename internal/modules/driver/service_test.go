package driver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sagnify/ambulance-booking/internal/types"
)

type fakeRegistry struct {
	mu      sync.Mutex
	drivers map[types.ID]*Driver
}

func newFakeRegistry(ds ...Driver) *fakeRegistry {
	r := &fakeRegistry{drivers: map[types.ID]*Driver{}}
	for i := range ds {
		d := ds[i]
		r.drivers[d.ID] = &d
	}
	return r
}

func (r *fakeRegistry) GetDriver(_ context.Context, id types.ID) (*Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeRegistry) ListByHospital(_ context.Context, hospitalID types.ID) ([]Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Driver
	for _, d := range r.drivers {
		if d.HospitalID == hospitalID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *fakeRegistry) SetAvailability(_ context.Context, id types.ID, to Availability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[id]
	if !ok {
		return ErrNotFound
	}
	if d.Availability == AvailabilityBusy {
		return ErrDriverBusy
	}
	d.Availability = to
	return nil
}

func (r *fakeRegistry) UpdateLocation(_ context.Context, id types.ID, p types.Point, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Location = &p
	d.LocationUpdatedAt = &at
	return nil
}

type fakeIndex struct {
	got map[types.ID]types.Point
	err error
}

func (f *fakeIndex) SetDriver(_ context.Context, id types.ID, p types.Point) error {
	if f.err != nil {
		return f.err
	}
	if f.got == nil {
		f.got = map[types.ID]types.Point{}
	}
	f.got[id] = p
	return nil
}

func (f *fakeIndex) RemoveDriver(_ context.Context, id types.ID) error {
	if f.err != nil {
		return f.err
	}
	delete(f.got, id)
	return nil
}

func TestGoingOfflineLeavesIndex(t *testing.T) {
	reg := newFakeRegistry(Driver{ID: "d1", HospitalID: "h1", Availability: AvailabilityAvailable})
	idx := &fakeIndex{got: map[types.ID]types.Point{"d1": {Lat: 22.5, Lng: 88.3}}}
	svc := NewService(reg, idx, nil)

	if _, err := svc.SetAvailability(context.Background(), SetAvailabilityCommand{DriverID: "d1", Available: false}); err != nil {
		t.Fatalf("SetAvailability: %v", err)
	}
	if _, ok := idx.got["d1"]; ok {
		t.Fatal("offline driver still indexed")
	}
}

func TestSetAvailabilityToggle(t *testing.T) {
	reg := newFakeRegistry(Driver{ID: "d1", HospitalID: "h1", Availability: AvailabilityAvailable})
	svc := NewService(reg, nil, nil)
	ctx := context.Background()

	d, err := svc.SetAvailability(ctx, SetAvailabilityCommand{DriverID: "d1", Available: false})
	if err != nil {
		t.Fatalf("go offline: %v", err)
	}
	if d.Availability != AvailabilityOffline {
		t.Fatalf("availability = %s, want offline", d.Availability)
	}

	d, err = svc.SetAvailability(ctx, SetAvailabilityCommand{DriverID: "d1", Available: true})
	if err != nil {
		t.Fatalf("go online: %v", err)
	}
	if d.Availability != AvailabilityAvailable {
		t.Fatalf("availability = %s, want available", d.Availability)
	}
}

func TestSetAvailabilityRejectsBusyDriver(t *testing.T) {
	reg := newFakeRegistry(Driver{ID: "d1", HospitalID: "h1", Availability: AvailabilityBusy})
	svc := NewService(reg, nil, nil)

	_, err := svc.SetAvailability(context.Background(), SetAvailabilityCommand{DriverID: "d1", Available: false})
	if !errors.Is(err, ErrDriverBusy) {
		t.Fatalf("err = %v, want ErrDriverBusy", err)
	}
	d, _ := reg.GetDriver(context.Background(), "d1")
	if d.Availability != AvailabilityBusy {
		t.Fatalf("busy driver changed to %s", d.Availability)
	}
}

func TestSetAvailabilityUnknownDriver(t *testing.T) {
	svc := NewService(newFakeRegistry(), nil, nil)
	_, err := svc.SetAvailability(context.Background(), SetAvailabilityCommand{DriverID: "nope", Available: true})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateLocationMirrorsToIndex(t *testing.T) {
	reg := newFakeRegistry(Driver{ID: "d1", HospitalID: "h1", Availability: AvailabilityAvailable})
	idx := &fakeIndex{}
	svc := NewService(reg, idx, nil)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	p := types.Point{Lat: 22.57, Lng: 88.36}
	if err := svc.UpdateLocation(context.Background(), UpdateLocationCommand{DriverID: "d1", Position: p}); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	d, _ := reg.GetDriver(context.Background(), "d1")
	if d.Location == nil || *d.Location != p {
		t.Fatalf("location = %v, want %v", d.Location, p)
	}
	if !d.LocationUpdatedAt.Equal(fixed) {
		t.Fatalf("updated at = %v", d.LocationUpdatedAt)
	}
	if idx.got["d1"] != p {
		t.Fatalf("index not updated: %v", idx.got)
	}
}

func TestUpdateLocationIndexFailureIsNotFatal(t *testing.T) {
	reg := newFakeRegistry(Driver{ID: "d1", HospitalID: "h1"})
	svc := NewService(reg, &fakeIndex{err: errors.New("redis down")}, nil)

	err := svc.UpdateLocation(context.Background(), UpdateLocationCommand{DriverID: "d1", Position: types.Point{Lat: 1, Lng: 1}})
	if err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
}

func TestUpdateLocationRejectsInvalidPoint(t *testing.T) {
	svc := NewService(newFakeRegistry(Driver{ID: "d1"}), nil, nil)
	err := svc.UpdateLocation(context.Background(), UpdateLocationCommand{DriverID: "d1", Position: types.Point{Lat: 91, Lng: 0}})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
}

func TestCountByAvailability(t *testing.T) {
	reg := newFakeRegistry(
		Driver{ID: "d1", HospitalID: "h1", Availability: AvailabilityAvailable},
		Driver{ID: "d2", HospitalID: "h1", Availability: AvailabilityBusy},
		Driver{ID: "d3", HospitalID: "h1", Availability: AvailabilityAvailable},
		Driver{ID: "d4", HospitalID: "h2", Availability: AvailabilityAvailable},
	)
	counts, err := CountByAvailability(context.Background(), reg, "h1")
	if err != nil {
		t.Fatalf("CountByAvailability: %v", err)
	}
	if counts[AvailabilityAvailable] != 2 || counts[AvailabilityBusy] != 1 || counts[AvailabilityOffline] != 0 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestCountByAvailabilityEmptyHospital(t *testing.T) {
	counts, err := CountByAvailability(context.Background(), newFakeRegistry(), "h9")
	if err != nil {
		t.Fatalf("CountByAvailability: %v", err)
	}
	if len(counts) != 3 {
		t.Fatalf("counts = %v, want all three availabilities", counts)
	}
}
