// README: PostgreSQL store tests (skipped unless AMBULANCE_TEST_DSN is set).
package booking

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sagnify/ambulance-booking/internal/config"
	"github.com/Sagnify/ambulance-booking/internal/modules/driver"
	"github.com/Sagnify/ambulance-booking/internal/modules/hospital"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

func TestPostgresAllocateGuards(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()
	seedDriver(t, db, "d1", "h1", driver.AvailabilityAvailable)
	seedDriver(t, db, "d2", "h1", driver.AvailabilityBusy)

	svc := NewService(Deps{Store: store, Drivers: driver.NewPostgresStore(db)})
	id := mustCreateBooking(t, svc, "u1", "h1")

	now := time.Now()
	err := store.Allocate(ctx, Allocation{BookingID: id, HospitalID: "h1", DriverID: "d2", At: now, Actor: SystemActor})
	if !errors.Is(err, ErrDriverTaken) {
		t.Fatalf("busy driver: err = %v, want ErrDriverTaken", err)
	}
	assertStatus(t, svc, id, StatusPending)

	if err := store.Allocate(ctx, Allocation{BookingID: id, HospitalID: "h1", DriverID: "d1", At: now, Auto: true, Actor: SystemActor}); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	err = store.Allocate(ctx, Allocation{BookingID: id, HospitalID: "h1", DriverID: "d1", At: now, Actor: SystemActor})
	if !errors.Is(err, ErrBookingNotPending) {
		t.Fatalf("second allocate: err = %v, want ErrBookingNotPending", err)
	}

	b := assertStatus(t, svc, id, StatusAssigned)
	if !b.AssignedTo("d1") || !b.AutoAssigned {
		t.Fatalf("booking = %+v", b)
	}
	pool, err := store.ListAvailableDrivers(ctx, "h1")
	if err != nil {
		t.Fatalf("list drivers: %v", err)
	}
	if len(pool) != 0 {
		t.Fatalf("pool = %v, want empty", pool)
	}
}

func TestPostgresActiveBookingUnique(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	b := &Booking{ID: "b1", RequesterID: "u1", HospitalID: "h1", Status: StatusPending, RequestedAt: time.Now(), Details: Details{PickupLocation: "x"}}
	if err := store.Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &Booking{ID: "b2", RequesterID: "u1", HospitalID: "h1", Status: StatusPending, RequestedAt: time.Now(), Details: Details{PickupLocation: "y"}}
	if err := store.Create(ctx, dup); !errors.Is(err, ErrActiveBooking) {
		t.Fatalf("err = %v, want ErrActiveBooking", err)
	}
}

func TestPostgresCreateUnknownHospital(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	b := &Booking{ID: "b1", RequesterID: "u1", HospitalID: "no-such-hospital", Status: StatusPending, RequestedAt: time.Now(), Details: Details{PickupLocation: "x", BookingType: "emergency"}}
	if err := store.Create(ctx, b); !errors.Is(err, ErrHospitalNotFound) {
		t.Fatalf("store create: err = %v, want ErrHospitalNotFound", err)
	}

	svc := NewService(Deps{Store: store, Drivers: driver.NewPostgresStore(db), Hospitals: hospital.NewPostgresStore(db)})
	_, err := svc.Create(ctx, CreateCommand{RequesterID: "u1", HospitalID: "no-such-hospital", Details: Details{PickupLocation: "x", BookingType: "emergency"}})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("service create: err = %v, want ErrBadRequest", err)
	}
	mustCreateBooking(t, svc, "u1", "h1")
}

func TestPostgresFlowAndRelease(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()
	seedDriver(t, db, "d1", "h1", driver.AvailabilityAvailable)
	drivers := driver.NewPostgresStore(db)
	svc := NewService(Deps{Store: store, Drivers: drivers})

	id := mustCreateBooking(t, svc, "u1", "h1")
	if _, err := svc.Assign(ctx, AssignCommand{BookingID: id, DriverID: "d1", Actor: hospitalActor}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	for _, s := range []Status{StatusOnRoute, StatusArrived, StatusCompleted} {
		if err := svc.AdvanceStatus(ctx, AdvanceCommand{BookingID: id, DriverID: "d1", Status: s}); err != nil {
			t.Fatalf("advance %s: %v", s, err)
		}
	}
	b := assertStatus(t, svc, id, StatusCompleted)
	assertLinkInvariant(t, b)

	d, err := drivers.GetDriver(ctx, "d1")
	if err != nil {
		t.Fatalf("get driver: %v", err)
	}
	if d.Availability != driver.AvailabilityAvailable {
		t.Fatalf("driver = %s, want available", d.Availability)
	}

	events, err := store.ListEvents(ctx, id)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("events = %d, want 5", len(events))
	}
}

func TestPostgresCancelAssignedClearsDriver(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()
	seedDriver(t, db, "d1", "h1", driver.AvailabilityAvailable)
	svc := NewService(Deps{Store: store, Drivers: driver.NewPostgresStore(db)})

	id := mustCreateBooking(t, svc, "u1", "h1")
	if _, err := svc.AutoAssign(ctx, AutoAssignCommand{BookingID: id, Actor: SystemActor}); err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	if err := svc.Cancel(ctx, CancelCommand{BookingID: id, Actor: Actor{Type: ActorRequester, ID: "u1"}}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	b := assertStatus(t, svc, id, StatusCancelled)
	assertLinkInvariant(t, b)

	pool, err := store.ListAvailableDrivers(ctx, "h1")
	if err != nil || len(pool) != 1 {
		t.Fatalf("pool = %v, %v", pool, err)
	}
}

func TestPostgresConcurrentAutoAssign(t *testing.T) {
	store, db := setupTestStore(t)
	for i := 0; i < 3; i++ {
		seedDriver(t, db, types.ID(fmt.Sprintf("d%d", i)), "h1", driver.AvailabilityAvailable)
	}
	svc := NewService(Deps{Store: store, Drivers: driver.NewPostgresStore(db)})

	ids := make([]types.ID, 8)
	for i := range ids {
		ids[i] = mustCreateBooking(t, svc, types.ID(fmt.Sprintf("u%d", i)), "h1")
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids)*2)
	for _, id := range ids {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(bid types.ID) {
				defer wg.Done()
				_, err := svc.AutoAssign(context.Background(), AutoAssignCommand{BookingID: bid, Actor: SystemActor})
				errs <- err
			}(id)
		}
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrNoDriverAvailable), errors.Is(err, ErrBookingNotPending):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 3 {
		t.Fatalf("successes = %d, want 3", success)
	}
}

func TestPostgresSweep(t *testing.T) {
	store, db := setupTestStore(t)
	seedDriver(t, db, "d1", "h1", driver.AvailabilityAvailable)
	clock := newFakeClock()
	svc := NewService(Deps{Store: store, Drivers: driver.NewPostgresStore(db), Clock: clock})
	policy := NewPolicy(svc, config.LifecycleConfig{})

	assigned := mustCreateBooking(t, svc, "u1", "h1")
	expired := mustCreateBooking(t, svc, "u2", "h1")
	clock.Advance(121 * time.Second)

	res, err := policy.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Assigned != 1 || res.Cancelled != 1 {
		t.Fatalf("sweep = %+v", res)
	}
	assertStatus(t, svc, assigned, StatusAssigned)
	b := assertStatus(t, svc, expired, StatusAutoCancelled)
	if b.CancelReason == nil || *b.CancelReason != ReasonNoAmbulanceAvailable {
		t.Fatalf("reason = %v", b.CancelReason)
	}
}

func seedDriver(t *testing.T, db *pgxpool.Pool, id, hospitalID types.ID, a driver.Availability) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO drivers (id, hospital_id, name, availability)
		VALUES ($1, $2, $3, $4)`,
		string(id), string(hospitalID), "Driver "+string(id), string(a),
	)
	if err != nil {
		t.Fatalf("seed driver: %v", err)
	}
}

func setupTestStore(t *testing.T) (*PostgresStore, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("AMBULANCE_TEST_DSN")
	if dsn == "" {
		t.Skip("AMBULANCE_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := db.Exec(ctx, "TRUNCATE TABLE booking_events, bookings, drivers, hospitals"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	if _, err := db.Exec(ctx, `
		INSERT INTO hospitals (id, name) VALUES ('h1', 'City Hospital'), ('h2', 'Medical College')`); err != nil {
		t.Fatalf("seed hospitals: %v", err)
	}

	return NewPostgresStore(db), db
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	entries, err := filepath.Glob(filepath.Join(root, "migrations", "*.sql"))
	if err != nil {
		return err
	}
	for _, path := range entries {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		cleaned := stripSQLComments(string(content))
		for _, stmt := range splitSQL(cleaned) {
			if _, err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
