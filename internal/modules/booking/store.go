// README: Booking store contract and its PostgreSQL implementation (compare-and-set writes in one transaction).
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sagnify/ambulance-booking/internal/types"
)

// Store persists bookings together with the driver availability they consume.
// Allocate and Transition are conditional writes: they either apply every
// change, including the audit event, or none.
type Store interface {
	// Create inserts a pending booking. ErrActiveBooking if the requester already has one.
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	// ListPending returns pending bookings requested at or before the cutoff, oldest first.
	ListPending(ctx context.Context, requestedBefore time.Time, limit int) ([]Booking, error)
	// ListAvailableDrivers returns available driver IDs of a hospital in ascending ID order.
	ListAvailableDrivers(ctx context.Context, hospitalID types.ID) ([]types.ID, error)
	// Allocate moves the booking pending→assigned and the driver available→busy.
	// ErrBookingNotPending or ErrDriverTaken when the respective guard fails.
	Allocate(ctx context.Context, a Allocation) error
	// Transition applies a status change guarded by status and version. ErrConflict when the guard fails.
	Transition(ctx context.Context, tr Transition) error
	ActiveByRequester(ctx context.Context, requesterID types.ID) (*Booking, error)
	ListActiveByDriver(ctx context.Context, driverID types.ID) ([]Booking, error)
	ListByHospital(ctx context.Context, hospitalID types.ID, statuses []Status) ([]Booking, error)
	ListEvents(ctx context.Context, bookingID types.ID) ([]Event, error)
}

type Allocation struct {
	BookingID  types.ID
	HospitalID types.ID
	DriverID   types.ID
	At         time.Time
	Auto       bool
	Actor      Actor
}

type Transition struct {
	BookingID  types.ID
	HospitalID types.ID
	From       Status
	To         Status
	Version    int
	At         time.Time
	// CompletedAt is set when the booking reaches a terminal status.
	CompletedAt  *time.Time
	CancelReason *string
	// Driver is the linked driver, if any. ClearDriver unlinks it and
	// ReleaseDriver returns it from busy to available.
	Driver        *types.ID
	ClearDriver   bool
	ReleaseDriver bool
	Actor         Actor
}

func (a Allocation) event() Event {
	d := a.DriverID
	return Event{
		BookingID:  a.BookingID,
		HospitalID: a.HospitalID,
		FromStatus: StatusPending,
		ToStatus:   StatusAssigned,
		ActorType:  a.Actor.Type,
		ActorID:    a.Actor.idPtr(),
		DriverID:   &d,
		CreatedAt:  a.At,
	}
}

func (tr Transition) event() Event {
	ev := Event{
		BookingID:  tr.BookingID,
		HospitalID: tr.HospitalID,
		FromStatus: tr.From,
		ToStatus:   tr.To,
		ActorType:  tr.Actor.Type,
		ActorID:    tr.Actor.idPtr(),
		DriverID:   tr.Driver,
		CreatedAt:  tr.At,
	}
	if tr.CancelReason != nil {
		ev.Reason = *tr.CancelReason
	}
	return ev
}

func creationEvent(b *Booking) Event {
	return Event{
		BookingID:  b.ID,
		HospitalID: b.HospitalID,
		FromStatus: StatusNone,
		ToStatus:   StatusPending,
		ActorType:  ActorRequester,
		ActorID:    &b.RequesterID,
		CreatedAt:  b.RequestedAt,
	}
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const bookingColumns = `id, requester_id, hospital_id, status, status_version,
	pickup_location, pickup_lat, pickup_lng, destination, booking_type,
	emergency_type, severity, patient_name, patient_phone, accident_details,
	driver_id, auto_assigned, cancel_reason, requested_at, assigned_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, b *Booking) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var lat, lng *float64
	if b.Details.Pickup != nil {
		lat, lng = &b.Details.Pickup.Lat, &b.Details.Pickup.Lng
	}
	var accident []byte
	if len(b.Details.AccidentDetails) > 0 {
		accident = b.Details.AccidentDetails
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (
			id, requester_id, hospital_id, status, status_version,
			pickup_location, pickup_lat, pickup_lng, destination, booking_type,
			emergency_type, severity, patient_name, patient_phone, accident_details,
			requested_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16
		)`,
		string(b.ID), string(b.RequesterID), string(b.HospitalID), string(b.Status), b.StatusVersion,
		b.Details.PickupLocation, lat, lng, b.Details.Destination, b.Details.BookingType,
		b.Details.EmergencyType, b.Details.Severity, b.Details.PatientName, b.Details.PatientPhone, accident,
		b.RequestedAt,
	)
	if isUniqueViolation(err) {
		return ErrActiveBooking
	}
	if isForeignKeyViolation(err) {
		return ErrHospitalNotFound
	}
	if err != nil {
		return err
	}
	if err := appendEvent(ctx, tx, creationEvent(b)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, string(id))
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *PostgresStore) ListPending(ctx context.Context, requestedBefore time.Time, limit int) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'pending' AND requested_at <= $1
		ORDER BY requested_at, id
		LIMIT $2`,
		requestedBefore, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *PostgresStore) ListAvailableDrivers(ctx context.Context, hospitalID types.ID) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM drivers
		WHERE hospital_id = $1 AND availability = 'available'
		ORDER BY id`,
		string(hospitalID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, types.ID(id))
	}
	return out, rows.Err()
}

// Allocate locks the booking row before the driver row; Transition uses the same order.
func (s *PostgresStore) Allocate(ctx context.Context, a Allocation) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = 'assigned',
		    status_version = status_version + 1,
		    driver_id = $2,
		    assigned_at = $3,
		    auto_assigned = $4
		WHERE id = $1 AND hospital_id = $5 AND status = 'pending'`,
		string(a.BookingID), string(a.DriverID), a.At, a.Auto, string(a.HospitalID),
	)
	if isUniqueViolation(err) {
		// bookings_one_active_per_driver: the driver already serves another booking.
		return ErrDriverTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrBookingNotPending
	}

	tag, err = tx.Exec(ctx, `
		UPDATE drivers SET availability = 'busy'
		WHERE id = $1 AND hospital_id = $2 AND availability = 'available'`,
		string(a.DriverID), string(a.HospitalID),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrDriverTaken
	}

	if err := appendEvent(ctx, tx, a.event()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Transition(ctx context.Context, tr Transition) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
		    status_version = status_version + 1,
		    completed_at = COALESCE($5, completed_at),
		    cancel_reason = COALESCE($6, cancel_reason),
		    driver_id = CASE WHEN $7::boolean THEN NULL ELSE driver_id END
		WHERE id = $1 AND status = $3 AND status_version = $4`,
		string(tr.BookingID), string(tr.To), string(tr.From), tr.Version,
		tr.CompletedAt, tr.CancelReason, tr.ClearDriver,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}

	if tr.ReleaseDriver && tr.Driver != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE drivers SET availability = 'available'
			WHERE id = $1 AND availability = 'busy'`,
			string(*tr.Driver),
		); err != nil {
			return err
		}
	}

	if err := appendEvent(ctx, tx, tr.event()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ActiveByRequester(ctx context.Context, requesterID types.ID) (*Booking, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE requester_id = $1
		  AND status IN ('pending','assigned','on_route','arrived')
		ORDER BY requested_at DESC
		LIMIT 1`,
		string(requesterID),
	)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *PostgresStore) ListActiveByDriver(ctx context.Context, driverID types.ID) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE driver_id = $1
		  AND status IN ('assigned','on_route','arrived')
		ORDER BY assigned_at DESC`,
		string(driverID),
	)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *PostgresStore) ListByHospital(ctx context.Context, hospitalID types.ID, statuses []Status) ([]Booking, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE hospital_id = $1 AND status = ANY($2)
		ORDER BY requested_at DESC, id`,
		string(hospitalID), names,
	)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *PostgresStore) ListEvents(ctx context.Context, bookingID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, booking_id, from_status, to_status, actor_type, actor_id, driver_id, reason, created_at
		FROM booking_events
		WHERE booking_id = $1
		ORDER BY id`,
		string(bookingID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var bookingID, from, to, actorType string
		var actorID, driverID, reason *string
		if err := rows.Scan(&e.ID, &bookingID, &from, &to, &actorType, &actorID, &driverID, &reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.BookingID = types.ID(bookingID)
		e.FromStatus = Status(from)
		e.ToStatus = Status(to)
		e.ActorType = ActorType(actorType)
		e.ActorID = toIDPtr(actorID)
		e.DriverID = toIDPtr(driverID)
		if reason != nil {
			e.Reason = *reason
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func appendEvent(ctx context.Context, tx pgx.Tx, e Event) error {
	var reason *string
	if e.Reason != "" {
		reason = &e.Reason
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO booking_events (
			booking_id, from_status, to_status, actor_type, actor_id, driver_id, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(e.BookingID),
		string(e.FromStatus),
		string(e.ToStatus),
		string(e.ActorType),
		toStringPtr(e.ActorID),
		toStringPtr(e.DriverID),
		reason,
		e.CreatedAt,
	)
	return err
}

func collectBookings(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var id, requesterID, hospitalID, status string
	var lat, lng *float64
	var accident []byte
	var driverID, cancelReason *string

	err := row.Scan(
		&id, &requesterID, &hospitalID, &status, &b.StatusVersion,
		&b.Details.PickupLocation, &lat, &lng, &b.Details.Destination, &b.Details.BookingType,
		&b.Details.EmergencyType, &b.Details.Severity, &b.Details.PatientName, &b.Details.PatientPhone, &accident,
		&driverID, &b.AutoAssigned, &cancelReason, &b.RequestedAt, &b.AssignedAt, &b.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	b.ID = types.ID(id)
	b.RequesterID = types.ID(requesterID)
	b.HospitalID = types.ID(hospitalID)
	b.Status = Status(status)
	if lat != nil && lng != nil {
		b.Details.Pickup = &types.Point{Lat: *lat, Lng: *lng}
	}
	if len(accident) > 0 {
		b.Details.AccidentDetails = json.RawMessage(accident)
	}
	b.DriverID = toIDPtr(driverID)
	b.CancelReason = cancelReason
	return &b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
