// README: Driver registry backed by PostgreSQL.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sagnify/ambulance-booking/internal/types"
)

// Registry is the driver state the service reads and the driver app mutates.
// Busy is never entered or left through this interface.
type Registry interface {
	GetDriver(ctx context.Context, id types.ID) (*Driver, error)
	ListByHospital(ctx context.Context, hospitalID types.ID) ([]Driver, error)
	SetAvailability(ctx context.Context, id types.ID, to Availability) error
	UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const driverColumns = `id, hospital_id, name, phone, vehicle_number, availability, lat, lng, location_updated_at`

func (s *PostgresStore) GetDriver(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, string(id))
	d, err := scanDriver(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (s *PostgresStore) ListByHospital(ctx context.Context, hospitalID types.ID) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `SELECT `+driverColumns+` FROM drivers WHERE hospital_id = $1 ORDER BY id`, string(hospitalID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// SetAvailability toggles available/offline; a busy driver is left untouched.
func (s *PostgresStore) SetAvailability(ctx context.Context, id types.ID, to Availability) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET availability = $2
		WHERE id = $1 AND availability <> 'busy'`,
		string(id), string(to),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM drivers WHERE id = $1)`, string(id)).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrDriverBusy
}

func (s *PostgresStore) UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET lat = $2, lng = $3, location_updated_at = $4
		WHERE id = $1`,
		string(id), p.Lat, p.Lng, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	var availability string
	var lat, lng *float64
	var updatedAt *time.Time
	if err := row.Scan(&d.ID, &d.HospitalID, &d.Name, &d.Phone, &d.VehicleNumber, &availability, &lat, &lng, &updatedAt); err != nil {
		return nil, err
	}
	d.Availability = Availability(availability)
	if lat != nil && lng != nil {
		d.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	d.LocationUpdatedAt = updatedAt
	return &d, nil
}
