// README: Hospital directory lookups (PostgreSQL and in-memory).
package hospital

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sagnify/ambulance-booking/internal/types"
)

// Directory resolves hospital ids. Unknown ids return ErrNotFound.
type Directory interface {
	GetHospital(ctx context.Context, id types.ID) (*Hospital, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetHospital(ctx context.Context, id types.ID) (*Hospital, error) {
	var h Hospital
	err := s.db.QueryRow(ctx, `
		SELECT id, name, address, city
		FROM hospitals
		WHERE id = $1`, string(id),
	).Scan(&h.ID, &h.Name, &h.Address, &h.City)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

type MemoryDirectory struct {
	mu        sync.RWMutex
	hospitals map[types.ID]Hospital
}

func NewMemoryDirectory(hs ...Hospital) *MemoryDirectory {
	d := &MemoryDirectory{hospitals: make(map[types.ID]Hospital, len(hs))}
	for _, h := range hs {
		d.hospitals[h.ID] = h
	}
	return d
}

func (d *MemoryDirectory) Put(h Hospital) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hospitals[h.ID] = h
}

func (d *MemoryDirectory) GetHospital(_ context.Context, id types.ID) (*Hospital, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.hospitals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &h, nil
}
