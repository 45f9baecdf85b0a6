package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/moto-rental/internal/domain/motorcycle"
)

const (
	listMotorcyclesSQL = `SELECT id, name, brand, engine_cc, rent_per_day, security_deposit, available
		FROM motorcycles ORDER BY id`

	getMotorcycleByIDSQL = `SELECT id, name, brand, engine_cc, rent_per_day, security_deposit, available
		FROM motorcycles WHERE id = $1`

	upsertMotorcycleSQL = `INSERT INTO motorcycles (id, name, brand, engine_cc, rent_per_day, security_deposit, available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			brand = EXCLUDED.brand,
			engine_cc = EXCLUDED.engine_cc,
			rent_per_day = EXCLUDED.rent_per_day,
			security_deposit = EXCLUDED.security_deposit,
			available = EXCLUDED.available`
)

var _ motorcycle.Repository = (*MotorcycleRepository)(nil)

// MotorcycleRepository implements motorcycle.Repository backed by PostgreSQL.
type MotorcycleRepository struct {
	pool *pgxpool.Pool
}

// NewMotorcycleRepository returns a MotorcycleRepository that uses the given pool.
func NewMotorcycleRepository(pool *pgxpool.Pool) *MotorcycleRepository {
	return &MotorcycleRepository{pool: pool}
}

// List returns the whole fleet ordered by ID.
func (r *MotorcycleRepository) List(ctx context.Context) ([]motorcycle.Motorcycle, error) {
	rows, err := r.pool.Query(ctx, listMotorcyclesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing motorcycles: %w", err)
	}
	return pgx.CollectRows(rows, scanMotorcycle)
}

// GetByID returns a single motorcycle by its identifier.
func (r *MotorcycleRepository) GetByID(ctx context.Context, id string) (*motorcycle.Motorcycle, error) {
	rows, err := r.pool.Query(ctx, getMotorcycleByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting motorcycle %q: %w", id, err)
	}

	m, err := pgx.CollectExactlyOneRow(rows, scanMotorcycle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, motorcycle.ErrNotFound
		}
		return nil, fmt.Errorf("getting motorcycle %q: %w", id, err)
	}
	return &m, nil
}

// Upsert inserts m or overwrites the stored row with the same ID.
func (r *MotorcycleRepository) Upsert(ctx context.Context, m *motorcycle.Motorcycle) error {
	_, err := r.pool.Exec(ctx, upsertMotorcycleSQL,
		m.ID, m.Name, m.Brand, m.EngineCC, m.RentPerDay, m.SecurityDeposit, m.Available)
	if err != nil {
		return fmt.Errorf("upserting motorcycle %q: %w", m.ID, err)
	}
	return nil
}

func scanMotorcycle(row pgx.CollectableRow) (motorcycle.Motorcycle, error) {
	var (
		m  motorcycle.Motorcycle
		cc int32
	)
	err := row.Scan(&m.ID, &m.Name, &m.Brand, &cc, &m.RentPerDay, &m.SecurityDeposit, &m.Available)
	m.EngineCC = int(cc)
	return m, err
}
