package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aimta/coa-processor/internal/entity"
)

type compoundRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewCompoundRepository(pool *pgxpool.Pool, logger *slog.Logger) CompoundRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &compoundRepository{pool: pool, logger: logger}
}

func (r *compoundRepository) FindByCode(ctx context.Context, code string) (*entity.Compound, error) {
	const q = `SELECT id, code, name, description, active FROM compounds WHERE code = $1`
	var c entity.Compound
	err := r.pool.QueryRow(ctx, q, code).Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *compoundRepository) Upsert(ctx context.Context, compound *entity.Compound) error {
	// The code is the identity; only metadata may change.
	const q = `
		INSERT INTO compounds (id, code, name, description, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			active = EXCLUDED.active`
	_, err := r.pool.Exec(ctx, q,
		compound.ID, compound.Code, compound.Name, compound.Description, compound.Active)
	if err != nil {
		r.logger.Error("failed to upsert compound", "code", compound.Code, "error", err)
	}
	return err
}

func (r *compoundRepository) ListActive(ctx context.Context) ([]*entity.Compound, error) {
	const q = `SELECT id, code, name, description, active FROM compounds WHERE active ORDER BY code`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Compound
	for rows.Next() {
		var c entity.Compound
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.Active); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
