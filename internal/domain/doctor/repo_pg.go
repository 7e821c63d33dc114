package doctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docbook/docbook/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const doctorCols = `id, name, specialty, fee::float8, experience_years, about, email, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Fee, &d.ExperienceYears,
		&d.About, &d.Email, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, name, specialty, fee, experience_years, about, email)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Specialty, d.Fee, d.ExperienceYears, d.About, d.Email,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET name=$2, specialty=$3, fee=$4, experience_years=$5, about=$6, email=$7,
			updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Specialty, d.Fee, d.ExperienceYears, d.About, d.Email,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctor ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *repoPG) Days(ctx context.Context, id uuid.UUID) ([]string, error) {
	byDoctor, err := r.DaysFor(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	return byDoctor[id], nil
}

func (r *repoPG) DaysFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]string, error) {
	out := make(map[uuid.UUID][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT doctor_id, day FROM doctor_availability WHERE doctor_id = ANY($1) ORDER BY doctor_id, day`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var day time.Time
		if err := rows.Scan(&id, &day); err != nil {
			return nil, err
		}
		out[id] = append(out[id], day.Format("2006-01-02"))
	}
	return out, rows.Err()
}

// SetDays replaces the doctor's availability set in one transaction.
func (r *repoPG) SetDays(ctx context.Context, id uuid.UUID, days []string) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var locked uuid.UUID
		err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM doctor WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_availability WHERE doctor_id = $1`, id); err != nil {
			return fmt.Errorf("clear availability: %w", err)
		}
		if len(days) == 0 {
			return nil
		}
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO doctor_availability (doctor_id, day)
			SELECT $1, d::date FROM unnest($2::text[]) AS d
			ON CONFLICT DO NOTHING`, id, days); err != nil {
			return fmt.Errorf("insert availability: %w", err)
		}
		return nil
	})
}

func (r *repoPG) HasDay(ctx context.Context, id uuid.UUID, day string) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM doctor_availability WHERE doctor_id = $1 AND day = $2::date)`,
		id, day).Scan(&ok)
	return ok, err
}
