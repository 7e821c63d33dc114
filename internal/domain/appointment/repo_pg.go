package appointment

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

const apptCols = `id, doctor_id, user_id, patient_name, patient_email, patient_phone, reason,
	appt_date, appt_time, date_time, status, reminded_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.UserID, &a.PatientName, &a.PatientEmail, &a.PatientPhone,
		&a.Reason, &a.Date, &a.Time, &a.DateTime, &a.Status, &a.RemindedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.DateTime = a.DateTime.UTC()
	return &a, nil
}

func collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// CreateIfFree is a conditional insert. Two concurrent statements can both
// pass the NOT EXISTS check under READ COMMITTED; there is no unique index.
func (r *repoPG) CreateIfFree(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, doctor_id, user_id, patient_name, patient_email, patient_phone,
			reason, appt_date, appt_time, date_time, status)
		SELECT $1::uuid, $2::uuid, $3::text, $4::text, $5::text, $6::text,
			$7::text, $8::text, $9::text, $10::timestamptz, $11::text
		WHERE NOT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $2::uuid AND date_time = $10::timestamptz AND status <> 'cancelled'
		)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.UserID, a.PatientName, a.PatientEmail, a.PatientPhone,
		a.Reason, a.Date, a.Time, a.DateTime, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		a.ID = uuid.Nil
		return ErrSlotTaken
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET doctor_id=$2, patient_name=$3, patient_email=$4, patient_phone=$5,
			reason=$6, appt_date=$7, appt_time=$8, date_time=$9, status=$10,
			reminded_at = CASE WHEN date_time = $9 THEN reminded_at ELSE NULL END,
			updated_at=NOW()
		WHERE id = $1
		RETURNING user_id, reminded_at, created_at, updated_at`,
		a.ID, a.DoctorID, a.PatientName, a.PatientEmail, a.PatientPhone,
		a.Reason, a.Date, a.Time, a.DateTime, a.Status,
	).Scan(&a.UserID, &a.RemindedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET status=$2, updated_at=NOW()
		WHERE id = $1
		RETURNING `+apptCols, id, status))
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Occupied(ctx context.Context, doctorID uuid.UUID, at time.Time, exclude uuid.UUID) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $1 AND date_time = $2 AND status <> 'cancelled' AND id <> $3
		)`, doctorID, at, exclude).Scan(&taken)
	return taken, err
}

func (r *repoPG) ListByUser(ctx context.Context, userID string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE user_id = $1 ORDER BY date_time DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) ListAdmin(ctx context.Context, status string, after *Appointment, limit int) ([]*Appointment, error) {
	query := `SELECT ` + apptCols + ` FROM appointment WHERE 1=1`
	var args []interface{}
	idx := 1

	if status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, status)
		idx++
	}
	if after != nil {
		query += fmt.Sprintf(` AND (date_time, id) < ($%d, $%d)`, idx, idx+1)
		args = append(args, after.DateTime, after.ID)
		idx += 2
	}
	query += fmt.Sprintf(` ORDER BY date_time DESC, id DESC LIMIT $%d`, idx)
	args = append(args, limit)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) ListDueForReminder(ctx context.Context, from, to time.Time, limit int) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE status <> 'cancelled' AND reminded_at IS NULL AND date_time > $1 AND date_time <= $2
		ORDER BY date_time, id
		LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET reminded_at = $2 WHERE id = $1 AND reminded_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
