package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// activeSlotConstraint is the partial unique index over
// (doctor_id, appt_date, appt_time) for scheduled/confirmed rows.
const activeSlotConstraint = "appointments_active_slot_key"

const appointmentColumns = `id, patient_id, doctor_id, appt_date, appt_time, duration, reason,
	appt_type, status, notes, reminder_sent, created_at, updated_at`

// dbtx is the subset of pgxpool.Pool the repository needs.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool dbtx
}

func NewPgRepository(pool dbtx) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var start, end, breakStart, breakEnd *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&d.Specialization,
		&start,
		&end,
		&breakStart,
		&breakEnd,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	// partial configuration falls back to the clinic default
	if start != nil && end != nil && breakStart != nil && breakEnd != nil {
		d.WorkingHours = &WorkingHours{
			Start:      strings.TrimSpace(*start),
			End:        strings.TrimSpace(*end),
			BreakStart: strings.TrimSpace(*breakStart),
			BreakEnd:   strings.TrimSpace(*breakEnd),
		}
	}
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var clock, typ, status string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Date,
		&clock,
		&a.Duration,
		&a.Reason,
		&typ,
		&status,
		&a.Notes,
		&a.ReminderSent,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = DateOnly(a.Date)
	a.Time = strings.TrimSpace(clock)
	a.Type = AppointmentType(typ)
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func isActiveSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeSlotConstraint
}

func statusStrings(statuses []AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// whereClause renders f as a WHERE clause with positional args starting at $1.
func whereClause(f Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.From != nil || f.To != nil {
		if f.From != nil {
			add("appt_date >= $%d", DateOnly(*f.From))
		}
		if f.To != nil {
			add("appt_date <= $%d", DateOnly(*f.To))
		}
	} else if f.Date != nil {
		add("appt_date = $%d", DateOnly(*f.Date))
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(f.Statuses))
	}
	if f.Type != nil {
		add("appt_type = $%d", string(*f.Type))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// Directory methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, specialization, work_start, work_end, break_start, break_end, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, specialization, work_start, work_end, break_start, break_end, created_at, updated_at
		FROM doctors
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

// Repository methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindActiveAt(ctx context.Context, doctorID uuid.UUID, date time.Time, clock string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appt_date = $2
		  AND appt_time = $3
		  AND status IN ('scheduled', 'confirmed')
		LIMIT 1
	`, doctorID, DateOnly(date), clock)
	return scanAppointment(row)
}

func (r *PgRepository) BookedTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT appt_time
		FROM appointments
		WHERE doctor_id = $1
		  AND appt_date = $2
		  AND status IN ('scheduled', 'confirmed')
	`, doctorID, DateOnly(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var clock string
		if err := rows.Scan(&clock); err != nil {
			return nil, err
		}
		result = append(result, strings.TrimSpace(clock))
	}
	return result, rows.Err()
}

func (r *PgRepository) ListAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	where, args := whereClause(f)
	query := `SELECT ` + appointmentColumns + ` FROM appointments ` + where + ` ORDER BY appt_date ASC, appt_time ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appt_date, appt_time, duration, reason,
			appt_type, status, notes, reminder_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+appointmentColumns,
		id, a.PatientID, a.DoctorID, DateOnly(a.Date), a.Time, a.Duration, a.Reason,
		string(a.Type), string(a.Status), a.Notes, a.ReminderSent)

	created, err := scanAppointment(row)
	if err != nil {
		if isActiveSlotViolation(err) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment, from AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET appt_date = $2,
		    appt_time = $3,
		    duration = $4,
		    reason = $5,
		    appt_type = $6,
		    notes = $7,
		    reminder_sent = $8,
		    status = $9,
		    updated_at = now()
		WHERE id = $1
		  AND status = $10
		RETURNING `+appointmentColumns,
		a.ID, DateOnly(a.Date), a.Time, a.Duration, a.Reason, string(a.Type), a.Notes, a.ReminderSent,
		string(a.Status), string(from))

	updated, err := scanAppointment(row)
	if err != nil {
		if isActiveSlotViolation(err) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, err
	}
	return updated, nil
}

// UpdateAppointmentStatus only writes when the row still holds from. A miss
// surfaces as ErrAppointmentNotFound.
func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, string(to), string(from))

	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) CountByStatus(ctx context.Context, f Filter) (map[AppointmentStatus]int, error) {
	where, args := whereClause(f)
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM appointments `+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[AppointmentStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		result[AppointmentStatus(status)] = int(n)
	}
	return result, rows.Err()
}

func (r *PgRepository) CountByMonth(ctx context.Context, f Filter) ([]MonthCount, error) {
	where, args := whereClause(f)
	rows, err := r.pool.Query(ctx, `
		SELECT EXTRACT(YEAR FROM appt_date)::int AS y, EXTRACT(MONTH FROM appt_date)::int AS m, count(*)
		FROM appointments `+where+`
		GROUP BY y, m
		ORDER BY y, m
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MonthCount
	for rows.Next() {
		var year, month int32
		var n int64
		if err := rows.Scan(&year, &month, &n); err != nil {
			return nil, err
		}
		result = append(result, MonthCount{Year: int(year), Month: time.Month(month), Count: int(n)})
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
