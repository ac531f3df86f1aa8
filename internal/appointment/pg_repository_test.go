package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apptCols = []string{
	"id", "patient_id", "doctor_id", "appt_date", "appt_time", "duration", "reason",
	"appt_type", "status", "notes", "reminder_sent", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock), mock
}

func apptRow(mock pgxmock.PgxPoolIface, a Appointment) *pgxmock.Rows {
	now := time.Now()
	return mock.NewRows(apptCols).AddRow(
		a.ID, a.PatientID, a.DoctorID, a.Date, a.Time, a.Duration, a.Reason,
		string(a.Type), string(a.Status), a.Notes, a.ReminderSent, now, now,
	)
}

func sampleAppointment() Appointment {
	return Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		Date:      day(2024, 6, 1),
		Time:      "10:00",
		Duration:  30,
		Reason:    "checkup",
		Type:      TypeConsultation,
		Status:    StatusScheduled,
	}
}

func TestPgCreateAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(a.ID, a.PatientID, a.DoctorID, a.Date, a.Time, a.Duration, a.Reason,
			"consultation", "scheduled", "", false).
		WillReturnRows(apptRow(mock, a))

	got, err := repo.CreateAppointment(context.Background(), &a)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, StatusScheduled, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateAppointment_ActiveSlotViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: activeSlotConstraint})

	_, err := repo.CreateAppointment(context.Background(), &a)
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateAppointment_OtherUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()

	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_pkey"})

	_, err := repo.CreateAppointment(context.Background(), &a)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSlotAlreadyBooked))
}

func TestPgUpdateAppointmentStatus_GuardMiss(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`UPDATE appointments\s+SET status = \$2`).
		WithArgs(id, "confirmed", "scheduled").
		WillReturnRows(mock.NewRows(apptCols))

	_, err := repo.UpdateAppointmentStatus(context.Background(), id, StatusScheduled, StatusConfirmed)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()
	a.Status = StatusConfirmed

	mock.ExpectQuery(`UPDATE appointments\s+SET appt_date = \$2`).
		WithArgs(a.ID, a.Date, a.Time, a.Duration, a.Reason, "consultation", "", false, "confirmed", "scheduled").
		WillReturnRows(apptRow(mock, a))

	got, err := repo.UpdateAppointment(context.Background(), &a, StatusScheduled)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointment_GuardMiss(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()

	mock.ExpectQuery(`AND status = \$10`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "scheduled", "confirmed").
		WillReturnRows(mock.NewRows(apptCols))

	_, err := repo.UpdateAppointment(context.Background(), &a, StatusConfirmed)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetAppointmentByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM appointments").WithArgs(id).WillReturnRows(mock.NewRows(apptCols))

	_, err := repo.GetAppointmentByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgListAppointments_Filter(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()
	from := day(2024, 5, 20)

	mock.ExpectQuery(`WHERE patient_id = \$1 AND appt_date >= \$2 AND status = ANY\(\$3\) ORDER BY appt_date ASC, appt_time ASC LIMIT \$4`).
		WithArgs(a.PatientID, from, []string{"scheduled", "confirmed"}, UpcomingLimit).
		WillReturnRows(apptRow(mock, a))

	got, err := repo.ListAppointments(context.Background(), Filter{
		PatientID: &a.PatientID,
		From:      &from,
		Statuses:  ActiveStatuses,
		Limit:     UpcomingLimit,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgDeleteAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM appointments").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, repo.DeleteAppointment(context.Background(), id), ErrAppointmentNotFound)

	mock.ExpectExec("DELETE FROM appointments").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	assert.NoError(t, repo.DeleteAppointment(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgBookedTimes(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctor := uuid.New()

	mock.ExpectQuery("SELECT appt_time").
		WithArgs(doctor, day(2024, 6, 1)).
		WillReturnRows(mock.NewRows([]string{"appt_time"}).AddRow("10:00").AddRow("14:30"))

	got, err := repo.BookedTimes(context.Background(), doctor, time.Date(2024, 6, 1, 15, 4, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "14:30"}, got)
}

func TestPgCounts(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctor := uuid.New()
	f := Filter{DoctorID: &doctor}

	mock.ExpectQuery("GROUP BY status").WithArgs(doctor).
		WillReturnRows(mock.NewRows([]string{"status", "count"}).
			AddRow("scheduled", int64(3)).
			AddRow("completed", int64(1)))

	byStatus, err := repo.CountByStatus(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, map[AppointmentStatus]int{StatusScheduled: 3, StatusCompleted: 1}, byStatus)

	mock.ExpectQuery("GROUP BY y, m").WithArgs(doctor).
		WillReturnRows(mock.NewRows([]string{"y", "m", "count"}).
			AddRow(int32(2024), int32(4), int64(2)).
			AddRow(int32(2024), int32(5), int64(7)))

	months, err := repo.CountByMonth(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []MonthCount{
		{Year: 2024, Month: time.April, Count: 2},
		{Year: 2024, Month: time.May, Count: 7},
	}, months)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetDoctorByID_WorkingHours(t *testing.T) {
	repo, mock := newMockRepo(t)
	cols := []string{"id", "name", "email", "specialization", "work_start", "work_end", "break_start", "break_end", "created_at", "updated_at"}
	withHours, withoutHours := uuid.New(), uuid.New()
	start, end, bs, be := "08:00", "16:00", "12:00", "12:30"
	now := time.Now()

	mock.ExpectQuery("FROM doctors").WithArgs(withHours).
		WillReturnRows(mock.NewRows(cols).AddRow(withHours, "Dr. House", nil, nil, &start, &end, &bs, &be, now, now))
	mock.ExpectQuery("FROM doctors").WithArgs(withoutHours).
		WillReturnRows(mock.NewRows(cols).AddRow(withoutHours, "Dr. Who", nil, nil, &start, nil, nil, nil, now, now))

	d, err := repo.GetDoctorByID(context.Background(), withHours)
	require.NoError(t, err)
	require.NotNil(t, d.WorkingHours)
	assert.Equal(t, WorkingHours{Start: "08:00", End: "16:00", BreakStart: "12:00", BreakEnd: "12:30"}, *d.WorkingHours)

	d, err = repo.GetDoctorByID(context.Background(), withoutHours)
	require.NoError(t, err)
	assert.Nil(t, d.WorkingHours)
}

func TestWhereClause(t *testing.T) {
	date := day(2024, 6, 1)
	typ := TypeVaccination

	where, args := whereClause(Filter{Date: &date, Type: &typ})
	assert.Equal(t, "WHERE appt_date = $1 AND appt_type = $2", where)
	assert.Equal(t, []any{date, "vaccination"}, args)

	// a range wins over a single date
	where, args = whereClause(Filter{Date: &date, To: &date})
	assert.Equal(t, "WHERE appt_date <= $1", where)
	assert.Len(t, args, 1)

	where, args = whereClause(Filter{})
	assert.Empty(t, where)
	assert.Nil(t, args)
}
