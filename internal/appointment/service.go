package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentUpdated       = "APPOINTMENT_UPDATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentDeleted       = "APPOINTMENT_DELETED"
)

// statusRetries bounds the optimistic status update loop.
const statusRetries = 3

type Options struct {
	// DefaultHours applies to doctors without their own working hours.
	DefaultHours WorkingHours
	// Location defines the clinic's "today". Defaults to UTC.
	Location *time.Location
	Logger   *logging.Logger
	Metrics  *metrics.SchedulingMetrics
	// Now is overridable for tests.
	Now func() time.Time
}

type Service struct {
	repo    Repository
	dir     Directory
	locker  redisclient.Locker
	hours   WorkingHours
	loc     *time.Location
	log     *logging.Logger
	metrics *metrics.SchedulingMetrics
	now     func() time.Time
}

// NewService wires the engine. locker may be nil; the storage uniqueness
// constraint is authoritative either way.
func NewService(repo Repository, dir Directory, locker redisclient.Locker, opts Options) *Service {
	s := &Service{
		repo:    repo,
		dir:     dir,
		locker:  locker,
		hours:   opts.DefaultHours,
		loc:     opts.Location,
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.log == nil {
		s.log = logging.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// DateOnly drops the clock part of t, keeping its calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) today() time.Time {
	return DateOnly(s.now().In(s.loc))
}

func (s *Service) hoursFor(d *Doctor) WorkingHours {
	if d != nil && d.WorkingHours != nil {
		return *d.WorkingHours
	}
	return s.hours
}

// CreateAppointment books a patient to a doctor. The conflict pre-check runs
// under a per-slot lock and the insert is backed by a unique index over active
// slots, so two concurrent bookings can never both succeed.
func (s *Service) CreateAppointment(ctx context.Context, caller Caller, in CreateInput) (*Appointment, error) {
	scope := NewScope(caller)

	appt, err := s.validateCreate(scope, in)
	if err != nil {
		s.metrics.ObserveBooking("rejected")
		return nil, err
	}

	if _, err := s.dir.GetPatientByID(ctx, appt.PatientID); err != nil {
		s.metrics.ObserveBooking("rejected")
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.dir.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil {
		s.metrics.ObserveBooking("rejected")
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	if err := s.checkWorkingHours(doctor, appt.Time); err != nil {
		s.metrics.ObserveBooking("rejected")
		return nil, err
	}

	var created *Appointment
	err = s.withSlot(ctx, appt.DoctorID, appt.Date, appt.Time, func(lockCtx context.Context) error {
		if err := s.guardSlot(lockCtx, appt.DoctorID, appt.Date, appt.Time, uuid.Nil); err != nil {
			return err
		}
		c, err := s.repo.CreateAppointment(lockCtx, appt)
		if err != nil {
			if errors.Is(err, ErrSlotAlreadyBooked) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = c
		return nil
	})
	if err != nil {
		if KindOf(err) == KindConflict {
			s.metrics.ObserveBooking("conflict")
		} else {
			s.metrics.ObserveBooking("error")
		}
		return nil, err
	}

	s.metrics.ObserveBooking("created")
	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"patient_id": created.PatientID.String(),
		"doctor_id":  created.DoctorID.String(),
		"date":       created.Date.Format(time.DateOnly),
		"time":       created.Time,
		"booked_by":  caller.ID.String(),
	})
	return created, nil
}

func (s *Service) validateCreate(scope Scope, in CreateInput) (*Appointment, error) {
	if in.PatientID == uuid.Nil {
		return nil, validationError("patient ID, date, time, and reason are required")
	}
	if in.Date.IsZero() || strings.TrimSpace(in.Time) == "" || strings.TrimSpace(in.Reason) == "" {
		return nil, validationError("patient ID, date, time, and reason are required")
	}
	if err := scope.requireBook(in.PatientID); err != nil {
		return nil, err
	}

	var doctorID uuid.UUID
	switch {
	case in.DoctorID != nil && *in.DoctorID != uuid.Nil:
		doctorID = *in.DoctorID
	case scope.Caller().Role == RoleDoctor:
		doctorID = scope.Caller().ID
	default:
		return nil, validationError("a valid doctor is required")
	}

	clock, err := NormalizeClock(strings.TrimSpace(in.Time))
	if err != nil {
		return nil, validationError("%s", err.Error())
	}

	typ := in.Type
	if typ == "" {
		typ = TypeConsultation
	}
	if !typ.Valid() {
		return nil, validationError("invalid appointment type %q", typ)
	}

	duration := in.Duration
	if duration == 0 {
		duration = DefaultDuration
	}
	if err := validateDuration(duration); err != nil {
		return nil, err
	}

	date := DateOnly(in.Date)
	if date.Before(s.today()) {
		return nil, validationError("appointment date cannot be in the past")
	}

	return &Appointment{
		ID:        uuid.New(),
		PatientID: in.PatientID,
		DoctorID:  doctorID,
		Date:      date,
		Time:      clock,
		Duration:  duration,
		Reason:    strings.TrimSpace(in.Reason),
		Type:      typ,
		Status:    StatusScheduled,
		Notes:     in.Notes,
	}, nil
}

func validateDuration(d int) error {
	if d < MinDuration || d > MaxDuration {
		return validationError("duration must be between %d and %d minutes", MinDuration, MaxDuration)
	}
	return nil
}

func (s *Service) checkWorkingHours(doctor *Doctor, clock string) error {
	hours := s.hoursFor(doctor)
	ok, err := hours.Contains(clock)
	if err != nil {
		return fmt.Errorf("doctor %s working hours: %w", doctor.ID, err)
	}
	if !ok {
		return validationError("time %s is outside working hours %s-%s or inside the %s-%s break",
			clock, hours.Start, hours.End, hours.BreakStart, hours.BreakEnd)
	}
	return nil
}

func (s *Service) withSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, clock string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithSlotLock(ctx, redisclient.SlotKey(doctorID, date, clock), fn)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return ErrSlotBeingBooked
	case errors.Is(err, redisclient.ErrLockUnavailable):
		// the unique index still rejects a double booking
		s.log.Warn("slot lock unavailable, writing without it",
			"doctor_id", doctorID.String(),
			"date", date.Format(time.DateOnly),
			"time", clock,
			"error", err,
		)
		return fn(ctx)
	}
	return err
}

// guardSlot fails with ErrSlotAlreadyBooked when an active appointment other
// than self already holds the doctor's exact date and time.
func (s *Service) guardSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, clock string, self uuid.UUID) error {
	existing, err := s.repo.FindActiveAt(ctx, doctorID, date, clock)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("check slot conflict: %w", err)
	}
	if existing != nil && existing.ID != self {
		return ErrSlotAlreadyBooked
	}
	return nil
}

// UpdateAppointment applies a staff edit. A status in the edit is held to the
// transition table and written in the same guarded update as the fields, so
// either the whole edit lands or none of it does.
func (s *Service) UpdateAppointment(ctx context.Context, caller Caller, id uuid.UUID, f UpdateFields) (*Appointment, error) {
	scope := NewScope(caller)

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	for attempt := 0; attempt < statusRetries; attempt++ {
		if err := scope.requireEdit(current); err != nil {
			return nil, err
		}

		updated, err := s.updateOnce(ctx, caller, current, f)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}

		// the guard missed: status changed underneath us
		current, err = s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reload appointment: %w", err)
		}
	}
	return nil, &Error{Kind: KindConflict, Message: "appointment is being modified concurrently, please retry"}
}

// updateOnce writes f over current, guarded on current's status. A guard miss
// surfaces as ErrAppointmentNotFound.
func (s *Service) updateOnce(ctx context.Context, caller Caller, current *Appointment, f UpdateFields) (*Appointment, error) {
	next := *current
	if err := s.applyFields(&next, f); err != nil {
		return nil, err
	}

	from := current.Status
	if f.Status != nil && *f.Status != from {
		if !f.Status.Valid() {
			return nil, validationError("invalid status %q", *f.Status)
		}
		if err := Transition(from, *f.Status); err != nil {
			s.metrics.ObserveTransition(string(from), string(*f.Status), "invalid")
			return nil, err
		}
		next.Status = *f.Status
	}

	rescheduled := !next.Date.Equal(current.Date) || next.Time != current.Time
	write := func(ctx context.Context) error {
		if rescheduled && next.Status.Active() {
			if err := s.guardSlot(ctx, next.DoctorID, next.Date, next.Time, next.ID); err != nil {
				return err
			}
		}
		updated, err := s.repo.UpdateAppointment(ctx, &next, from)
		if err != nil {
			if errors.Is(err, ErrSlotAlreadyBooked) || errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		next = *updated
		return nil
	}

	var writeErr error
	if rescheduled {
		if next.Date.Before(s.today()) {
			return nil, validationError("appointment date cannot be in the past")
		}
		doctor, err := s.dir.GetDoctorByID(ctx, next.DoctorID)
		if err != nil {
			if errors.Is(err, ErrDoctorNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load doctor: %w", err)
		}
		if err := s.checkWorkingHours(doctor, next.Time); err != nil {
			return nil, err
		}
		writeErr = s.withSlot(ctx, next.DoctorID, next.Date, next.Time, write)
	} else {
		writeErr = write(ctx)
	}
	if writeErr != nil {
		return nil, writeErr
	}

	s.logEvent(ctx, next.ID, EventAppointmentUpdated, map[string]any{
		"updated_by":  caller.ID.String(),
		"rescheduled": rescheduled,
	})
	if next.Status != from {
		s.metrics.ObserveTransition(string(from), string(next.Status), "ok")
		s.logEvent(ctx, next.ID, EventAppointmentStatusChanged, map[string]any{
			"from":       string(from),
			"to":         string(next.Status),
			"changed_by": caller.ID.String(),
		})
	}
	return &next, nil
}

func (s *Service) applyFields(a *Appointment, f UpdateFields) error {
	if f.Date != nil {
		a.Date = DateOnly(*f.Date)
	}
	if f.Time != nil {
		clock, err := NormalizeClock(strings.TrimSpace(*f.Time))
		if err != nil {
			return validationError("%s", err.Error())
		}
		a.Time = clock
	}
	if f.Reason != nil {
		r := strings.TrimSpace(*f.Reason)
		if r == "" {
			return validationError("reason cannot be empty")
		}
		a.Reason = r
	}
	if f.Type != nil {
		if !f.Type.Valid() {
			return validationError("invalid appointment type %q", *f.Type)
		}
		a.Type = *f.Type
	}
	if f.Duration != nil {
		if err := validateDuration(*f.Duration); err != nil {
			return err
		}
		a.Duration = *f.Duration
	}
	if f.Notes != nil {
		a.Notes = *f.Notes
	}
	if f.ReminderSent != nil {
		a.ReminderSent = *f.ReminderSent
	}
	return nil
}

// ChangeStatus moves an appointment along the transition table.
func (s *Service) ChangeStatus(ctx context.Context, caller Caller, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	if !status.Valid() {
		return nil, validationError("valid status is required")
	}
	scope := NewScope(caller)

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := scope.requireTransition(appt); err != nil {
		return nil, err
	}
	return s.changeStatus(ctx, caller, scope, appt, status)
}

// changeStatus writes with a guarded update keyed on the status it read. If
// another writer got there first the row is reloaded and the table checked
// again against the new current status.
func (s *Service) changeStatus(ctx context.Context, caller Caller, scope Scope, appt *Appointment, to AppointmentStatus) (*Appointment, error) {
	for attempt := 0; attempt < statusRetries; attempt++ {
		from := appt.Status
		if err := Transition(from, to); err != nil {
			s.metrics.ObserveTransition(string(from), string(to), "invalid")
			return nil, err
		}

		updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, from, to)
		if err == nil {
			s.metrics.ObserveTransition(string(from), string(to), "ok")
			s.logEvent(ctx, updated.ID, EventAppointmentStatusChanged, map[string]any{
				"from":       string(from),
				"to":         string(to),
				"changed_by": caller.ID.String(),
			})
			return updated, nil
		}
		if !errors.Is(err, ErrAppointmentNotFound) {
			s.metrics.ObserveTransition(string(from), string(to), "error")
			return nil, fmt.Errorf("update appointment status: %w", err)
		}

		// the guard missed: the row changed or vanished underneath us
		appt, err = s.repo.GetAppointmentByID(ctx, appt.ID)
		if err != nil {
			return nil, fmt.Errorf("reload appointment: %w", err)
		}
		if !scope.Permits(appt) {
			return nil, ErrAccessDenied
		}
	}
	s.metrics.ObserveTransition(string(appt.Status), string(to), "contended")
	return nil, &Error{Kind: KindConflict, Message: "appointment is being modified concurrently, please retry"}
}

// DeleteAppointment removes an appointment dated strictly after today. Past
// and same day appointments can only be cancelled.
func (s *Service) DeleteAppointment(ctx context.Context, caller Caller, id uuid.UUID) error {
	scope := NewScope(caller)

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if err := scope.requireDelete(appt); err != nil {
		return err
	}
	if !appt.Date.After(s.today()) {
		return ErrPastDate
	}

	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{
		"deleted_by": caller.ID.String(),
		"date":       appt.Date.Format(time.DateOnly),
		"time":       appt.Time,
	})
	return nil
}

// GetAvailability lists a doctor's free slots for a date. Past dates are
// answered too; only booking rejects them.
func (s *Service) GetAvailability(ctx context.Context, caller Caller, doctorID uuid.UUID, date time.Time) (*Availability, error) {
	if err := NewScope(caller).requireRead(); err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, validationError("date is required")
	}
	date = DateOnly(date)

	doctor, err := s.dir.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	booked, err := s.repo.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}

	hours := s.hoursFor(doctor)
	slots, err := ComputeSlots(hours, SlotDuration, booked)
	if err != nil {
		return nil, fmt.Errorf("doctor %s working hours: %w", doctorID, err)
	}
	s.metrics.ObserveAvailability(len(slots))

	return &Availability{
		DoctorID:     doctorID,
		Date:         date,
		Slots:        slots,
		WorkingHours: hours,
	}, nil
}

// ListAppointments returns the scoped subset matching f, ordered by date and time.
func (s *Service) ListAppointments(ctx context.Context, caller Caller, f Filter) ([]Appointment, error) {
	scope := NewScope(caller)
	if err := scope.requireRead(); err != nil {
		return nil, err
	}
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, validationError("invalid status %q", st)
		}
	}
	if f.Type != nil && !f.Type.Valid() {
		return nil, validationError("invalid appointment type %q", *f.Type)
	}
	if f.Date != nil {
		d := DateOnly(*f.Date)
		f.Date = &d
	}

	out, err := s.repo.ListAppointments(ctx, scope.Apply(f))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

// ListToday returns the caller's appointments dated today.
func (s *Service) ListToday(ctx context.Context, caller Caller) ([]Appointment, error) {
	today := s.today()
	return s.ListAppointments(ctx, caller, Filter{Date: &today})
}

// ListUpcoming returns active appointments from today on, capped at UpcomingLimit.
func (s *Service) ListUpcoming(ctx context.Context, caller Caller) ([]Appointment, error) {
	today := s.today()
	return s.ListAppointments(ctx, caller, Filter{
		From:     &today,
		Statuses: ActiveStatuses,
		Limit:    UpcomingLimit,
	})
}

// GetAppointment loads one appointment, provided it is inside the caller's scope.
func (s *Service) GetAppointment(ctx context.Context, caller Caller, id uuid.UUID) (*Appointment, error) {
	scope := NewScope(caller)
	if err := scope.requireRead(); err != nil {
		return nil, err
	}
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !scope.Permits(appt) {
		return nil, ErrAccessDenied
	}
	return appt, nil
}

// GetStatistics builds the dashboard overview. Doctors only see their own numbers.
func (s *Service) GetStatistics(ctx context.Context, caller Caller) (*Statistics, error) {
	scope := NewScope(caller)
	if err := scope.requireStats(); err != nil {
		return nil, err
	}
	base := scope.Apply(Filter{})
	today := s.today()
	tomorrow := today.AddDate(0, 0, 1)

	todayFilter := base
	todayFilter.Date = &today
	todayCounts, err := s.repo.CountByStatus(ctx, todayFilter)
	if err != nil {
		return nil, fmt.Errorf("count today's appointments: %w", err)
	}

	upcomingFilter := base
	upcomingFilter.From = &tomorrow
	upcomingCounts, err := s.repo.CountByStatus(ctx, upcomingFilter)
	if err != nil {
		return nil, fmt.Errorf("count upcoming appointments: %w", err)
	}

	breakdown, err := s.repo.CountByStatus(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("count appointments by status: %w", err)
	}

	from, to := trendWindow(today)
	trendFilter := base
	trendFilter.From, trendFilter.To = &from, &to
	months, err := s.repo.CountByMonth(ctx, trendFilter)
	if err != nil {
		return nil, fmt.Errorf("count appointments by month: %w", err)
	}

	return &Statistics{
		Today: DayStats{
			Total:    sumCounts(todayCounts),
			ByStatus: todayCounts,
		},
		Upcoming:        sumCounts(upcomingCounts),
		StatusBreakdown: breakdown,
		MonthlyTrend:    normalizeTrend(months),
	}, nil
}

// ListDoctors returns the doctor directory for booking screens.
func (s *Service) ListDoctors(ctx context.Context, caller Caller) ([]Doctor, error) {
	if err := NewScope(caller).requireRead(); err != nil {
		return nil, err
	}
	doctors, err := s.dir.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert event log",
			"event_type", eventType,
			"appointment_id", appointmentID.String(),
			"error", err,
		)
	}
}
