package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Directory is the patient/doctor profile collaborator. Profiles are owned
// elsewhere; the engine only needs existence checks and working hours.
type Directory interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
}

// Repository contains all appointment storage needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks and availability
	FindActiveAt(ctx context.Context, doctorID uuid.UUID, date time.Time, clock string) (*Appointment, error)
	BookedTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error)

	ListAppointments(ctx context.Context, f Filter) ([]Appointment, error)

	// Creation and updates. Create and Update return ErrSlotAlreadyBooked when
	// the storage level uniqueness over active slots rejects the write.
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	// UpdateAppointment writes the editable fields and status of a, but only
	// while the stored status is still from. A miss is ErrAppointmentNotFound.
	UpdateAppointment(ctx context.Context, a *Appointment, from AppointmentStatus) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// Statistics
	CountByStatus(ctx context.Context, f Filter) (map[AppointmentStatus]int, error)
	CountByMonth(ctx context.Context, f Filter) ([]MonthCount, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
