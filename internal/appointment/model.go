package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no-show"
)

// ActiveStatuses occupy a slot: they block availability and the conflict guard.
var ActiveStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s AppointmentStatus) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeFollowUp     AppointmentType = "follow-up"
	TypeEmergency    AppointmentType = "emergency"
	TypeRoutineCheck AppointmentType = "routine-check"
	TypeVaccination  AppointmentType = "vaccination"
	TypeOther        AppointmentType = "other"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency, TypeRoutineCheck, TypeVaccination, TypeOther:
		return true
	}
	return false
}

const (
	MinDuration     = 15
	MaxDuration     = 120
	DefaultDuration = 30

	// SlotDuration is the availability grid step.
	SlotDuration = 30 * time.Minute

	UpcomingLimit = 20
)

type Role string

const (
	RolePatient    Role = "patient"
	RoleDoctor     Role = "doctor"
	RoleNurse      Role = "nurse"
	RoleLab        Role = "lab"
	RolePharmacist Role = "pharmacist"
)

// Caller is the authenticated identity a request runs as.
type Caller struct {
	ID   uuid.UUID
	Role Role
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID             uuid.UUID
	Name           string
	Email          *string
	Specialization *string
	// WorkingHours is nil when the doctor uses the clinic default.
	WorkingHours *WorkingHours
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WorkingHours bounds legal appointment times for a doctor. All values are HH:MM.
type WorkingHours struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	BreakStart string `json:"breakStart"`
	BreakEnd   string `json:"breakEnd"`
}

type Appointment struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	Date         time.Time // calendar date at midnight UTC
	Time         string    // HH:MM
	Duration     int
	Reason       string
	Type         AppointmentType
	Status       AppointmentStatus
	Notes        string
	ReminderSent bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateInput is a booking request. DoctorID may be nil when a doctor books for themself.
type CreateInput struct {
	PatientID uuid.UUID
	DoctorID  *uuid.UUID
	Date      time.Time
	Time      string
	Reason    string
	Type      AppointmentType
	Duration  int
	Notes     string
}

// UpdateFields carries a staff edit. Nil fields are left untouched.
type UpdateFields struct {
	Date         *time.Time
	Time         *string
	Reason       *string
	Type         *AppointmentType
	Duration     *int
	Notes        *string
	ReminderSent *bool
	Status       *AppointmentStatus
}

// Filter narrows a listing. From and To are inclusive date bounds; when
// either is set Date is ignored.
type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Date      *time.Time
	From      *time.Time
	To        *time.Time
	Statuses  []AppointmentStatus
	Type      *AppointmentType
	Limit     int
}

type Availability struct {
	DoctorID     uuid.UUID
	Date         time.Time
	Slots        []string
	WorkingHours WorkingHours
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
