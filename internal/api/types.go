package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID string `json:"patientId" validate:"required,uuid"`
	DoctorID  string `json:"doctorId" validate:"omitempty,uuid"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string `json:"time" validate:"required"`
	Reason    string `json:"reason" validate:"required,max=500"`
	Type      string `json:"type" validate:"omitempty"`
	Duration  int    `json:"duration" validate:"omitempty,min=15,max=120"`
	Notes     string `json:"notes" validate:"max=2000"`
}

type UpdateAppointmentRequest struct {
	Date         *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time         *string `json:"time" validate:"omitempty"`
	Reason       *string `json:"reason" validate:"omitempty,max=500"`
	Type         *string `json:"type" validate:"omitempty"`
	Duration     *int    `json:"duration" validate:"omitempty,min=15,max=120"`
	Notes        *string `json:"notes" validate:"omitempty,max=2000"`
	ReminderSent *bool   `json:"reminderSent"`
	Status       *string `json:"status" validate:"omitempty"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	PatientID    uuid.UUID `json:"patientId"`
	DoctorID     uuid.UUID `json:"doctorId"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Duration     int       `json:"duration"`
	Reason       string    `json:"reason"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	Notes        string    `json:"notes,omitempty"`
	ReminderSent bool      `json:"reminderSent"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		PatientID:    a.PatientID,
		DoctorID:     a.DoctorID,
		Date:         a.Date.Format(time.DateOnly),
		Time:         a.Time,
		Duration:     a.Duration,
		Reason:       a.Reason,
		Type:         string(a.Type),
		Status:       string(a.Status),
		Notes:        a.Notes,
		ReminderSent: a.ReminderSent,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func toAppointmentList(in []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(in))
	for i := range in {
		out = append(out, toAppointmentResponse(&in[i]))
	}
	return out
}

type AvailabilityResponse struct {
	DoctorID     uuid.UUID                `json:"doctorId"`
	Date         string                   `json:"date"`
	Slots        []string                 `json:"slots"`
	WorkingHours appointment.WorkingHours `json:"workingHours"`
}

type DayStatsResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}

type MonthCountResponse struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type StatisticsResponse struct {
	Today           DayStatsResponse     `json:"today"`
	Upcoming        int                  `json:"upcoming"`
	StatusBreakdown map[string]int       `json:"statusBreakdown"`
	MonthlyTrend    []MonthCountResponse `json:"monthlyTrend"`
}

func statusCounts(in map[appointment.AppointmentStatus]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

func toStatisticsResponse(s *appointment.Statistics) StatisticsResponse {
	trend := make([]MonthCountResponse, 0, len(s.MonthlyTrend))
	for _, m := range s.MonthlyTrend {
		trend = append(trend, MonthCountResponse{Month: m.Label(), Count: m.Count})
	}
	return StatisticsResponse{
		Today: DayStatsResponse{
			Total:    s.Today.Total,
			ByStatus: statusCounts(s.Today.ByStatus),
		},
		Upcoming:        s.Upcoming,
		StatusBreakdown: statusCounts(s.StatusBreakdown),
		MonthlyTrend:    trend,
	}
}

type DoctorResponse struct {
	ID             uuid.UUID                 `json:"id"`
	Name           string                    `json:"name"`
	Email          *string                   `json:"email,omitempty"`
	Specialization *string                   `json:"specialization,omitempty"`
	WorkingHours   *appointment.WorkingHours `json:"workingHours,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
