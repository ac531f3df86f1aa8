package api

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
)

type handlers struct {
	svc      AppointmentService
	validate *validator.Validate
	log      *logging.Logger
}

func newHandlers(svc AppointmentService, log *logging.Logger) *handlers {
	v := validator.New()
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &handlers{svc: svc, validate: v, log: log}
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, appointment.KindValidation.String(), validationDetails(err))
		return false
	}
	return true
}

func caller(w http.ResponseWriter, r *http.Request) (appointment.Caller, bool) {
	c, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing caller")
	}
	return c, ok
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req CreateAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	// both already validated as uuid and date
	patientID, _ := uuid.Parse(req.PatientID)
	date, _ := parseDate(req.Date)
	in := appointment.CreateInput{
		PatientID: patientID,
		Date:      date,
		Time:      req.Time,
		Reason:    req.Reason,
		Type:      appointment.AppointmentType(req.Type),
		Duration:  req.Duration,
		Notes:     req.Notes,
	}
	if req.DoctorID != "" {
		doctorID, _ := uuid.Parse(req.DoctorID)
		in.DoctorID = &doctorID
	}

	appt, err := h.svc.CreateAppointment(r.Context(), c, in)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) updateAppointment(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	f := appointment.UpdateFields{
		Time:         req.Time,
		Reason:       req.Reason,
		Duration:     req.Duration,
		Notes:        req.Notes,
		ReminderSent: req.ReminderSent,
	}
	if req.Date != nil {
		d, _ := parseDate(*req.Date)
		f.Date = &d
	}
	if req.Type != nil {
		t := appointment.AppointmentType(*req.Type)
		f.Type = &t
	}
	if req.Status != nil {
		s := appointment.AppointmentStatus(*req.Status)
		f.Status = &s
	}

	appt, err := h.svc.UpdateAppointment(r.Context(), c, id, f)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) changeStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	appt, err := h.svc.ChangeStatus(r.Context(), c, id, appointment.AppointmentStatus(req.Status))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteAppointment(r.Context(), c, id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), c, id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// parseFilter reads listing filters from the query string. status accepts a
// comma separated list.
func parseFilter(q map[string][]string) (appointment.Filter, string) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	var f appointment.Filter
	for _, key := range []string{"patientId", "doctorId"} {
		raw := get(key)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, key + " must be a valid UUID"
		}
		if key == "patientId" {
			f.PatientID = &id
		} else {
			f.DoctorID = &id
		}
	}

	for key, dst := range map[string]**time.Time{"date": &f.Date, "from": &f.From, "to": &f.To} {
		raw := get(key)
		if raw == "" {
			continue
		}
		d, err := parseDate(raw)
		if err != nil {
			return f, key + " must be a date in YYYY-MM-DD format"
		}
		*dst = &d
	}

	if raw := get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			f.Statuses = append(f.Statuses, appointment.AppointmentStatus(strings.TrimSpace(s)))
		}
	}
	if raw := get("type"); raw != "" {
		t := appointment.AppointmentType(raw)
		f.Type = &t
	}
	if raw := get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, "limit must be a non-negative integer"
		}
		f.Limit = n
	}
	return f, ""
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	f, problem := parseFilter(r.URL.Query())
	if problem != "" {
		writeError(w, http.StatusBadRequest, appointment.KindValidation.String(), problem)
		return
	}

	list, err := h.svc.ListAppointments(r.Context(), c, f)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(list))
}

func (h *handlers) listToday(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListToday(r.Context(), c)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(list))
}

func (h *handlers) listUpcoming(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListUpcoming(r.Context(), c)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(list))
}

func (h *handlers) availability(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	doctorID, ok := pathID(w, r, "doctorId")
	if !ok {
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, appointment.KindValidation.String(), "date query parameter is required in YYYY-MM-DD format")
		return
	}

	av, err := h.svc.GetAvailability(r.Context(), c, doctorID, date)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		DoctorID:     av.DoctorID,
		Date:         av.Date.Format(time.DateOnly),
		Slots:        av.Slots,
		WorkingHours: av.WorkingHours,
	})
}

func (h *handlers) statistics(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.GetStatistics(r.Context(), c)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatisticsResponse(stats))
}

func (h *handlers) listDoctors(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	doctors, err := h.svc.ListDoctors(r.Context(), c)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	out := make([]DoctorResponse, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, DoctorResponse{
			ID:             d.ID,
			Name:           d.Name,
			Email:          d.Email,
			Specialization: d.Specialization,
			WorkingHours:   d.WorkingHours,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
