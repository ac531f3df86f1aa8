package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// statusFor maps a domain error kind to its HTTP status.
func statusFor(kind appointment.Kind) int {
	switch kind {
	case appointment.KindValidation, appointment.KindPastDate:
		return http.StatusBadRequest
	case appointment.KindNotFound:
		return http.StatusNotFound
	case appointment.KindForbidden:
		return http.StatusForbidden
	case appointment.KindConflict, appointment.KindInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err with the status of its kind. Internal errors
// are logged and not echoed to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logging.Logger, err error) {
	kind := appointment.KindOf(err)
	if kind == appointment.KindInternal {
		log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	details := err.Error()
	var de *appointment.Error
	if errors.As(err, &de) {
		details = de.Message
	}
	writeError(w, statusFor(kind), kind.String(), details)
}

// validationDetails flattens validator output to one readable line.
func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "uuid":
			parts = append(parts, fe.Field()+" must be a valid UUID")
		case "datetime":
			parts = append(parts, fe.Field()+" must be a date in YYYY-MM-DD format")
		case "min", "max":
			parts = append(parts, fe.Field()+" must satisfy "+fe.Tag()+"="+fe.Param())
		default:
			parts = append(parts, fe.Field()+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
