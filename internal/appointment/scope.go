package appointment

import "github.com/google/uuid"

// Scope is the capability set derived once from the caller and shared by
// every read and write path.
type Scope struct {
	caller Caller

	// ownPatient/ownDoctor restrict visibility to records where the caller is
	// that party. Neither set means the caller sees everything it can read.
	ownPatient bool
	ownDoctor  bool

	canRead       bool
	canBook       bool
	canEdit       bool
	canDelete     bool
	canTransition bool
	canViewStats  bool
}

func NewScope(c Caller) Scope {
	s := Scope{caller: c}
	switch c.Role {
	case RolePatient:
		s.ownPatient = true
		s.canRead, s.canBook, s.canTransition = true, true, true
	case RoleDoctor:
		s.ownDoctor = true
		s.canRead, s.canBook, s.canEdit, s.canDelete, s.canTransition, s.canViewStats = true, true, true, true, true, true
	case RoleNurse:
		s.canRead, s.canBook, s.canEdit, s.canDelete, s.canTransition, s.canViewStats = true, true, true, true, true, true
	}
	// lab, pharmacist and unknown roles get nothing
	return s
}

func (s Scope) Caller() Caller { return s.caller }

// Apply returns f narrowed to what the caller may see. Role restrictions win
// over caller supplied patient/doctor filters.
func (s Scope) Apply(f Filter) Filter {
	id := s.caller.ID
	if s.ownPatient {
		f.PatientID = &id
	}
	if s.ownDoctor {
		f.DoctorID = &id
	}
	return f
}

// Permits reports whether a single record is inside the caller's scope.
func (s Scope) Permits(a *Appointment) bool {
	if !s.canRead || a == nil {
		return false
	}
	if s.ownPatient && a.PatientID != s.caller.ID {
		return false
	}
	if s.ownDoctor && a.DoctorID != s.caller.ID {
		return false
	}
	return true
}

func (s Scope) requireRead() error {
	if !s.canRead {
		return forbidden("role may not view appointments")
	}
	return nil
}

// requireBook checks booking rights for the given patient. Patients may only
// book for themselves.
func (s Scope) requireBook(patientID uuid.UUID) error {
	if !s.canBook {
		return forbidden("role may not book appointments")
	}
	if s.ownPatient && patientID != s.caller.ID {
		return forbidden("patients can only book appointments for themselves")
	}
	return nil
}

func (s Scope) requireRecord(a *Appointment, allowed bool, action string) error {
	if !allowed {
		return forbidden("role may not " + action + " appointments")
	}
	if !s.Permits(a) {
		return ErrAccessDenied
	}
	return nil
}

func (s Scope) requireEdit(a *Appointment) error { return s.requireRecord(a, s.canEdit, "edit") }

func (s Scope) requireDelete(a *Appointment) error { return s.requireRecord(a, s.canDelete, "delete") }

func (s Scope) requireTransition(a *Appointment) error {
	return s.requireRecord(a, s.canTransition, "change the status of")
}

func (s Scope) requireStats() error {
	if !s.canViewStats {
		return forbidden("role may not view appointment statistics")
	}
	return nil
}
