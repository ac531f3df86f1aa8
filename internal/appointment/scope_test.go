package appointment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeApply(t *testing.T) {
	other := uuid.New()

	t.Run("patient filter is overridden", func(t *testing.T) {
		caller := Caller{ID: uuid.New(), Role: RolePatient}
		f := NewScope(caller).Apply(Filter{PatientID: &other, DoctorID: &other})

		require.NotNil(t, f.PatientID)
		assert.Equal(t, caller.ID, *f.PatientID)
		// a doctor filter narrows further but never widens
		assert.Equal(t, other, *f.DoctorID)
	})

	t.Run("doctor sees own", func(t *testing.T) {
		caller := Caller{ID: uuid.New(), Role: RoleDoctor}
		f := NewScope(caller).Apply(Filter{DoctorID: &other})
		require.NotNil(t, f.DoctorID)
		assert.Equal(t, caller.ID, *f.DoctorID)
		assert.Nil(t, f.PatientID)
	})

	t.Run("nurse is unrestricted", func(t *testing.T) {
		f := NewScope(Caller{ID: uuid.New(), Role: RoleNurse}).Apply(Filter{})
		assert.Nil(t, f.PatientID)
		assert.Nil(t, f.DoctorID)
	})
}

func TestScopePermits(t *testing.T) {
	patient, doctor := uuid.New(), uuid.New()
	a := &Appointment{ID: uuid.New(), PatientID: patient, DoctorID: doctor}

	assert.True(t, NewScope(Caller{ID: patient, Role: RolePatient}).Permits(a))
	assert.False(t, NewScope(Caller{ID: uuid.New(), Role: RolePatient}).Permits(a))
	assert.True(t, NewScope(Caller{ID: doctor, Role: RoleDoctor}).Permits(a))
	assert.False(t, NewScope(Caller{ID: uuid.New(), Role: RoleDoctor}).Permits(a))
	assert.True(t, NewScope(Caller{ID: uuid.New(), Role: RoleNurse}).Permits(a))
	assert.False(t, NewScope(Caller{ID: uuid.New(), Role: RoleLab}).Permits(a))
	assert.False(t, NewScope(Caller{ID: uuid.New(), Role: RoleNurse}).Permits(nil))
}

func TestScopeCapabilities(t *testing.T) {
	patient := Caller{ID: uuid.New(), Role: RolePatient}
	own := &Appointment{PatientID: patient.ID, DoctorID: uuid.New()}
	ps := NewScope(patient)

	assert.NoError(t, ps.requireRead())
	assert.NoError(t, ps.requireBook(patient.ID))
	assert.Equal(t, KindForbidden, KindOf(ps.requireBook(uuid.New())))
	assert.NoError(t, ps.requireTransition(own))
	assert.Equal(t, KindForbidden, KindOf(ps.requireEdit(own)))
	assert.Equal(t, KindForbidden, KindOf(ps.requireDelete(own)))
	assert.Equal(t, KindForbidden, KindOf(ps.requireStats()))

	for _, role := range []Role{RoleLab, RolePharmacist, Role("janitor")} {
		s := NewScope(Caller{ID: uuid.New(), Role: role})
		assert.Equal(t, KindForbidden, KindOf(s.requireRead()), role)
		assert.Equal(t, KindForbidden, KindOf(s.requireBook(uuid.New())), role)
	}

	nurse := NewScope(Caller{ID: uuid.New(), Role: RoleNurse})
	assert.NoError(t, nurse.requireEdit(own))
	assert.NoError(t, nurse.requireDelete(own))
	assert.NoError(t, nurse.requireStats())

	strange := NewScope(Caller{ID: uuid.New(), Role: RoleDoctor})
	assert.ErrorIs(t, strange.requireEdit(own), ErrAccessDenied)
}
