package appointment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []AppointmentStatus{
	StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow,
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from AppointmentStatus
		to   AppointmentStatus
		want bool
	}{
		{StatusScheduled, StatusConfirmed, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusInProgress, false},
		{StatusScheduled, StatusCompleted, false},
		{StatusConfirmed, StatusInProgress, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusScheduled, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition_ScheduledToInProgressMustPassConfirmed(t *testing.T) {
	err := Transition(StatusScheduled, StatusInProgress)

	var it *InvalidTransitionError
	require.True(t, errors.As(err, &it))
	assert.Equal(t, StatusScheduled, it.From)
	assert.Equal(t, StatusInProgress, it.To)
	assert.Equal(t, KindInvalidTransition, KindOf(err))
	assert.Equal(t, "cannot change status from scheduled to in-progress", err.Error())
}

func TestTransition_HappyPath(t *testing.T) {
	path := []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted}
	for i := 1; i < len(path); i++ {
		require.NoError(t, Transition(path[i-1], path[i]))
	}
	assert.Error(t, Transition(StatusCompleted, StatusCancelled))
}

func TestTerminalStatusesHaveNoExit(t *testing.T) {
	for _, from := range []AppointmentStatus{StatusCompleted, StatusCancelled, StatusNoShow} {
		assert.True(t, from.Terminal(), from)
		for _, to := range allStatuses {
			assert.Error(t, Transition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestNoShowIsUnreachable(t *testing.T) {
	for _, from := range allStatuses {
		assert.False(t, CanTransition(from, StatusNoShow), "%s -> no-show", from)
	}
}
