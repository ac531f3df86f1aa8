package appointment

import (
	"fmt"
	"time"
)

// ParseClock converts an HH:MM (or H:MM) clock value to minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeClock returns s in zero padded HH:MM form.
func NormalizeClock(s string) (string, error) {
	m, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return formatClock(m), nil
}

type clockWindow struct {
	start, end, breakStart, breakEnd int
}

func (wh WorkingHours) window() (clockWindow, error) {
	var w clockWindow
	var err error
	if w.start, err = ParseClock(wh.Start); err != nil {
		return w, fmt.Errorf("working hours start: %w", err)
	}
	if w.end, err = ParseClock(wh.End); err != nil {
		return w, fmt.Errorf("working hours end: %w", err)
	}
	if w.breakStart, err = ParseClock(wh.BreakStart); err != nil {
		return w, fmt.Errorf("working hours break start: %w", err)
	}
	if w.breakEnd, err = ParseClock(wh.BreakEnd); err != nil {
		return w, fmt.Errorf("working hours break end: %w", err)
	}
	if w.end <= w.start {
		return w, fmt.Errorf("working hours end %s must be after start %s", wh.End, wh.Start)
	}
	return w, nil
}

func (w clockWindow) inBreak(m int) bool {
	return m >= w.breakStart && m < w.breakEnd
}

// Validate reports whether all four clock values parse and end is after start.
func (wh WorkingHours) Validate() error {
	_, err := wh.window()
	return err
}

// Contains reports whether an HH:MM start time lies in [start, end) and outside the break.
func (wh WorkingHours) Contains(clock string) (bool, error) {
	w, err := wh.window()
	if err != nil {
		return false, err
	}
	m, err := ParseClock(clock)
	if err != nil {
		return false, err
	}
	return m >= w.start && m < w.end && !w.inBreak(m), nil
}

// ComputeSlots lists free start times in ascending order. The cursor walks
// [start, end) in step increments, skipping the break window and any cursor
// exactly equal to a booked time. A booking blocks only its own start slot,
// whatever its duration.
func ComputeSlots(wh WorkingHours, step time.Duration, booked []string) ([]string, error) {
	w, err := wh.window()
	if err != nil {
		return nil, err
	}
	stepMin := int(step / time.Minute)
	if stepMin <= 0 {
		return nil, fmt.Errorf("slot step must be at least one minute, got %s", step)
	}

	taken := make(map[int]struct{}, len(booked))
	for _, b := range booked {
		m, err := ParseClock(b)
		if err != nil {
			// rows are normalized on write; an unparsable one cannot match a cursor
			continue
		}
		taken[m] = struct{}{}
	}

	slots := make([]string, 0, (w.end-w.start)/stepMin)
	for cur := w.start; cur < w.end; cur += stepMin {
		if w.inBreak(cur) {
			continue
		}
		if _, ok := taken[cur]; ok {
			continue
		}
		slots = append(slots, formatClock(cur))
	}
	return slots, nil
}
