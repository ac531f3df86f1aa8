package appointment

import (
	"fmt"
	"sort"
	"time"
)

const trendMonths = 6

type Statistics struct {
	Today           DayStats
	Upcoming        int
	StatusBreakdown map[AppointmentStatus]int
	MonthlyTrend    []MonthCount
}

type DayStats struct {
	Total    int
	ByStatus map[AppointmentStatus]int
}

type MonthCount struct {
	Year  int
	Month time.Month
	Count int
}

// Label formats the month as YYYY-MM.
func (m MonthCount) Label() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// trendWindow returns the inclusive date range covering the trailing
// calendar months that end with the month of today.
func trendWindow(today time.Time) (from, to time.Time) {
	firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	from = firstOfMonth.AddDate(0, -(trendMonths - 1), 0)
	to = firstOfMonth.AddDate(0, 1, -1)
	return from, to
}

func sumCounts(counts map[AppointmentStatus]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

// normalizeTrend sorts ascending and drops empty months. Months with no
// appointments are not reported as zero.
func normalizeTrend(months []MonthCount) []MonthCount {
	out := make([]MonthCount, 0, len(months))
	for _, m := range months {
		if m.Count > 0 {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	if len(out) > trendMonths {
		out = out[len(out)-trendMonths:]
	}
	return out
}
