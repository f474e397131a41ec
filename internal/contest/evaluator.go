package contest

import (
	"time"

	"runstake/internal/storage"
)

// CompletionResult is the settlement verdict for one participant
type CompletionResult struct {
	Completed          bool    `json:"completed"`
	TotalDistanceKm    float64 `json:"total_distance_km"`
	CompletedDaysCount int     `json:"completed_days_count"`
}

// Evaluate applies the full-window settlement policy for one participant.
// It sums the distance of every Run in the contest window and counts the
// distinct calendar days holding at least one qualifying run. Completion
// requires the cumulative distance to reach the schedule distance; weekly
// schedules additionally require day coverage of at least len(schedule.days).
//
// Unlike the daily Verify gate this is evaluated once over the whole window,
// at settlement time.
func Evaluate(c *storage.Contest, activities []Activity, now time.Time) CompletionResult {
	windowEnd := c.EndDate
	if now.Before(windowEnd) {
		windowEnd = now
	}

	var totalKm float64
	qualifyingDays := make(map[string]bool)

	for _, a := range activities {
		if a.Type != ActivityTypeRun {
			continue
		}
		if a.StartDateLocal.Before(c.StartDate) || a.StartDateLocal.After(windowEnd) {
			continue
		}
		totalKm += a.DistanceMeters / 1000
		if a.DistanceMeters >= c.Schedule.DistanceKm*1000 {
			qualifyingDays[a.StartDateLocal.Format("2006-01-02")] = true
		}
	}

	completed := totalKm >= c.Schedule.DistanceKm
	if c.Schedule.Type == storage.ScheduleWeekly {
		completed = completed && len(qualifyingDays) >= len(c.Schedule.Days)
	}

	return CompletionResult{
		Completed:          completed,
		TotalDistanceKm:    totalKm,
		CompletedDaysCount: len(qualifyingDays),
	}
}
