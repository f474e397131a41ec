package contest

import (
	"strings"
	"time"

	"runstake/internal/storage"
)

// FindQualifyingRuns returns the activities that satisfy the schedule for the
// target date, preserving input order.
//
// For weekly schedules the target date's weekday is checked first: a
// non-scheduled day yields NotAScheduledDayError regardless of activity
// content, so callers can distinguish "wrong day" from "no run far enough".
// Schedule distance is authored in kilometers, activities report meters; the
// conversion factor is exactly 1000.
func FindQualifyingRuns(activities []Activity, schedule storage.Schedule, targetDate time.Time) ([]Activity, error) {
	if schedule.Type == storage.ScheduleWeekly {
		weekday := strings.ToLower(targetDate.Weekday().String())
		if !schedule.HasDay(weekday) {
			return nil, &NotAScheduledDayError{Weekday: weekday, ScheduledDays: schedule.Days}
		}
	}

	var runs []Activity
	for _, a := range activities {
		if a.Type == ActivityTypeRun && a.DistanceMeters >= schedule.DistanceKm*1000 {
			runs = append(runs, a)
		}
	}
	return runs, nil
}
