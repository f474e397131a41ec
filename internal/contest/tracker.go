package contest

import (
	"time"

	"runstake/internal/storage"
)

// VerificationResult is the outcome of a successful daily verification
type VerificationResult struct {
	DistanceKm     float64   `json:"distance"`
	StartDateLocal time.Time `json:"time"`
	CompletedDays  int       `json:"completed_days"`
}

// Verify applies the daily check-in policy for one participant: the athlete
// must be linked, must not have verified yet today, and must have at least one
// qualifying run among today's activities. On success the participant's
// counter is bumped by exactly one and the day is stamped; the first matching
// run is reported back.
//
// This is the per-day gate; the full-window settlement policy lives in
// Evaluate and is intentionally separate.
func Verify(p *storage.Participant, schedule storage.Schedule, activities []Activity, today time.Time) (*VerificationResult, error) {
	if !p.StravaConnected {
		return nil, ErrNotLinked
	}

	if !p.LastVerified.IsZero() && sameDay(p.LastVerified, today) {
		return nil, &AlreadyVerifiedError{LastVerified: p.LastVerified}
	}

	runs, err := FindQualifyingRuns(activities, schedule, today)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, &NoQualifyingActivityError{RequiredKm: schedule.DistanceKm, TimeOfDay: schedule.TimeOfDay}
	}

	p.CompletedDays++
	p.LastVerified = today

	return &VerificationResult{
		DistanceKm:     runs[0].DistanceMeters / 1000,
		StartDateLocal: runs[0].StartDateLocal,
		CompletedDays:  p.CompletedDays,
	}, nil
}

// sameDay reports whether two instants fall on the same local calendar day
func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Local().Date()
	y2, m2, d2 := b.Local().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
