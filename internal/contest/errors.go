package contest

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrContestNotFound is returned when a contest id does not exist
	ErrContestNotFound = errors.New("contest not found")

	// ErrParticipantNotFound is returned when the athlete is not in the contest
	ErrParticipantNotFound = errors.New("not participating in this contest")

	// ErrAlreadyJoined is returned when the athlete already appears in the
	// contest's participants
	ErrAlreadyJoined = errors.New("already joined")

	// ErrNotLinked is returned when verification is attempted before the
	// athlete has connected their Strava account
	ErrNotLinked = errors.New("please connect your Strava account first")

	// ErrUpstreamUnavailable wraps credential-provider or ledger transport
	// failures. It is the only error kind worth a caller-side retry.
	ErrUpstreamUnavailable = errors.New("upstream provider unavailable")
)

// InvalidScheduleError reports a malformed schedule at contest creation
type InvalidScheduleError struct {
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return "invalid schedule: " + e.Reason
}

// AlreadyVerifiedError reports a second verification attempt on the same
// calendar day
type AlreadyVerifiedError struct {
	LastVerified time.Time
}

func (e *AlreadyVerifiedError) Error() string {
	return fmt.Sprintf("already verified a run today (last verified %s)", e.LastVerified.Format("2006-01-02"))
}

// NoQualifyingActivityError reports that no activity met the schedule's type
// and distance requirements. It carries the requirements for display.
type NoQualifyingActivityError struct {
	RequiredKm float64
	TimeOfDay  string
}

func (e *NoQualifyingActivityError) Error() string {
	timeOfDay := e.TimeOfDay
	if timeOfDay == "" {
		timeOfDay = "any"
	}
	return fmt.Sprintf("no valid running activity found today (required: %.1fkm, time: %s)", e.RequiredKm, timeOfDay)
}

// NotAScheduledDayError reports a weekly-schedule verification attempt on a
// weekday that is not in the schedule
type NotAScheduledDayError struct {
	Weekday       string
	ScheduledDays []string
}

func (e *NotAScheduledDayError) Error() string {
	return fmt.Sprintf("today (%s) is not a scheduled running day (scheduled: %s)", e.Weekday, strings.Join(e.ScheduledDays, ", "))
}
