package storage

import (
	"strings"
	"time"
)

// ContestDuration is the fixed length of a contest, applied at creation.
const ContestDuration = 30 * 24 * time.Hour

// ContestStatus represents the lifecycle state of a contest
type ContestStatus string

const (
	ContestStatusPending ContestStatus = "pending"
	ContestStatusActive  ContestStatus = "active"
	ContestStatusSettled ContestStatus = "settled"
)

// ScheduleType represents how often a qualifying run is required
type ScheduleType string

const (
	ScheduleDaily  ScheduleType = "daily"
	ScheduleWeekly ScheduleType = "weekly"
)

// Schedule is the rule a run must satisfy for a contest.
// Days holds lowercased English weekday names and is only meaningful for
// weekly schedules. TimeOfDay is advisory and never enforced by matching.
type Schedule struct {
	Type       ScheduleType `json:"type"`
	DistanceKm float64      `json:"distance_km"`
	Days       []string     `json:"days,omitempty"`
	TimeOfDay  string       `json:"time_of_day,omitempty"`
}

// HasDay reports whether day (lowercased weekday name) is a scheduled day.
func (s Schedule) HasDay(day string) bool {
	for _, d := range s.Days {
		if strings.EqualFold(d, day) {
			return true
		}
	}
	return false
}

// Participant is one athlete's progress record within a contest.
// LastVerified is the zero time until the first successful verification.
type Participant struct {
	AthleteID       int64     `json:"id"`
	Name            string    `json:"name"`
	Paid            bool      `json:"paid"`
	CompletedDays   int       `json:"completed_days"`
	LastVerified    time.Time `json:"last_verified"`
	StravaConnected bool      `json:"strava_connected"`
}

// Contest is a staked, time-bounded group running challenge
type Contest struct {
	ID           int64         `json:"id"`
	CreatorID    int64         `json:"creator_id"`
	Title        string        `json:"title"`
	StakeAmount  int64         `json:"stake_amount"` // smallest currency unit
	StartDate    time.Time     `json:"start_date"`
	EndDate      time.Time     `json:"end_date"`
	Schedule     Schedule      `json:"schedule"`
	Participants []Participant `json:"participants"`
	Status       ContestStatus `json:"status"`
}

// HasParticipant reports whether the athlete already appears in the contest.
func (c *Contest) HasParticipant(athleteID int64) bool {
	for _, p := range c.Participants {
		if p.AthleteID == athleteID {
			return true
		}
	}
	return false
}

// StravaToken holds the stored OAuth credentials for one athlete
type StravaToken struct {
	AthleteID    int64     `json:"athlete_id"`
	AthleteName  string    `json:"athlete_name"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    int64     `json:"expires_at"` // unix seconds
	UpdatedAt    time.Time `json:"updated_at"`
}
