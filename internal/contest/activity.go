package contest

import "time"

// Activity is one Strava activity as seen by the verification core.
// Activities are fetched fresh from the credential provider per request and
// never persisted.
type Activity struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	DistanceMeters float64   `json:"distance"`
	MovingTime     int64     `json:"moving_time"`
	StartDateLocal time.Time `json:"start_date_local"`
}

// ActivityTypeRun is the only activity type that can qualify for a contest
const ActivityTypeRun = "Run"
