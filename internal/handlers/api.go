package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"runstake/internal/contest"
	"runstake/internal/logger"
	"runstake/internal/service"
	"runstake/internal/strava"
)

// StravaProvider is the credential-provider capability the route layer calls
// through; the core never talks to Strava itself.
type StravaProvider interface {
	AuthorizationURL(redirectURI string) string
	ExchangeCode(ctx context.Context, code string) (*strava.TokenResponse, error)
	GetActivitiesBetween(ctx context.Context, athleteID int64, start, end time.Time) ([]contest.Activity, error)
	IsLinked(athleteID int64) (bool, error)
}

// API holds the dependencies of the HTTP route layer
type API struct {
	Registry      *contest.Registry
	Strava        StravaProvider
	Notifications *service.NotificationService
	JWTSecret     string
	RedirectURI   string
}

// NewAPI creates the route layer
func NewAPI(registry *contest.Registry, stravaProvider StravaProvider, jwtSecret, redirectURI string) *API {
	return &API{
		Registry:    registry,
		Strava:      stravaProvider,
		JWTSecret:   jwtSecret,
		RedirectURI: redirectURI,
	}
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Message string `json:"error"`
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Message: message})
}

// respondJSON sends a JSON response with the given status code
func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// requirementsResponse mirrors the error payload the frontend renders when no
// activity met the schedule
type requirementsResponse struct {
	Message      string            `json:"error"`
	Requirements map[string]string `json:"requirements"`
}

// respondContestError maps the core's failure taxonomy onto HTTP statuses
func respondContestError(w http.ResponseWriter, athleteID int64, action string, err error) {
	var invalidSchedule *contest.InvalidScheduleError
	var alreadyVerified *contest.AlreadyVerifiedError
	var noQualifying *contest.NoQualifyingActivityError
	var notScheduled *contest.NotAScheduledDayError

	switch {
	case errors.Is(err, contest.ErrContestNotFound),
		errors.Is(err, contest.ErrParticipantNotFound):
		respondWithError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, contest.ErrAlreadyJoined),
		errors.Is(err, contest.ErrNotLinked),
		errors.As(err, &invalidSchedule),
		errors.As(err, &alreadyVerified),
		errors.As(err, &notScheduled):
		respondWithError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &noQualifying):
		timeOfDay := noQualifying.TimeOfDay
		if timeOfDay == "" {
			timeOfDay = "any"
		}
		respondJSON(w, http.StatusBadRequest, requirementsResponse{
			Message: "No valid running activity found today",
			Requirements: map[string]string{
				"distance": fmt.Sprintf("%.1fkm", noQualifying.RequiredKm),
				"time":     timeOfDay,
			},
		})
	case errors.Is(err, contest.ErrUpstreamUnavailable):
		respondWithError(w, "Upstream provider unavailable, please retry", http.StatusServiceUnavailable)
	default:
		logger.Debug(athleteID, action+"_error", "error="+err.Error())
		respondWithError(w, "Internal error", http.StatusInternalServerError)
	}
}

// contestIDFromQuery parses the contest id from the ?id= query parameter
func contestIDFromQuery(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		return 0, fmt.Errorf("missing contest id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid contest id %q", raw)
	}
	return id, nil
}
