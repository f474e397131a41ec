package handlers

import (
	"fmt"
	"net/http"
	"time"

	"runstake/internal/auth"
	"runstake/internal/contest"
	"runstake/internal/logger"
	"runstake/internal/storage"
)

// VerifyRunResponse is the response after a successful daily verification
type VerifyRunResponse struct {
	Contest       *storage.Contest            `json:"contest"`
	CompletedDays int                         `json:"completed_days"`
	VerifiedRun   *contest.VerificationResult `json:"verified_run"`
}

// HandleVerifyRun handles POST /api/contests/verify-run?id=N. It fetches
// today's activities for the athlete and runs the daily verification policy.
func (api *API) HandleVerifyRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	athleteID, ok := auth.GetAthleteIDFromContext(ctx)
	if !ok {
		respondWithError(w, "Unauthorized: athlete not in context", http.StatusUnauthorized)
		return
	}

	contestID, err := contestIDFromQuery(r)
	if err != nil {
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Linkage is checked before any activity fetch is attempted
	participant, err := api.Registry.GetParticipant(contestID, athleteID)
	if err != nil {
		respondContestError(w, athleteID, "verify_run", err)
		return
	}
	if !participant.StravaConnected {
		logger.Debug(athleteID, "verify_run_not_linked", fmt.Sprintf("contest_id=%d", contestID))
		respondContestError(w, athleteID, "verify_run", contest.ErrNotLinked)
		return
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24*time.Hour - time.Second)

	activities, err := api.Strava.GetActivitiesBetween(ctx, athleteID, dayStart, dayEnd)
	if err != nil {
		logger.Debug(athleteID, "verify_run_fetch_failed", fmt.Sprintf("contest_id=%d error=%s", contestID, err.Error()))
		respondContestError(w, athleteID, "verify_run", err)
		return
	}

	c, result, err := api.Registry.VerifyRun(contestID, athleteID, activities, now)
	if err != nil {
		logger.Debug(athleteID, "verify_run_rejected", fmt.Sprintf("contest_id=%d error=%s", contestID, err.Error()))
		respondContestError(w, athleteID, "verify_run", err)
		return
	}

	logger.Debug(athleteID, "run_verified", fmt.Sprintf("contest_id=%d completed_days=%d distance_km=%.1f",
		contestID, result.CompletedDays, result.DistanceKm))
	respondJSON(w, http.StatusOK, VerifyRunResponse{
		Contest:       c,
		CompletedDays: result.CompletedDays,
		VerifiedRun:   result,
	})
}

// HandleCheckCompletion handles GET /api/contests/completion?id=N. It runs
// the full-window settlement policy for the calling athlete without settling.
func (api *API) HandleCheckCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	athleteID, ok := auth.GetAthleteIDFromContext(ctx)
	if !ok {
		respondWithError(w, "Unauthorized: athlete not in context", http.StatusUnauthorized)
		return
	}

	contestID, err := contestIDFromQuery(r)
	if err != nil {
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	}

	participant, err := api.Registry.GetParticipant(contestID, athleteID)
	if err != nil {
		respondContestError(w, athleteID, "check_completion", err)
		return
	}
	if !participant.StravaConnected {
		respondContestError(w, athleteID, "check_completion", contest.ErrNotLinked)
		return
	}

	c, err := api.Registry.GetContest(contestID)
	if err != nil {
		respondContestError(w, athleteID, "check_completion", err)
		return
	}

	now := time.Now()
	windowEnd := c.EndDate
	if now.Before(windowEnd) {
		windowEnd = now
	}

	activities, err := api.Strava.GetActivitiesBetween(ctx, athleteID, c.StartDate, windowEnd)
	if err != nil {
		logger.Debug(athleteID, "check_completion_fetch_failed", fmt.Sprintf("contest_id=%d error=%s", contestID, err.Error()))
		respondContestError(w, athleteID, "check_completion", err)
		return
	}

	result, err := api.Registry.CheckCompletion(contestID, athleteID, activities, now)
	if err != nil {
		respondContestError(w, athleteID, "check_completion", err)
		return
	}

	logger.Debug(athleteID, "completion_checked", fmt.Sprintf("contest_id=%d completed=%t total_km=%.1f days=%d",
		contestID, result.Completed, result.TotalDistanceKm, result.CompletedDaysCount))
	respondJSON(w, http.StatusOK, result)
}
