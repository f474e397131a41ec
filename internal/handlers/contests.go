package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"runstake/internal/auth"
	"runstake/internal/logger"
	"runstake/internal/storage"
)

// CreateContestRequest is the request body for creating a contest
type CreateContestRequest struct {
	Title       string           `json:"title"`
	StakeAmount int64            `json:"stake_amount"`
	Schedule    storage.Schedule `json:"schedule"`
}

// HandleContests routes between GET and POST for /api/contests
func (api *API) HandleContests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		api.handleCreateContest(w, r)
	case http.MethodGet:
		api.handleListContests(w, r)
	default:
		logger.Debug(0, "contests_invalid_method", "path="+r.URL.Path+" method="+r.Method)
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCreateContest handles POST /api/contests
func (api *API) handleCreateContest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	athleteID, ok := auth.GetAthleteIDFromContext(ctx)
	if !ok {
		logger.Debug(0, "contests_create_unauthorized", "path="+r.URL.Path)
		respondWithError(w, "Unauthorized: athlete not in context", http.StatusUnauthorized)
		return
	}
	athleteName, _ := auth.GetAthleteNameFromContext(ctx)

	var req CreateContestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug(athleteID, "contests_create_invalid_body", "error="+err.Error())
		respondWithError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		logger.Debug(athleteID, "contests_create_validation_failed", "title_empty")
		respondWithError(w, "Title is required", http.StatusBadRequest)
		return
	}
	if req.StakeAmount <= 0 {
		logger.Debug(athleteID, "contests_create_validation_failed", "stake_non_positive")
		respondWithError(w, "Stake amount must be greater than 0", http.StatusBadRequest)
		return
	}

	c, err := api.Registry.CreateContest(athleteID, athleteName, req.Title, req.StakeAmount, req.Schedule, time.Now())
	if err != nil {
		logger.Debug(athleteID, "contests_create_failed", "error="+err.Error())
		respondContestError(w, athleteID, "contests_create", err)
		return
	}

	logger.Debug(athleteID, "contest_created", fmt.Sprintf("contest_id=%d title=%s stake=%d", c.ID, truncate(c.Title, 50), c.StakeAmount))
	if api.Notifications != nil {
		api.Notifications.PublishContestCreated(c)
	}
	respondJSON(w, http.StatusCreated, c)
}

// handleListContests handles GET /api/contests
func (api *API) handleListContests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	athleteID, ok := auth.GetAthleteIDFromContext(ctx)
	if !ok {
		logger.Debug(0, "contests_list_unauthorized", "path="+r.URL.Path)
		respondWithError(w, "Unauthorized: athlete not in context", http.StatusUnauthorized)
		return
	}

	list, err := api.Registry.ListContests(athleteID)
	if err != nil {
		logger.Debug(athleteID, "contests_list_error", "error="+err.Error())
		respondWithError(w, "Failed to fetch contests", http.StatusInternalServerError)
		return
	}

	logger.Debug(athleteID, "contests_list_success", fmt.Sprintf("participating=%d available=%d", len(list.Participating), len(list.Available)))
	respondJSON(w, http.StatusOK, list)
}

// HandleJoin handles POST /api/contests/join?id=N
func (api *API) HandleJoin(w http.ResponseWriter, r *http.Request) {
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
	athleteName, _ := auth.GetAthleteNameFromContext(ctx)

	contestID, err := contestIDFromQuery(r)
	if err != nil {
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, err := api.Registry.JoinContest(contestID, athleteID, athleteName)
	if err != nil {
		logger.Debug(athleteID, "contests_join_failed", fmt.Sprintf("contest_id=%d error=%s", contestID, err.Error()))
		respondContestError(w, athleteID, "contests_join", err)
		return
	}

	logger.Debug(athleteID, "contest_joined", fmt.Sprintf("contest_id=%d participants=%d", c.ID, len(c.Participants)))
	respondJSON(w, http.StatusOK, c)
}

// truncate shortens a string for log lines
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
