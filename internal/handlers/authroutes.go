package handlers

import (
	"fmt"
	"net/http"

	"runstake/internal/auth"
	"runstake/internal/logger"
)

// AuthURLResponse carries the Strava OAuth consent URL
type AuthURLResponse struct {
	URL string `json:"url"`
}

// AthleteResponse describes the authenticated athlete
type AthleteResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	StravaConnected bool   `json:"strava_connected"`
}

// CallbackResponse carries the session token issued after OAuth
type CallbackResponse struct {
	Token   string          `json:"token"`
	Athlete AthleteResponse `json:"athlete"`
}

// HandleAuthURL handles GET /api/auth/url
func (api *API) HandleAuthURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, AuthURLResponse{URL: api.Strava.AuthorizationURL(api.RedirectURI)})
}

// HandleAuthCallback handles GET /api/auth/callback?code=... — exchanges the
// authorization code through the credential provider, persists the linkage,
// and issues the session token.
func (api *API) HandleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		respondWithError(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	token, err := api.Strava.ExchangeCode(r.Context(), code)
	if err != nil {
		logger.Debug(0, "auth_callback_failed", "error="+err.Error())
		respondContestError(w, 0, "auth_callback", err)
		return
	}

	name := token.Athlete.FirstName + " " + token.Athlete.LastName
	sessionToken, err := auth.IssueToken(api.JWTSecret, token.Athlete.ID, name)
	if err != nil {
		logger.Debug(token.Athlete.ID, "auth_token_issue_failed", "error="+err.Error())
		respondWithError(w, "Failed to issue session", http.StatusInternalServerError)
		return
	}

	logger.Debug(token.Athlete.ID, "auth_session_issued", fmt.Sprintf("name=%s", name))
	respondJSON(w, http.StatusOK, CallbackResponse{
		Token: sessionToken,
		Athlete: AthleteResponse{
			ID:              token.Athlete.ID,
			Name:            name,
			StravaConnected: true,
		},
	})
}

// HandleAthlete handles GET /api/auth/athlete
func (api *API) HandleAthlete(w http.ResponseWriter, r *http.Request) {
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
	name, _ := auth.GetAthleteNameFromContext(ctx)

	linked, err := api.Strava.IsLinked(athleteID)
	if err != nil {
		logger.Debug(athleteID, "athlete_lookup_error", "error="+err.Error())
		respondWithError(w, "Failed to check linkage", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, AthleteResponse{
		ID:              athleteID,
		Name:            name,
		StravaConnected: linked,
	})
}
