package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"runstake/internal/auth"
	"runstake/internal/contest"
	"runstake/internal/storage"
	"runstake/internal/strava"
)

// stubStrava replaces the credential provider in handler tests. It records
// fetch calls so tests can assert no activities are fetched before the
// linkage check.
type stubStrava struct {
	activities []contest.Activity
	fetchErr   error
	fetchCalls int
	linked     bool
}

func (s *stubStrava) AuthorizationURL(redirectURI string) string {
	return "https://example.com/oauth/authorize?redirect_uri=" + redirectURI
}

func (s *stubStrava) ExchangeCode(ctx context.Context, code string) (*strava.TokenResponse, error) {
	token := &strava.TokenResponse{AccessToken: "access", RefreshToken: "refresh"}
	token.Athlete.ID = 100
	token.Athlete.FirstName = "Alice"
	token.Athlete.LastName = "Runner"
	return token, nil
}

func (s *stubStrava) GetActivitiesBetween(ctx context.Context, athleteID int64, start, end time.Time) ([]contest.Activity, error) {
	s.fetchCalls++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.activities, nil
}

func (s *stubStrava) IsLinked(athleteID int64) (bool, error) {
	return s.linked, nil
}

func setupTestDB(t *testing.T) {
	if err := storage.InitDB(":memory:"); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
}

func cleanupTestDB(t *testing.T) {
	storage.CloseDB()
}

func newTestAPI(stub *stubStrava) *API {
	return NewAPI(contest.NewRegistry(), stub, "test-secret", "http://localhost/callback")
}

// authedRequest builds a request carrying an authenticated athlete identity,
// the same way the auth middleware would
func authedRequest(method, target string, body []byte, athleteID int64, name string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), auth.AthleteIDKey, athleteID)
	ctx = context.WithValue(ctx, auth.AthleteNameKey, name)
	return req.WithContext(ctx)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp.Message
}

func createTestContest(t *testing.T, api *API, athleteID int64, name string) *storage.Contest {
	body, _ := json.Marshal(CreateContestRequest{
		Title:       "Morning 5k",
		StakeAmount: 1000,
		Schedule:    storage.Schedule{Type: storage.ScheduleDaily, DistanceKm: 5},
	})
	req := authedRequest("POST", "/api/contests", body, athleteID, name)
	rec := httptest.NewRecorder()
	api.HandleContests(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating contest, got %d: %s", rec.Code, rec.Body.String())
	}
	var c storage.Contest
	if err := json.NewDecoder(rec.Body).Decode(&c); err != nil {
		t.Fatalf("Failed to decode contest: %v", err)
	}
	return &c
}

func TestHandlePing(t *testing.T) {
	api := newTestAPI(&stubStrava{})

	req := httptest.NewRequest("GET", "/api/ping", nil)
	rec := httptest.NewRecorder()
	api.HandlePing(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestCreateContestUnauthorized(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)
	api := newTestAPI(&stubStrava{})

	body, _ := json.Marshal(CreateContestRequest{Title: "X", StakeAmount: 1000})
	req := httptest.NewRequest("POST", "/api/contests", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	api.HandleContests(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without athlete in context, got %d", rec.Code)
	}
}

func TestCreateContestValidation(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)
	api := newTestAPI(&stubStrava{})

	// Missing title
	body, _ := json.Marshal(CreateContestRequest{
		StakeAmount: 1000,
		Schedule:    storage.Schedule{Type: storage.ScheduleDaily, DistanceKm: 5},
	})
	rec := httptest.NewRecorder()
	api.HandleContests(rec, authedRequest("POST", "/api/contests", body, 100, "Alice Runner"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty title, got %d", rec.Code)
	}

	// Non-positive stake
	body, _ = json.Marshal(CreateContestRequest{
		Title:    "Morning 5k",
		Schedule: storage.Schedule{Type: storage.ScheduleDaily, DistanceKm: 5},
	})
	rec = httptest.NewRecorder()
	api.HandleContests(rec, authedRequest("POST", "/api/contests", body, 100, "Alice Runner"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero stake, got %d", rec.Code)
	}

	// Invalid schedule
	body, _ = json.Marshal(CreateContestRequest{
		Title:       "Morning 5k",
		StakeAmount: 1000,
		Schedule:    storage.Schedule{Type: storage.ScheduleWeekly, DistanceKm: 5},
	})
	rec = httptest.NewRecorder()
	api.HandleContests(rec, authedRequest("POST", "/api/contests", body, 100, "Alice Runner"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for weekly schedule without days, got %d", rec.Code)
	}
}

func TestCreateAndListContests(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)
	api := newTestAPI(&stubStrava{})

	c := createTestContest(t, api, 100, "Alice Runner")
	if c.Status != storage.ContestStatusPending {
		t.Errorf("Expected pending status, got %s", c.Status)
	}

	rec := httptest.NewRecorder()
	api.HandleContests(rec, authedRequest("GET", "/api/contests", nil, 200, "Bob Runner"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing contests, got %d", rec.Code)
	}
	var list contest.ContestList
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(list.Available) != 1 || len(list.Participating) != 0 {
		t.Errorf("Expected contest available to non-participant, got %+v", list)
	}
}

func TestHandleJoinTwice(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)
	api := newTestAPI(&stubStrava{})
	c := createTestContest(t, api, 100, "Alice Runner")

	target := "/api/contests/join?id=" + itoa(c.ID)
	rec := httptest.NewRecorder()
	api.HandleJoin(rec, authedRequest("POST", target, nil, 200, "Bob Runner"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on first join, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	api.HandleJoin(rec, authedRequest("POST", target, nil, 200, "Bob Runner"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 on duplicate join, got %d", rec.Code)
	}
}

func TestHandleJoinNotFound(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)
	api := newTestAPI(&stubStrava{})

	rec := httptest.NewRecorder()
	api.HandleJoin(rec, authedRequest("POST", "/api/contests/join?id=999", nil, 200, "Bob Runner"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing contest, got %d", rec.Code)
	}
}

func TestHandleJoinMissingID(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)
	api := newTestAPI(&stubStrava{})

	rec := httptest.NewRecorder()
	api.HandleJoin(rec, authedRequest("POST", "/api/contests/join", nil, 200, "Bob Runner"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing id, got %d", rec.Code)
	}
}

func TestHandleVerifyRunNotLinked(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)
	stub := &stubStrava{}
	api := newTestAPI(stub)
	c := createTestContest(t, api, 100, "Alice Runner")

	rec := httptest.NewRecorder()
	api.HandleVerifyRun(rec, authedRequest("POST", "/api/contests/verify-run?id="+itoa(c.ID), nil, 100, "Alice Runner"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unlinked athlete, got %d", rec.Code)
	}
	// The linkage check precedes any provider call
	if stub.fetchCalls != 0 {
		t.Errorf("Expected no activity fetch for unlinked athlete, got %d", stub.fetchCalls)
	}
}

func TestHandleVerifyRunSuccessThenAlreadyVerified(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)

	stub := &stubStrava{
		activities: []contest.Activity{
			{ID: 1, Type: "Run", DistanceMeters: 6000, StartDateLocal: time.Now()},
		},
	}
	api := newTestAPI(stub)
	c := createTestContest(t, api, 100, "Alice Runner")
	if err := storage.SetStravaConnected(100); err != nil {
		t.Fatalf("SetStravaConnected failed: %v", err)
	}

	target := "/api/contests/verify-run?id=" + itoa(c.ID)
	rec := httptest.NewRecorder()
	api.HandleVerifyRun(rec, authedRequest("POST", target, nil, 100, "Alice Runner"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp VerifyRunResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.CompletedDays != 1 {
		t.Errorf("Expected completed_days 1, got %d", resp.CompletedDays)
	}
	if resp.VerifiedRun == nil || resp.VerifiedRun.DistanceKm != 6 {
		t.Errorf("Expected 6km verified run, got %+v", resp.VerifiedRun)
	}

	// Same day again
	rec = httptest.NewRecorder()
	api.HandleVerifyRun(rec, authedRequest("POST", target, nil, 100, "Alice Runner"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 on second same-day verification, got %d", rec.Code)
	}
}

func TestHandleVerifyRunNoQualifyingActivity(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)

	stub := &stubStrava{
		activities: []contest.Activity{
			{ID: 1, Type: "Run", DistanceMeters: 2000, StartDateLocal: time.Now()},
		},
	}
	api := newTestAPI(stub)
	c := createTestContest(t, api, 100, "Alice Runner")
	if err := storage.SetStravaConnected(100); err != nil {
		t.Fatalf("SetStravaConnected failed: %v", err)
	}

	rec := httptest.NewRecorder()
	api.HandleVerifyRun(rec, authedRequest("POST", "/api/contests/verify-run?id="+itoa(c.ID), nil, 100, "Alice Runner"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	var resp requirementsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Requirements["distance"] != "5.0km" {
		t.Errorf("Expected required distance in payload, got %q", resp.Requirements["distance"])
	}
	if resp.Requirements["time"] != "any" {
		t.Errorf("Expected time 'any' when schedule has none, got %q", resp.Requirements["time"])
	}
}

func TestHandleVerifyRunUpstreamDown(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)

	stub := &stubStrava{fetchErr: contest.ErrUpstreamUnavailable}
	api := newTestAPI(stub)
	c := createTestContest(t, api, 100, "Alice Runner")
	if err := storage.SetStravaConnected(100); err != nil {
		t.Fatalf("SetStravaConnected failed: %v", err)
	}

	rec := httptest.NewRecorder()
	api.HandleVerifyRun(rec, authedRequest("POST", "/api/contests/verify-run?id="+itoa(c.ID), nil, 100, "Alice Runner"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when provider is down, got %d", rec.Code)
	}

	// Progress unchanged: a later retry can still verify today
	p, err := storage.GetParticipant(c.ID, 100)
	if err != nil || p == nil {
		t.Fatalf("GetParticipant failed: %v", err)
	}
	if p.CompletedDays != 0 {
		t.Errorf("Expected no progress recorded on fetch failure, got %d", p.CompletedDays)
	}
}

func TestHandleCheckCompletion(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)

	stub := &stubStrava{}
	api := newTestAPI(stub)
	c := createTestContest(t, api, 100, "Alice Runner")
	if err := storage.SetStravaConnected(100); err != nil {
		t.Fatalf("SetStravaConnected failed: %v", err)
	}

	// Timestamp inside the contest window: after creation, before the request
	stub.activities = []contest.Activity{
		{ID: 1, Type: "Run", DistanceMeters: 6000, StartDateLocal: time.Now()},
	}

	rec := httptest.NewRecorder()
	api.HandleCheckCompletion(rec, authedRequest("GET", "/api/contests/completion?id="+itoa(c.ID), nil, 100, "Alice Runner"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result contest.CompletionResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if !result.Completed {
		t.Errorf("Expected completed=true for 6km against 5km daily target, got %+v", result)
	}
}

func TestHandleAuthURL(t *testing.T) {
	api := newTestAPI(&stubStrava{})

	rec := httptest.NewRecorder()
	api.HandleAuthURL(rec, httptest.NewRequest("GET", "/api/auth/url", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp AuthURLResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.URL == "" {
		t.Error("Expected non-empty OAuth URL")
	}
}

func TestHandleAuthCallback(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)
	api := newTestAPI(&stubStrava{})

	rec := httptest.NewRecorder()
	api.HandleAuthCallback(rec, httptest.NewRequest("GET", "/api/auth/callback?code=abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp CallbackResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Token == "" {
		t.Error("Expected session token in response")
	}
	if resp.Athlete.Name != "Alice Runner" {
		t.Errorf("Expected athlete name from provider, got %q", resp.Athlete.Name)
	}

	athleteID, name, err := auth.ValidateToken("test-secret", resp.Token)
	if err != nil {
		t.Fatalf("Issued token failed validation: %v", err)
	}
	if athleteID != 100 || name != "Alice Runner" {
		t.Errorf("Expected claims for athlete 100, got %d %q", athleteID, name)
	}
}

func TestHandleAuthCallbackMissingCode(t *testing.T) {
	api := newTestAPI(&stubStrava{})

	rec := httptest.NewRecorder()
	api.HandleAuthCallback(rec, httptest.NewRequest("GET", "/api/auth/callback", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing code, got %d", rec.Code)
	}
}

func TestHandleAthlete(t *testing.T) {
	setupTestDB(t)
	defer cleanupTestDB(t)
	api := newTestAPI(&stubStrava{linked: true})

	rec := httptest.NewRecorder()
	api.HandleAthlete(rec, authedRequest("GET", "/api/auth/athlete", nil, 100, "Alice Runner"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp AthleteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != 100 || !resp.StravaConnected {
		t.Errorf("Expected linked athlete 100, got %+v", resp)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
