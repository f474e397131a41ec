package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"runstake/internal/contest"
	"runstake/internal/logger"
	"runstake/internal/storage"
)

const (
	baseURL  = "https://www.strava.com/api/v3"
	tokenURL = "https://www.strava.com/oauth/token"
	authURL  = "https://www.strava.com/oauth/authorize"

	// Access tokens within this margin of expiry are refreshed up front
	refreshMargin = 60 * time.Second
)

// Client talks to the Strava v3 API on behalf of linked athletes. Tokens are
// exchanged once at OAuth callback time and refreshed from storage afterwards;
// the verification core never sees any of this.
type Client struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewClient creates a Strava API client
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

// TokenResponse is the Strava OAuth token endpoint response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	Athlete      struct {
		ID        int64  `json:"id"`
		FirstName string `json:"firstname"`
		LastName  string `json:"lastname"`
	} `json:"athlete"`
}

// AuthorizationURL builds the Strava OAuth consent URL
func (c *Client) AuthorizationURL(redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "activity:read_all")
	return authURL + "?" + q.Encode()
}

// ExchangeCode exchanges an OAuth authorization code for tokens and persists
// them, marking the athlete's participant rows as linked.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	token, err := c.requestToken(ctx, url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
	})
	if err != nil {
		return nil, err
	}

	name := token.Athlete.FirstName + " " + token.Athlete.LastName
	if err := storage.SaveStravaToken(token.Athlete.ID, name, token.AccessToken, token.RefreshToken, token.ExpiresAt); err != nil {
		return nil, err
	}
	if err := storage.SetStravaConnected(token.Athlete.ID); err != nil {
		return nil, err
	}

	logger.Debug(token.Athlete.ID, "strava_linked", fmt.Sprintf("expires_at=%d", token.ExpiresAt))
	return token, nil
}

// IsLinked reports whether the athlete has stored Strava credentials
func (c *Client) IsLinked(athleteID int64) (bool, error) {
	token, err := storage.GetStravaToken(athleteID)
	if err != nil {
		return false, err
	}
	return token != nil, nil
}

// GetActivitiesBetween fetches the athlete's activities in [start, end] from
// the Strava API, refreshing the stored access token when needed.
func (c *Client) GetActivitiesBetween(ctx context.Context, athleteID int64, start, end time.Time) ([]contest.Activity, error) {
	accessToken, err := c.accessToken(ctx, athleteID)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("after", strconv.FormatInt(start.Unix(), 10))
	q.Set("before", strconv.FormatInt(end.Unix(), 10))
	q.Set("per_page", "200")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/athlete/activities?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: strava activities: %v", contest.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: strava activities: status %d", contest.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var raw []struct {
		ID             int64   `json:"id"`
		Name           string  `json:"name"`
		Type           string  `json:"type"`
		Distance       float64 `json:"distance"`
		MovingTime     int64   `json:"moving_time"`
		StartDateLocal string  `json:"start_date_local"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: strava activities: decode: %v", contest.ErrUpstreamUnavailable, err)
	}

	activities := make([]contest.Activity, 0, len(raw))
	for _, a := range raw {
		// start_date_local is wall-clock time in the athlete's timezone,
		// serialized with a Z suffix
		startLocal, err := time.Parse(time.RFC3339, a.StartDateLocal)
		if err != nil {
			logger.Debug(athleteID, "strava_bad_timestamp", fmt.Sprintf("activity_id=%d value=%s", a.ID, a.StartDateLocal))
			continue
		}
		activities = append(activities, contest.Activity{
			ID:             a.ID,
			Name:           a.Name,
			Type:           a.Type,
			DistanceMeters: a.Distance,
			MovingTime:     a.MovingTime,
			StartDateLocal: startLocal,
		})
	}
	return activities, nil
}

// accessToken returns a valid access token for the athlete, refreshing and
// re-persisting it when close to expiry.
func (c *Client) accessToken(ctx context.Context, athleteID int64) (string, error) {
	stored, err := storage.GetStravaToken(athleteID)
	if err != nil {
		return "", err
	}
	if stored == nil {
		return "", contest.ErrNotLinked
	}

	expiresAt := time.Unix(stored.ExpiresAt, 0)
	if time.Now().Add(refreshMargin).Before(expiresAt) {
		return stored.AccessToken, nil
	}

	refreshed, err := c.requestToken(ctx, url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {stored.RefreshToken},
		"grant_type":    {"refresh_token"},
	})
	if err != nil {
		return "", err
	}

	if err := storage.SaveStravaToken(athleteID, stored.AthleteName, refreshed.AccessToken, refreshed.RefreshToken, refreshed.ExpiresAt); err != nil {
		return "", err
	}

	logger.Debug(athleteID, "strava_token_refreshed", fmt.Sprintf("expires_at=%d", refreshed.ExpiresAt))
	return refreshed.AccessToken, nil
}

// requestToken posts to the Strava token endpoint
func (c *Client) requestToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = form.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: strava token: %v", contest.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: strava token: status %d", contest.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("%w: strava token: decode: %v", contest.ErrUpstreamUnavailable, err)
	}
	return &token, nil
}
