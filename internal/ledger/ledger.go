package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"runstake/internal/contest"
)

// Client submits settlement decisions to the stake relay. The relay owns
// transaction construction and signing; this side only reports who won.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a settlement relay client
func NewClient(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type settlementRequest struct {
	ContestID int64   `json:"contest_id"`
	WinnerIDs []int64 `json:"winner_ids"`
}

type settlementResponse struct {
	TransactionRef string `json:"transaction_ref"`
}

// SubmitSettlement reports a contest's winners to the relay and returns the
// resulting transaction reference.
func (c *Client) SubmitSettlement(ctx context.Context, contestID int64, winnerIDs []int64) (string, error) {
	body, err := json.Marshal(settlementRequest{ContestID: contestID, WinnerIDs: winnerIDs})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/settlements", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: ledger settlement: %v", contest.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: ledger settlement: status %d", contest.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var result settlementResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: ledger settlement: decode: %v", contest.ErrUpstreamUnavailable, err)
	}
	return result.TransactionRef, nil
}
