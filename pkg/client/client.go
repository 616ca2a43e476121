package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/terra-clan/progression-engine/internal/challenge"
	"github.com/terra-clan/progression-engine/internal/models"
	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/rank"
	"github.com/terra-clan/progression-engine/internal/workout"
)

// Client is a Go SDK for the progression-engine API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new progression-engine client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error envelope returned by the server
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// IsCode reports whether err is an APIError with the given code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

// ProfileView is a profile with its level progress
type ProfileView struct {
	Profile  models.Profile       `json:"profile"`
	Progress progression.Snapshot `json:"progress"`
}

// SettleOutcome is the result of the stateless settle endpoint
type SettleOutcome struct {
	Outcomes challenge.SettlementResult `json:"outcomes"`
	Winners  []string                   `json:"winners"`
}

// CreateProfile registers a user
func (c *Client) CreateProfile(ctx context.Context, req models.CreateProfileRequest) (*models.Profile, error) {
	var p models.Profile
	if err := c.call(ctx, http.MethodPost, "/api/v1/profiles", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile retrieves a profile and its progress
func (c *Client) GetProfile(ctx context.Context, userID string) (*ProfileView, error) {
	var v ProfileView
	if err := c.call(ctx, http.MethodGet, "/api/v1/profiles/"+url.PathEscape(userID), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CompleteWorkout records a finished workout for userID
func (c *Client) CompleteWorkout(ctx context.Context, userID string, req models.CompleteWorkoutRequest) (*models.CompleteWorkoutResponse, error) {
	var out models.CompleteWorkoutResponse
	path := "/api/v1/profiles/" + url.PathEscape(userID) + "/workouts"
	if err := c.call(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApplyAward runs the stateless award calculation
func (c *Client) ApplyAward(ctx context.Context, req models.AwardRequest) (*models.AwardResponse, error) {
	var out models.AwardResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/engine/award", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EstimateWorkout estimates the length of an exercise list
func (c *Client) EstimateWorkout(ctx context.Context, exercises []workout.Exercise) (*workout.Report, error) {
	var out workout.Report
	if err := c.call(ctx, http.MethodPost, "/api/v1/engine/estimate", models.EstimateRequest{Exercises: exercises}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle runs the stateless challenge settlement
func (c *Client) Settle(ctx context.Context, req models.SettleRequest) (*SettleOutcome, error) {
	var out SettleOutcome
	if err := c.call(ctx, http.MethodPost, "/api/v1/engine/settle", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRanks returns every rank tier
func (c *Client) ListRanks(ctx context.Context) ([]rank.Info, error) {
	var out struct {
		Ranks []rank.Info `json:"ranks"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/ranks", nil, &out); err != nil {
		return nil, err
	}
	return out.Ranks, nil
}

// ListWorkouts returns the catalog scaled for tier; empty means the base tier
func (c *Client) ListWorkouts(ctx context.Context, tier rank.Tier) ([]*models.Workout, error) {
	path := "/api/v1/workouts"
	if tier != "" {
		path += "?rank=" + url.QueryEscape(string(tier))
	}
	var out struct {
		Workouts []*models.Workout `json:"workouts"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Workouts, nil
}

// Leaderboard returns the experience ranking
func (c *Client) Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var out struct {
		Entries []models.LeaderboardEntry `json:"entries"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/leaderboard?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// CreateChallenge opens a challenge
func (c *Client) CreateChallenge(ctx context.Context, req models.CreateChallengeRequest) (*models.Challenge, error) {
	var out models.Challenge
	if err := c.call(ctx, http.MethodPost, "/api/v1/challenges", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetChallenge retrieves a challenge with its entries
func (c *Client) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	var out models.Challenge
	if err := c.call(ctx, http.MethodGet, "/api/v1/challenges/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JoinChallenge enters userID into a challenge
func (c *Client) JoinChallenge(ctx context.Context, id, userID string) (*models.ChallengeEntry, error) {
	var out models.ChallengeEntry
	path := "/api/v1/challenges/" + url.PathEscape(id) + "/join"
	if err := c.call(ctx, http.MethodPost, path, models.JoinChallengeRequest{UserID: userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitResult reports userID's achieved value
func (c *Client) SubmitResult(ctx context.Context, id, userID string, value float64) (*models.ChallengeEntry, error) {
	var out models.ChallengeEntry
	path := "/api/v1/challenges/" + url.PathEscape(id) + "/results"
	req := models.SubmitResultRequest{UserID: userID, AchievedValue: value}
	if err := c.call(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SettleChallenge settles an ended challenge
func (c *Client) SettleChallenge(ctx context.Context, id string) (*models.ChallengeSettlement, error) {
	var out models.ChallengeSettlement
	path := "/api/v1/challenges/" + url.PathEscape(id) + "/settle"
	if err := c.call(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

// call sends in as JSON and decodes the envelope's data into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	status, raw, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if status >= 400 {
			return &APIError{StatusCode: status, Code: "http_error", Message: string(raw)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !env.Success || status >= 400 {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &APIError{Code: "unknown", Message: http.StatusText(status)}
		}
		apiErr.StatusCode = status
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
