// Package webapi wraps the external work-generation/validation HTTP API
// behind the secondary TaskService port.
package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"gitlab.com/hashfleet.net/internal/config"
	"gitlab.com/hashfleet.net/internal/core/ports/primary"
	"gitlab.com/hashfleet.net/internal/core/ports/secondary"
)

var _ secondary.TaskService = (*Client)(nil)

// Client talks to the work API with a bearer token.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     primary.Logger
}

// NewClient creates a new work API client
func NewClient(cfg *config.WebAPIConfig, logger primary.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type generateResponse struct {
	Data string `json:"data"`
}

type validateRequest struct {
	Difficulty int    `json:"d"`
	Nonce      string `json:"n"`
	Hash       string `json:"h"`
}

// GenerateTask fetches the data string to mine for the given difficulty.
func (c *Client) GenerateTask(ctx context.Context, difficulty int) (string, error) {
	url := c.baseURL + "/generate_work?d=" + strconv.Itoa(difficulty)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build generate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call generate_work: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("generate_work returned status %d", resp.StatusCode)
	}

	var body generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode generate_work response: %w", err)
	}
	if body.Data == "" {
		return "", fmt.Errorf("generate_work returned no data")
	}

	c.logger.Info("Task generated", "difficulty", difficulty)
	return body.Data, nil
}

// ValidateSolution submits a candidate and reports whether the authority
// accepted it. Any status >= 400 is an error, matching the authority's
// behavior of rejecting bad candidates with an error status.
func (c *Client) ValidateSolution(ctx context.Context, difficulty int, nonceHex, hashHex string) (bool, error) {
	payload, err := json.Marshal(validateRequest{
		Difficulty: difficulty,
		Nonce:      nonceHex,
		Hash:       hashHex,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal validate request: %w", err)
	}

	url := c.baseURL + "/validate_work"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to build validate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json;utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call validate_work: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("validate_work returned status %d", resp.StatusCode)
	}

	c.logger.Info("Solution validated", "difficulty", difficulty, "hash", hashHex)
	return true, nil
}
