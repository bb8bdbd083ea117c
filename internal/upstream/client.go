// Package upstream talks to the vaultsync.tv API: job documents come down,
// reports go back up.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/rdmartin/VaultSync/internal/models"
)

// Sentinel outcomes of a jobs fetch. Both abort the run before any mutation.
var (
	ErrNothingToDo  = errors.New("upstream: no pending jobs")
	ErrUnauthorized = errors.New("upstream: not authorized")
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		// The API rejects bursty clients; one request per second is plenty
		// for a report per collection.
		limiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

func (c *Client) request(ctx context.Context, method, path, apiKey string, body interface{}) ([]byte, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is empty, cannot call %s", path)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Auth", "Bearer "+apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// GetJobs fetches the desired-state document. The transport always answers
// 200; the real status travels inside the document.
func (c *Client) GetJobs(ctx context.Context, apiKey, clientVersion string) (*models.SyncDocument, error) {
	data, err := c.request(ctx, http.MethodGet, "/jobs?v="+clientVersion, apiKey, nil)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response from jobs endpoint")
	}

	var doc models.SyncDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode sync document: %w", err)
	}

	switch doc.Status {
	case http.StatusOK:
		return &doc, nil
	case http.StatusNoContent:
		return nil, ErrNothingToDo
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, doc.Message)
	default:
		return nil, fmt.Errorf("jobs endpoint returned status %d: %s", doc.Status, doc.Message)
	}
}

// PostReport sends a JobReport or a single CollectionReport. An empty reply
// means the report was not accepted; the caller logs and moves on.
func (c *Client) PostReport(ctx context.Context, apiKey string, payload interface{}) error {
	data, err := c.request(ctx, http.MethodPost, "/report", apiKey, payload)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("report endpoint returned an empty response")
	}
	return nil
}

// AddLibraries pushes the library-name inventory. Accepted on 200 and 204.
func (c *Client) AddLibraries(ctx context.Context, apiKey string, names []string) error {
	data, err := c.request(ctx, http.MethodPost, "/add-libraries", apiKey, names)
	if err != nil {
		return err
	}
	var resp struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode add-libraries response: %w", err)
	}
	if resp.Status != http.StatusOK && resp.Status != http.StatusNoContent {
		return fmt.Errorf("add-libraries returned status %d: %s", resp.Status, resp.Message)
	}
	return nil
}

// RegisterRequest asks the API for an account key. ExistingAPIKey re-binds an
// already registered account to this client.
type RegisterRequest struct {
	ClientID       string `json:"client_id"`
	ClientVersion  string `json:"client_version"`
	ExistingAPIKey string `json:"existing_api_key,omitempty"`
}

type RegisterResponse struct {
	Status           int    `json:"status"`
	Message          string `json:"message"`
	APIKey           string `json:"api_key"`
	MinClientVersion string `json:"client_min_version"`
}

// Register exchanges a derived shared secret for an API key.
func (c *Client) Register(ctx context.Context, secret string, req RegisterRequest) (*RegisterResponse, error) {
	data, err := c.request(ctx, http.MethodPost, "/register", secret, req)
	if err != nil {
		return nil, err
	}

	var resp RegisterResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode register response: %w", err)
	}
	if resp.Status != http.StatusOK || resp.APIKey == "" {
		msg := resp.Message
		if msg == "" {
			msg = "no error message from server"
		}
		return nil, fmt.Errorf("registration rejected: %s", msg)
	}
	return &resp, nil
}

// GetLoginToken fetches a one-time token for deep links into the website.
func (c *Client) GetLoginToken(ctx context.Context, apiKey string) (string, error) {
	data, err := c.request(ctx, http.MethodGet, "/get-login-token", apiKey, nil)
	if err != nil {
		return "", err
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("decode login token response: %w", err)
	}
	token, ok := obj["token"]
	if !ok || token == "" {
		return "", fmt.Errorf("token not found in response")
	}
	return token, nil
}
