// Package pipeline provides the HTTP client for the analysis pipeline backend.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Cypher-0-shift/JurAI/internal/config"
	"github.com/Cypher-0-shift/JurAI/internal/domain"
	"github.com/Cypher-0-shift/JurAI/internal/sse"
)

// ErrSnapshotFetch is returned when a run snapshot cannot be fetched.
var ErrSnapshotFetch = errors.New("snapshot fetch failed")

// Client is an HTTP client for the pipeline backend.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
	api          config.APIConfig
}

// NewClient creates a new pipeline client.
func NewClient(api config.APIConfig) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: api.Timeout,
		},
		// Streams stay open for the whole pipeline run; only the request
		// context bounds them.
		streamClient: &http.Client{},
		api:          api,
	}
}

func (c *Client) endpoint(path string, segments ...string) string {
	u := strings.TrimSuffix(c.api.BaseURL, "/") + path
	for _, s := range segments {
		u += "/" + url.PathEscape(s)
	}
	return u
}

// StartStream submits the questionnaire context and returns the event
// stream body. The caller must close it. Failures wrap sse.ErrStreamUnavailable.
func (c *Client) StartStream(ctx context.Context, submission map[string]any) (io.ReadCloser, error) {
	body, err := json.Marshal(submission)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.api.StreamPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to start stream: %w: %w", sse.ErrStreamUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: pipeline returned status %d: %s", sse.ErrStreamUnavailable, resp.StatusCode, string(bodyBytes))
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, fmt.Errorf("%w: empty response body", sse.ErrStreamUnavailable)
	}

	return resp.Body, nil
}

// GetResults fetches the current snapshot of a run.
func (c *Client) GetResults(ctx context.Context, featureID, runID string) (*domain.RunSnapshot, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.api.ResultsPath, featureID, runID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrSnapshotFetch, err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: pipeline returned status %d: %s", ErrSnapshotFetch, resp.StatusCode, string(bodyBytes))
	}

	var snapshot domain.RunSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("%w: failed to decode snapshot: %w", ErrSnapshotFetch, err)
	}
	return &snapshot, nil
}

// Finalize triggers the post-completion step of a streamed run.
func (c *Client) Finalize(ctx context.Context, featureID, runID string) error {
	return c.postJSON(ctx, c.api.FinalizePath, &domain.FinalizeRequest{FeatureID: featureID, RunID: runID}, nil)
}

// TriggerCore starts the core pipeline in the background and returns the
// ids a watcher can poll.
func (c *Client) TriggerCore(ctx context.Context, req *domain.CoreRunRequest) (*domain.CoreRunResponse, error) {
	var resp domain.CoreRunResponse
	if err := c.postJSON(ctx, c.api.CorePath, req, &resp); err != nil {
		return nil, err
	}
	if resp.RunID == "" || resp.FeatureID == "" {
		return nil, fmt.Errorf("pipeline returned incomplete run identity: %+v", resp)
	}
	return &resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
