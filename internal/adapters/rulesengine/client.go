// Package rulesengine provides an HTTP client adapter for the external
// clause evaluation engine.
package rulesengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
)

const (
	defaultTimeout = 2 * time.Minute

	evaluatePath   = "/evaluate"
	candidatesPath = "/candidates"

	// maxErrorBody bounds how much of an error response is read for
	// diagnostics.
	maxErrorBody = 4 * 1024
)

// ClientOptions configures the rules engine client.
type ClientOptions struct {
	BaseURL    string        // Required: engine base URL, e.g. http://rules-engine:8080
	Timeout    time.Duration // Optional: per-request timeout; defaults to 2m
	HTTPClient *http.Client  // Optional: override transport (useful for tests)
	Logger     *slog.Logger  // Optional: structured logger
}

// Client calls the external rules engine over HTTP. Engine outages and
// timeouts surface as transient errors so jobs retry; rejected requests
// surface as permanent errors so jobs fail fast.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient constructs a rules engine client.
func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("rules engine base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse rules engine base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid rules engine URL scheme: %s", u.Scheme)
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "rules_engine_client")
	}

	return &Client{
		baseURL: base,
		client:  client,
		logger:  logger,
	}, nil
}

// Evaluate runs a full audit evaluation for one area against a course
// snapshot.
func (c *Client) Evaluate(ctx context.Context, req *model.EvaluateRequest) (*model.Evaluation, error) {
	if req == nil {
		return nil, apperrors.Permanent("evaluate request is required")
	}

	var eval model.Evaluation
	if err := c.post(ctx, evaluatePath, req, &eval); err != nil {
		return nil, err
	}
	return &eval, nil
}

// Candidates enumerates the course records (clbids) matching one clause.
func (c *Client) Candidates(ctx context.Context, req *model.CandidateRequest) ([]string, error) {
	if req == nil {
		return nil, apperrors.Permanent("candidate request is required")
	}

	var out struct {
		CLBIDs []string `json:"clbids"`
	}
	if err := c.post(ctx, candidatesPath, req, &out); err != nil {
		return nil, err
	}
	return out.CLBIDs, nil
}

// post sends one JSON request and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Permanentf("encode engine request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperrors.Permanentf("build engine request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.Wrap(ctx.Err(), apperrors.ErrCodeTransient, "engine request canceled")
		}
		return apperrors.Wrapf(err, apperrors.ErrCodeTransient, "rules engine unreachable at %s", path)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.logger != nil {
		c.logger.DebugContext(ctx, "rules engine call",
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if err := classifyStatus(resp, path); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Permanentf("decode engine response from %s: %v", path, err)
	}
	return nil
}

// classifyStatus maps response codes onto the retry taxonomy: 4xx means the
// request itself is bad and retrying cannot help; 5xx means the engine is
// unhealthy and a retry may succeed.
func classifyStatus(resp *http.Response, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail := readErrorDetail(resp.Body)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return apperrors.Permanentf("rules engine rejected %s: status %d: %s", path, resp.StatusCode, detail)
	}
	return apperrors.Transientf("rules engine error on %s: status %d: %s", path, resp.StatusCode, detail)
}

func readErrorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return "no detail"
	}

	// Engine errors are usually {"error": "..."}; fall back to the raw body.
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(raw))
}
