package auditlog

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
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
)

const defaultHTTPTimeout = 5 * time.Second

// HTTPSinkConfig configures an HTTP audit sink.
type HTTPSinkConfig struct {
	// URL receives a JSON POST per event.
	URL string

	// SummaryExpr is an optional JMESPath expression applied to the event
	// document. When set, the extraction result is posted instead of the
	// full event, letting receivers pick the fields they care about.
	SummaryExpr string

	// Timeout bounds each delivery attempt; defaults to 5s.
	Timeout time.Duration

	// Client overrides the HTTP transport (useful for tests).
	Client *http.Client
}

// HTTPSink posts audit events to an external collector. Delivery is fire
// and forget from the caller's perspective: the emitter logs failures and
// moves on.
type HTTPSink struct {
	url     string
	summary string
	client  *http.Client
}

// NewHTTPSink builds an HTTP audit sink. The summary expression, when
// present, is validated up front so a bad expression fails at startup
// rather than on the first event.
func NewHTTPSink(cfg HTTPSinkConfig) (*HTTPSink, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, errors.New("audit sink url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse audit sink url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid audit sink url scheme: %s", u.Scheme)
	}

	summary := strings.TrimSpace(cfg.SummaryExpr)
	if summary != "" {
		if _, err := jmespath.Compile(summary); err != nil {
			return nil, fmt.Errorf("compile audit summary expression: %w", err)
		}
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &HTTPSink{
		url:     raw,
		summary: summary,
		client:  client,
	}, nil
}

// Emit posts one event. The event is encoded as JSON; when a summary
// expression is configured the expression's result is posted instead.
func (s *HTTPSink) Emit(ctx context.Context, event Event) error {
	body, err := s.buildBody(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create audit sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("audit sink request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("audit sink %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPSink) buildBody(event Event) ([]byte, error) {
	encoded, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode audit event: %w", err)
	}

	if s.summary == "" {
		return encoded, nil
	}

	// The expression runs against the generic JSON form of the event so
	// receivers can address fields by their wire names.
	var doc any
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, fmt.Errorf("decode audit event for summary: %w", err)
	}

	extracted, err := jmespath.Search(s.summary, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate audit summary expression: %w", err)
	}

	body, err := json.Marshal(extracted)
	if err != nil {
		return nil, fmt.Errorf("encode audit summary: %w", err)
	}
	return body, nil
}
