// Package client talks to the remote review, feedback, export and auth endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sprite-ai/guardrev/internal/model"
	"github.com/sprite-ai/guardrev/internal/outcome"
)

// TransportError means no HTTP response was obtained at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx answer from an endpoint whose body is not classified
// by the outcome package.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

// Client is a bearer-token JSON client for the review service.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for the service at baseURL. timeout bounds each request;
// zero leaves it to the transport.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL }

type reviewBody struct {
	Code     string   `json:"code"`
	Policies []string `json:"policies"`
}

type diffReviewBody struct {
	OriginalCode string   `json:"original_code"`
	ModifiedCode string   `json:"modified_code"`
	Policies     []string `json:"policies"`
}

// Review submits a request to /review or /review/diff depending on its mode and
// returns the raw response for classification.
func (c *Client) Review(ctx context.Context, token string, req model.ReviewRequest) (*outcome.Response, error) {
	path := "/review"
	var body any = reviewBody{Code: req.Code, Policies: req.NormalizedPolicies()}
	if req.Mode == model.ModeDiff {
		path = "/review/diff"
		body = diffReviewBody{
			OriginalCode: req.OriginalCode,
			ModifiedCode: req.Code,
			Policies:     req.NormalizedPolicies(),
		}
	}
	return c.do(ctx, http.MethodPost, path, token, body)
}

// Feedback posts a correction for one violation.
func (c *Client) Feedback(ctx context.Context, token string, ev model.FeedbackEvent) error {
	resp, err := c.do(ctx, http.MethodPost, "/feedback", token, ev)
	if err != nil {
		return err
	}
	return expectOK("feedback", resp)
}

// FeedbackStats is the service's aggregate of submitted feedback.
type FeedbackStats struct {
	TotalFeedback  int `json:"total_feedback"`
	FalsePositives int `json:"false_positives"`
	ValidReports   int `json:"valid_reports"`
}

// Stats fetches feedback totals.
func (c *Client) Stats(ctx context.Context, token string) (FeedbackStats, error) {
	var stats FeedbackStats
	resp, err := c.do(ctx, http.MethodGet, "/feedback/stats", token, nil)
	if err != nil {
		return stats, err
	}
	if err := expectOK("feedback stats", resp); err != nil {
		return stats, err
	}
	if err := json.Unmarshal(resp.Body, &stats); err != nil {
		return stats, fmt.Errorf("parsing feedback stats: %w", err)
	}
	return stats, nil
}

// ExportPDF renders a previously adopted result into a PDF report.
func (c *Client) ExportPDF(ctx context.Context, token string, result model.ReviewResult) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodPost, "/export/pdf", token, result)
	if err != nil {
		return nil, err
	}
	if err := expectOK("export", resp); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ReportFileName is the download name for an exported report.
func ReportFileName(now time.Time) string {
	return fmt.Sprintf("audit_report_%s.pdf", now.Format("2006-01-02"))
}

// Suggestion is remediation advice for one rule.
type Suggestion struct {
	RuleID     string `json:"violation_rule_id"`
	Suggestion string `json:"suggestion"`
	ExampleFix string `json:"example_fix"`
	Reason     string `json:"reason"`
}

type remediationItem struct {
	RuleID string `json:"rule_id"`
}

type remediationBody struct {
	Violations []remediationItem `json:"violations"`
}

// Remediation asks for fix advice for the given rules.
func (c *Client) Remediation(ctx context.Context, token string, ruleIDs []string) ([]Suggestion, error) {
	body := remediationBody{Violations: make([]remediationItem, len(ruleIDs))}
	for i, id := range ruleIDs {
		body.Violations[i] = remediationItem{RuleID: id}
	}
	resp, err := c.do(ctx, http.MethodPost, "/remediation", token, body)
	if err != nil {
		return nil, err
	}
	if err := expectOK("remediation", resp); err != nil {
		return nil, err
	}
	var out []Suggestion
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("parsing remediation: %w", err)
	}
	return out, nil
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/auth/login", "", loginBody{Email: email, Password: password})
	if err != nil {
		return "", err
	}
	if err := expectOK("login", resp); err != nil {
		return "", err
	}
	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		return "", fmt.Errorf("parsing login response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("login response has no access_token")
	}
	return tr.AccessToken, nil
}

// User is the account behind a token.
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Me returns the account the token belongs to.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var u User
	resp, err := c.do(ctx, http.MethodGet, "/auth/me", token, nil)
	if err != nil {
		return u, err
	}
	if err := expectOK("whoami", resp); err != nil {
		return u, err
	}
	if err := json.Unmarshal(resp.Body, &u); err != nil {
		return u, fmt.Errorf("parsing user: %w", err)
	}
	return u, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) (*outcome.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	op := method + " " + path
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	reqID := uuid.NewString()
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpReq.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Str("request_id", reqID).Msg("request failed")
		return nil, &TransportError{Op: op, Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Str("request_id", reqID).Msg("reading response failed")
		return nil, &TransportError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	c.log.Debug().
		Str("op", op).
		Str("request_id", reqID).
		Int("status", httpResp.StatusCode).
		Int("bytes", len(respBody)).
		Dur("elapsed", time.Since(start)).
		Msg("request done")

	return &outcome.Response{
		Status:      httpResp.StatusCode,
		ContentType: httpResp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}

func expectOK(op string, resp *outcome.Response) error {
	if resp.Status >= 200 && resp.Status <= 299 {
		return nil
	}
	return &StatusError{Op: op, Status: resp.Status, Body: outcome.BodyText(resp)}
}
