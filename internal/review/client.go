// Package review drives the reviewer workflow for one audit form against the
// HTTP API: the API client and the client-held review session.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gosuda/auditdesk/internal/analysis"
	v1 "github.com/gosuda/auditdesk/internal/api/v1"
	"github.com/gosuda/auditdesk/internal/domain"
)

// maxBody caps how much of a response body is read.
const maxBody = 4 << 20

type (
	Issue            = v1.IssueBody
	CorrectiveAction = v1.CorrectiveActionBody
	FormSummary      = v1.FormSummary
)

// FormDetails is the detail payload of one form.
type FormDetails struct {
	Form         FormSummary           `json:"form"`
	CombinedForm []domain.CombinedItem `json:"combinedForm"`
}

// StatusUpdate is the body of a review decision. The issue fields are sent
// only with a rejection.
type StatusUpdate struct {
	StatusID         int64  `json:"status_id"`
	IssueDescription string `json:"issue_description,omitempty"`
	IssueSeverity    string `json:"issue_severity,omitempty"`
	IssueDueDate     string `json:"issue_due_date,omitempty"`
}

// AnalysisResponse is the answer of the generate-analysis endpoint.
type AnalysisResponse struct {
	Success  bool             `json:"success"`
	Analysis *analysis.Result `json:"analysis,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Client calls the reviewer endpoints. No timeout is applied beyond the
// caller's context.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the API rooted at baseURL, e.g.
// "https://audit.example.com/api". token is sent as a bearer token.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) FormDetails(ctx context.Context, formID int64) (*FormDetails, error) {
	var out FormDetails
	if err := c.do(ctx, "Client.FormDetails", http.MethodGet, fmt.Sprintf("/manager/forms/%d/details", formID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListIssues returns the issues of one version of the form.
func (c *Client) ListIssues(ctx context.Context, formID int64, version domain.IssueVersion) ([]Issue, error) {
	path := fmt.Sprintf("/manager/forms/%d/issues", formID)
	if version == domain.IssueVersionPrevious {
		path = fmt.Sprintf("/manager/forms/%d/previous-issues", formID)
	}

	var out struct {
		Data []Issue `json:"data"`
	}
	if err := c.do(ctx, "Client.ListIssues", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = []Issue{}
	}
	return out.Data, nil
}

// CountCorrectiveActions fetches the counts of all issueIDs in one request.
func (c *Client) CountCorrectiveActions(ctx context.Context, issueIDs []int64) (map[int64]int, error) {
	ids := make([]string, 0, len(issueIDs))
	for _, id := range issueIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	path := "/manager/issues/corrective-actions-count?issueIds=" + url.QueryEscape(strings.Join(ids, ","))

	var out struct {
		Data map[string]int `json:"data"`
	}
	if err := c.do(ctx, "Client.CountCorrectiveActions", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	counts := make(map[int64]int, len(out.Data))
	for k, n := range out.Data {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		counts[id] = n
	}
	return counts, nil
}

func (c *Client) ListCorrectiveActions(ctx context.Context, issueID int64) ([]CorrectiveAction, error) {
	var out struct {
		Data []CorrectiveAction `json:"data"`
	}
	if err := c.do(ctx, "Client.ListCorrectiveActions", http.MethodGet, fmt.Sprintf("/manager/issues/%d/corrective-actions", issueID), nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = []CorrectiveAction{}
	}
	return out.Data, nil
}

func (c *Client) UpdateStatus(ctx context.Context, formID int64, in StatusUpdate) error {
	return c.do(ctx, "Client.UpdateStatus", http.MethodPost, fmt.Sprintf("/manager/forms/%d/status", formID), in, nil)
}

// GenerateAnalysis asks the server for the form's analysis. An unsuccessful
// generation is a normal response with Success false.
func (c *Client) GenerateAnalysis(ctx context.Context, formID int64) (*AnalysisResponse, error) {
	var out AnalysisResponse
	if err := c.do(ctx, "Client.GenerateAnalysis", http.MethodPost, fmt.Sprintf("/manager/forms/%d/generate-analysis", formID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateIssue(ctx context.Context, issueID int64, draft domain.IssueDraft) error {
	body := struct {
		Description string `json:"description"`
		Severity    string `json:"severity"`
		DueDate     string `json:"due_date,omitempty"`
	}{
		Description: draft.Description,
		Severity:    string(draft.Severity),
	}
	if draft.DueDate != nil {
		body.DueDate = draft.DueDate.Format(domain.DateLayout)
	}
	return c.do(ctx, "Client.UpdateIssue", http.MethodPut, fmt.Sprintf("/manager/issues/%d", issueID), body, nil)
}

func (c *Client) DeleteIssue(ctx context.Context, issueID int64) error {
	return c.do(ctx, "Client.DeleteIssue", http.MethodDelete, fmt.Sprintf("/manager/issues/%d", issueID), nil, nil)
}

// do sends one request and decodes a JSON response into out. Every failure is
// a *RequestError.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	rerr := func(kind ErrorKind, err error) *RequestError {
		return &RequestError{Op: op, Method: method, Path: path, Kind: kind, Err: err}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return rerr(KindClient, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return rerr(KindClient, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return rerr(KindNoResponse, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return rerr(KindNoResponse, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		e := rerr(KindServer, nil)
		e.Status = resp.StatusCode
		e.Payload = data
		e.Message, e.fields = parseProblem(data)
		return e
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		e := rerr(KindServer, fmt.Errorf("decode response: %w", err))
		e.Status = resp.StatusCode
		e.Payload = data
		e.Message = "The server returned an unreadable response."
		return e
	}
	return nil
}
