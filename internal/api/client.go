// Package api provides the REST client for the ApplyFlow orchestrator.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jmelchner/applyflow/internal/metrics"
	"github.com/jmelchner/applyflow/internal/models"
)

// Client is a REST client for the orchestrator API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	collector  *metrics.Collector
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client (for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCollector records request timings into the given collector.
func WithCollector(col *metrics.Collector) Option {
	return func(c *Client) {
		c.collector = col
	}
}

// New creates a new orchestrator API client. The token is sent as a
// bearer token on every request.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		collector: metrics.NewCollector(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do executes a JSON request and decodes the response into result.
// A nil body sends no payload; a nil result discards the response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.collector.RecordFailure(metrics.OpAPIRequest)
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	c.collector.RecordTiming(metrics.OpAPIRequest, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// newError builds an *Error from a non-2xx response, preferring the
// server's JSON error message when one is present.
func newError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			msg = payload.Error
		} else {
			msg = payload.Message
		}
	}
	if msg == "" {
		msg = string(bytes.TrimSpace(data))
	}
	return &Error{StatusCode: resp.StatusCode, Message: msg}
}

// =============================================================================
// PAGE OPERATIONS
// =============================================================================

// ListPages returns all conversation pages, newest first.
func (c *Client) ListPages(ctx context.Context) ([]models.Page, error) {
	var pages []models.Page
	if err := c.do(ctx, http.MethodGet, "/api/pages", nil, nil, &pages); err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return pages, nil
}

// GetPage retrieves a single page by ID.
func (c *Client) GetPage(ctx context.Context, id string) (*models.Page, error) {
	var page models.Page
	if err := c.do(ctx, http.MethodGet, "/api/pages/"+url.PathEscape(id), nil, nil, &page); err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	return &page, nil
}

// CreatePage creates a new conversation page.
func (c *Client) CreatePage(ctx context.Context, title string) (*models.Page, error) {
	body := map[string]string{"title": title}
	var page models.Page
	if err := c.do(ctx, http.MethodPost, "/api/pages", nil, body, &page); err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return &page, nil
}

// RenamePage updates a page's title.
func (c *Client) RenamePage(ctx context.Context, id, title string) error {
	body := map[string]string{"title": title}
	if err := c.do(ctx, http.MethodPut, "/api/pages/"+url.PathEscape(id), nil, body, nil); err != nil {
		return fmt.Errorf("rename page: %w", err)
	}
	return nil
}

// DeletePage deletes a page and all of its messages.
func (c *Client) DeletePage(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/pages/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	return nil
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// ListMessages returns the full message history of a page, oldest first.
func (c *Client) ListMessages(ctx context.Context, pageID string) ([]models.Message, error) {
	query := url.Values{"page_id": {pageID}}
	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, "/api/messages", query, nil, &msgs); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// UpdateMessage replaces a message's content. With cascade, the server
// also discards every message after it, matching the client-side
// truncation performed on edit.
func (c *Client) UpdateMessage(ctx context.Context, id, content string, cascade bool) error {
	query := url.Values{}
	if cascade {
		query.Set("cascade", "true")
	}
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPut, "/api/messages/"+url.PathEscape(id), query, body, nil); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// DeleteMessage removes a message. With cascade, every later message is
// removed as well; with above, the user message directly before it is
// also removed.
func (c *Client) DeleteMessage(ctx context.Context, id string, cascade, above bool) error {
	query := url.Values{}
	if cascade {
		query.Set("cascade", "true")
	}
	if above {
		query.Set("above", "true")
	}
	if err := c.do(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(id), query, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// =============================================================================
// PDF DOWNLOAD
// =============================================================================

// DownloadPDF streams the rendered document for a page into w. The
// onProgress callback, if non-nil, receives (bytesWritten, totalBytes)
// as the download advances; totalBytes is -1 when the server does not
// send a Content-Length.
func (c *Client) DownloadPDF(ctx context.Context, pageID string, w io.Writer, onProgress func(written, total int64)) error {
	query := url.Values{"page_id": {pageID}}
	u := c.baseURL + "/api/pdf/download?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newError(resp)
	}

	start := time.Now()
	total := resp.ContentLength
	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write pdf: %w", werr)
			}
			written += int64(n)
			if onProgress != nil {
				onProgress(written, total)
			}
		}
		if err == io.EOF {
			c.collector.RecordTiming(metrics.OpPDFDownload, time.Since(start))
			return nil
		}
		if err != nil {
			c.collector.RecordFailure(metrics.OpPDFDownload)
			return fmt.Errorf("read pdf: %w", err)
		}
	}
}

// =============================================================================
// TOKEN VERIFICATION
// =============================================================================

// VerifyResult is the server's answer to an extension token check.
type VerifyResult struct {
	Valid     bool      `json:"valid"`
	UserEmail string    `json:"user_email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// VerifyExtensionToken checks an extension token against the server.
func (c *Client) VerifyExtensionToken(ctx context.Context, token string) (*VerifyResult, error) {
	body := map[string]string{"token": token}
	var result VerifyResult
	if err := c.do(ctx, http.MethodPost, "/api/extension-tokens/verify", nil, body, &result); err != nil {
		return nil, fmt.Errorf("verify extension token: %w", err)
	}
	return &result, nil
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

// AdminStats summarizes server-side usage counters.
type AdminStats struct {
	Users         int `json:"users"`
	Pages         int `json:"pages"`
	Messages      int `json:"messages"`
	PDFsGenerated int `json:"pdfs_generated"`
}

// ListUsers returns all accounts (admin only).
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, http.MethodGet, "/api/admin/users", nil, nil, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateSubscription changes a user's subscription plan (admin only).
func (c *Client) UpdateSubscription(ctx context.Context, userID, plan string) error {
	body := map[string]string{"subscription": plan}
	path := "/api/admin/users/" + url.PathEscape(userID) + "/subscription"
	if err := c.do(ctx, http.MethodPut, path, nil, body, nil); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// GetAdminStats returns server usage counters (admin only).
func (c *Client) GetAdminStats(ctx context.Context) (*AdminStats, error) {
	var stats AdminStats
	if err := c.do(ctx, http.MethodGet, "/api/admin/stats", nil, nil, &stats); err != nil {
		return nil, fmt.Errorf("get admin stats: %w", err)
	}
	return &stats, nil
}
