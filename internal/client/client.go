package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotLoggedIn is returned before any request when no session is stored.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx answer from the rollsheet API.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	SheetURL     string `json:"sheetUrl,omitempty"`
	WebAppURL    string `json:"webAppUrl"`
	WebAppSecret string `json:"webAppSecret"`
}

// VerifyResult is the answer of POST /api/verify-webapp.
type VerifyResult struct {
	OK   bool            `json:"ok"`
	Data json.RawMessage `json:"data"`
}

// Client calls the rollsheet API. The session token lives in Session.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Session SessionStore
}

// New creates a client against baseURL.
func New(baseURL string, session SessionStore) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Session: session,
	}
}

// Register creates a teacher account and returns its id.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.post(ctx, "/api/register", "", req, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// Login authenticates and saves the session token. It returns the
// teacher's configured webhook URL.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token     string `json:"token"`
		WebAppURL string `json:"webAppUrl"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.post(ctx, "/api/login", "", body, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("login response carried no token")
	}
	if err := c.Session.Save(ctx, out.Token); err != nil {
		return "", err
	}
	return out.WebAppURL, nil
}

// Logout discards the stored session.
func (c *Client) Logout(ctx context.Context) error {
	return c.Session.Clear(ctx)
}

// VerifyWebhook asks the API to probe a webhook. A rejected probe returns
// the result together with an *APIError.
func (c *Client) VerifyWebhook(ctx context.Context, url, secret string) (VerifyResult, error) {
	token, err := c.token(ctx)
	if err != nil {
		return VerifyResult{}, err
	}
	var out VerifyResult
	body := map[string]string{"webAppUrl": url, "webAppSecret": secret}
	err = c.post(ctx, "/api/verify-webapp", token, body, &out)
	return out, err
}

// Submit sends the sheet and returns the webhook's response text.
func (c *Client) Submit(ctx context.Context, sheet *Sheet) (string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}
	var out struct {
		WebappResult string `json:"webappResult"`
	}
	if err := c.post(ctx, "/api/attendance", token, sheet.Request(), &out); err != nil {
		return "", err
	}
	return out.WebappResult, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	token, err := c.Session.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNotLoggedIn
	}
	return token, nil
}

func (c *Client) post(ctx context.Context, path, token string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		if out != nil {
			_ = json.Unmarshal(raw, out)
		}
		return apiErr
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}
