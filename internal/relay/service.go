package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"rollsheet/internal/apperr"
	"rollsheet/internal/auth"
	"rollsheet/internal/metrics"
	"rollsheet/internal/teacher"
)

const (
	opVerify = "verify"
	opSubmit = "submit"

	logPreviewChars = 2000
)

// VerifyResult is the outcome of a webhook test call. Data holds the
// decoded JSON response, or the raw text when it is not JSON.
type VerifyResult struct {
	OK   bool
	Data any
}

// Options bounds the outbound calls.
type Options struct {
	VerifyTimeout time.Duration
	SubmitTimeout time.Duration
}

// Service forwards attendance submissions to each teacher's webhook.
type Service struct {
	store   teacher.Store
	client  *Client
	metrics *metrics.Metrics
	opts    Options
}

// NewService creates a relay. m may be nil.
func NewService(store teacher.Store, client *Client, m *metrics.Metrics, opts Options) *Service {
	if client == nil {
		client = NewClient()
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = 10 * time.Second
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 15 * time.Second
	}
	return &Service{store: store, client: client, metrics: m, opts: opts}
}

// VerifyWebhook sends a {secret, test:true} probe to url.
func (s *Service) VerifyWebhook(ctx context.Context, identity auth.Identity, url, secret string) (VerifyResult, error) {
	url, secret = strings.TrimSpace(url), strings.TrimSpace(secret)
	if url == "" || secret == "" {
		return VerifyResult{}, apperr.Validation("missing fields")
	}

	resp, err := s.call(ctx, opVerify, s.opts.VerifyTimeout, url, map[string]any{"secret": secret, "test": true})
	if err != nil {
		log.Printf("verify webhook for teacher %d failed: %v", identity.ID, err)
		return VerifyResult{}, apperr.Upstream("verify failed", 0, "", err)
	}
	data := decodeBody(resp.Body)
	if !resp.OK() {
		log.Printf("verify webhook for teacher %d: status %d", identity.ID, resp.StatusCode)
		return VerifyResult{OK: false, Data: data}, apperr.Upstream("verify failed", resp.StatusCode, string(resp.Body), nil)
	}
	return VerifyResult{OK: true, Data: data}, nil
}

// SubmitAttendance normalizes sub and posts it to the caller's stored
// webhook, returning the webhook's raw response text.
func (s *Service) SubmitAttendance(ctx context.Context, identity auth.Identity, sub Submission) (string, error) {
	if identity.ID <= 0 {
		return "", apperr.Auth("unauthenticated", nil)
	}
	acct, err := s.store.ByID(ctx, identity.ID)
	if err != nil {
		return "", apperr.Internal("server error", err)
	}
	if !acct.HasWebhook() {
		log.Printf("teacher %d has no webapp configured", identity.ID)
		return "", apperr.Config("teacher has no webapp configured")
	}

	payload := BuildPayload(acct.WebhookSecret, sub)
	log.Printf("relaying attendance for teacher %d: subject=%q date=%q regular=%d extra=%d present=%d",
		identity.ID, payload.Subject, payload.Date, payload.Regular, payload.Extra, countPresent(payload.PresentMatrix))

	resp, err := s.call(ctx, opSubmit, s.opts.SubmitTimeout, acct.WebhookURL, payload)
	if err != nil {
		log.Printf("webhook call for teacher %d failed: %v", identity.ID, err)
		msg := "server error"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "teacher webapp timed out"
		}
		return "", apperr.Upstream(msg, 0, "", err)
	}

	text := string(resp.Body)
	log.Printf("webhook for teacher %d responded %d: %s", identity.ID, resp.StatusCode, preview(text))
	if !resp.OK() {
		return "", apperr.Upstream("teacher webapp error", resp.StatusCode, text, nil)
	}
	if text == "" {
		text = "OK"
	}
	return text, nil
}

func (s *Service) call(ctx context.Context, op string, timeout time.Duration, url string, payload any) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.PostJSON(ctx, url, payload)
	took := time.Since(start)
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		s.metrics.ObserveWebhook(op, metrics.OutcomeTimeout, took)
	case err != nil:
		s.metrics.ObserveWebhook(op, metrics.OutcomeError, took)
	case !resp.OK():
		s.metrics.ObserveWebhook(op, metrics.OutcomeRejected, took)
	default:
		s.metrics.ObserveWebhook(op, metrics.OutcomeOK, took)
	}
	return resp, err
}

func decodeBody(body []byte) any {
	if len(body) > 0 && json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func preview(s string) string {
	if r := []rune(s); len(r) > logPreviewChars {
		return string(r[:logPreviewChars]) + "..."
	}
	return s
}

func countPresent(matrix []string) int {
	n := 0
	for _, v := range matrix {
		if v == "1" {
			n++
		}
	}
	return n
}
