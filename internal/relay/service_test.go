package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollsheet/internal/apperr"
	"rollsheet/internal/auth"
	"rollsheet/internal/metrics"
	"rollsheet/internal/teacher"
)

type webhook struct {
	*httptest.Server
	calls atomic.Int32
	last  atomic.Value
}

func newWebhook(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *webhook {
	t.Helper()
	wh := &webhook{}
	wh.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh.calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		wh.last.Store(body)
		handler(w, body)
	}))
	t.Cleanup(wh.Close)
	return wh
}

func (w *webhook) lastBody() map[string]any {
	v, _ := w.last.Load().(map[string]any)
	return v
}

func seedTeacher(t *testing.T, store *teacher.MemoryStore, url, secret string) auth.Identity {
	t.Helper()
	id, err := store.Create(context.Background(), teacher.Account{
		Username:      "t1",
		PasswordHash:  "x",
		WebhookURL:    url,
		WebhookSecret: secret,
	})
	require.NoError(t, err)
	return auth.Identity{ID: id, Username: "t1"}
}

func TestSubmitAttendance_PostsNormalizedPayload(t *testing.T) {
	wh := newWebhook(t, func(w http.ResponseWriter, _ map[string]any) {
		_, _ = io.WriteString(w, "row appended")
	})
	store := teacher.NewMemoryStore()
	identity := seedTeacher(t, store, wh.URL, "shh")
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(store, nil, m, Options{})

	presence := repeat(false, RollCount)
	presence[0], presence[1], presence[2] = true, true, true
	out, err := svc.SubmitAttendance(context.Background(), identity, Submission{
		Subject: "cn", Date: "2024-01-01", Regular: 1.0, Extra: 0.0, Presence: presence,
	})

	require.NoError(t, err)
	assert.Equal(t, "row appended", out)
	body := wh.lastBody()
	assert.Equal(t, "shh", body["secret"])
	assert.Equal(t, "cn", body["subject"])
	assert.Equal(t, "2024-01-01", body["date"])
	assert.Equal(t, 1.0, body["regular"])
	assert.Equal(t, 0.0, body["extra"])
	matrix := body["presentMatrix"].([]any)
	require.Len(t, matrix, RollCount)
	assert.Equal(t, []any{"1", "1", "1", "0"}, matrix[:4])
	for _, v := range matrix[3:] {
		assert.Equal(t, "0", v)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookCalls.WithLabelValues(opSubmit, metrics.OutcomeOK)))
}

func TestSubmitAttendance_EmptyBodyBecomesOK(t *testing.T) {
	wh := newWebhook(t, func(w http.ResponseWriter, _ map[string]any) { w.WriteHeader(http.StatusOK) })
	store := teacher.NewMemoryStore()
	identity := seedTeacher(t, store, wh.URL, "shh")

	out, err := NewService(store, nil, nil, Options{}).SubmitAttendance(context.Background(), identity, Submission{})
	require.NoError(t, err)
	assert.Equal(t, "OK", out)
}

func TestSubmitAttendance_NoWebhookConfigured(t *testing.T) {
	wh := newWebhook(t, func(w http.ResponseWriter, _ map[string]any) {})
	store := teacher.NewMemoryStore()
	tests := []struct {
		name     string
		identity func() auth.Identity
	}{
		{"missing_secret", func() auth.Identity {
			id, _ := store.Create(context.Background(), teacher.Account{Username: "nosecret", WebhookURL: wh.URL})
			return auth.Identity{ID: id}
		}},
		{"missing_url", func() auth.Identity {
			id, _ := store.Create(context.Background(), teacher.Account{Username: "nourl", WebhookSecret: "shh"})
			return auth.Identity{ID: id}
		}},
		{"unknown_account", func() auth.Identity { return auth.Identity{ID: 999} }},
	}
	svc := NewService(store, nil, nil, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitAttendance(context.Background(), tt.identity(), Submission{})
			assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
		})
	}
	assert.Zero(t, wh.calls.Load(), "no outbound call without a webhook")
}

func TestSubmitAttendance_UpstreamRejects(t *testing.T) {
	wh := newWebhook(t, func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "bad secret")
	})
	store := teacher.NewMemoryStore()
	identity := seedTeacher(t, store, wh.URL, "shh")

	_, err := NewService(store, nil, nil, Options{}).SubmitAttendance(context.Background(), identity, Submission{})

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindUpstream, e.Kind)
	assert.Equal(t, http.StatusForbidden, e.Status)
	assert.Equal(t, "bad secret", e.Detail)
	assert.NotContains(t, e.Error(), "shh")
}

func TestSubmitAttendance_Timeout(t *testing.T) {
	release := make(chan struct{})
	wh := newWebhook(t, func(w http.ResponseWriter, _ map[string]any) { <-release })
	defer close(release)
	store := teacher.NewMemoryStore()
	identity := seedTeacher(t, store, wh.URL, "shh")
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(store, nil, m, Options{SubmitTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := svc.SubmitAttendance(context.Background(), identity, Submission{})

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, store.Len(), "nothing persisted on timeout")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookCalls.WithLabelValues(opSubmit, metrics.OutcomeTimeout)))
}

func TestSubmitAttendance_Unreachable(t *testing.T) {
	wh := newWebhook(t, func(w http.ResponseWriter, _ map[string]any) {})
	url := wh.URL
	wh.Close()
	store := teacher.NewMemoryStore()
	identity := seedTeacher(t, store, url, "shh")

	_, err := NewService(store, nil, nil, Options{}).SubmitAttendance(context.Background(), identity, Submission{})

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindUpstream, e.Kind)
	assert.Zero(t, e.Status)
}

func TestVerifyWebhook(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantOK   bool
		wantErr  bool
		wantData any
	}{
		{"json_ok", http.StatusOK, `{"ok":true}`, true, false, json.RawMessage(`{"ok":true}`)},
		{"text_ok", http.StatusOK, `pong`, true, false, "pong"},
		{"rejected", http.StatusUnauthorized, `{"error":"bad secret"}`, false, true, json.RawMessage(`{"error":"bad secret"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := newWebhook(t, func(w http.ResponseWriter, body map[string]any) {
				assert.Equal(t, "probe-secret", body["secret"])
				assert.Equal(t, true, body["test"])
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			svc := NewService(teacher.NewMemoryStore(), nil, nil, Options{})

			res, err := svc.VerifyWebhook(context.Background(), auth.Identity{ID: 1}, wh.URL, "probe-secret")

			assert.Equal(t, tt.wantOK, res.OK)
			assert.Equal(t, tt.wantData, res.Data)
			if tt.wantErr {
				e, ok := apperr.As(err)
				require.True(t, ok)
				assert.Equal(t, apperr.KindUpstream, e.Kind)
				assert.Equal(t, tt.status, e.Status)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifyWebhook_MissingFields(t *testing.T) {
	svc := NewService(teacher.NewMemoryStore(), nil, nil, Options{})
	_, err := svc.VerifyWebhook(context.Background(), auth.Identity{ID: 1}, "", "x")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.VerifyWebhook(context.Background(), auth.Identity{ID: 1}, "http://example.invalid", " ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
