package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/doc-sentinel/internal/audit"
	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/privacy"
	"github.com/raaihank/doc-sentinel/internal/summarize"
)

const reviewDocument = "氏名：田中太郎\n電話 03-1234-5678\n担当 田中先生"

type fakeAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *fakeAuditor) Record(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

type fakeSummarizer struct {
	text    string
	err     error
	partial bool
	extra   []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string, opts summarize.Options) (*summarize.Result, error) {
	f.text = text
	result := &summarize.Result{Template: opts.Template, History: "病歴"}
	if f.err != nil {
		if f.partial {
			return result, f.err
		}
		return &summarize.Result{Template: opts.Template}, f.err
	}
	return result, nil
}

func (f *fakeSummarizer) TemplateKeys() []string {
	return append(summarize.TemplateKeys(), f.extra...)
}

func newTestServer(t *testing.T, deps Dependencies) *Server {
	t.Helper()
	cfg := config.GetDefaults()
	s, err := New(cfg, nil, deps)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, Dependencies{})
	rr, body := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr, body = do(t, s, http.MethodGet, "/info", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "doc-sentinel", body["name"])
	assert.Contains(t, body, "session_store")
}

func TestServer_Dashboard(t *testing.T) {
	s := newTestServer(t, Dependencies{})
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"/ws"`)

	cfg := config.GetDefaults()
	cfg.WebSocket.Enabled = false
	s, err := New(cfg, nil, Dependencies{})
	require.NoError(t, err)
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_Redact(t *testing.T) {
	auditor := &fakeAuditor{}
	s := newTestServer(t, Dependencies{Auditor: auditor})

	rr, body := do(t, s, http.MethodPost, "/v1/redact", map[string]any{"text": "携帯 090-1234-5678", "report": true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "携帯 [電話番号]", body["text"])
	assert.Contains(t, body["report"], "090-1234-5678")

	require.Len(t, auditor.entries, 1)
	assert.Equal(t, "api", auditor.entries[0].Source)
	assert.Equal(t, []privacy.LabelCount{{Category: privacy.CategoryPhone, Label: privacy.LabelPhone, Count: 1}}, auditor.entries[0].Counts)

	rr, _ = do(t, s, http.MethodPost, "/v1/redact", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_ReviewFlow(t *testing.T) {
	auditor := &fakeAuditor{}
	summarizer := &fakeSummarizer{}
	s := newTestServer(t, Dependencies{Auditor: auditor, Summarizer: summarizer})

	rr, body := do(t, s, http.MethodPost, "/v1/reviews", map[string]any{"text": reviewDocument})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "awaiting_review", body["state"])
	assert.Equal(t, "氏名：[氏名]\n電話 [電話番号]\n担当 田中先生", body["text"])
	assert.Contains(t, body["report"], "田中太郎")
	id := body["id"].(string)
	base := "/v1/reviews/" + id

	rr, _ = do(t, s, http.MethodPost, base+"/delete", nil)
	assert.Equal(t, http.StatusConflict, rr.Code, "delete before search")

	rr, _ = do(t, s, http.MethodPost, base+"/search", map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = do(t, s, http.MethodPost, base+"/search", map[string]any{"query": "田中"})
	require.Equal(t, http.StatusOK, rr.Code)
	session := body["session"].(map[string]any)
	assert.Equal(t, float64(1), session["matches"])
	current := session["current"].(map[string]any)
	assert.Equal(t, "田中", current["match"])
	assert.Equal(t, "先生", current["after"])

	rr, _ = do(t, s, http.MethodPost, base+"/navigate", map[string]any{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = do(t, s, http.MethodPost, base+"/delete", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "氏名：[氏名]\n電話 [電話番号]\n担当 先生", body["text"])
	assert.Equal(t, true, body["session"].(map[string]any)["exhausted"])

	rr, _ = do(t, s, http.MethodPost, base+"/summarize", map[string]any{})
	assert.Equal(t, http.StatusConflict, rr.Code, "summarize before confirm")

	rr, body = do(t, s, http.MethodPost, base+"/confirm", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "confirmed", body["state"])
	require.Len(t, auditor.entries, 1)
	assert.Equal(t, id, auditor.entries[0].DocumentID)

	rr, _ = do(t, s, http.MethodPost, base+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, _ = do(t, s, http.MethodPost, base+"/summarize", map[string]any{"template": "nope"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = do(t, s, http.MethodPost, base+"/summarize", map[string]any{"history": true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "病歴", body["history"])
	assert.Equal(t, "氏名：[氏名]\n電話 [電話番号]\n担当 先生", summarizer.text)
}

func TestServer_ReviewErrors(t *testing.T) {
	s := newTestServer(t, Dependencies{Summarizer: &fakeSummarizer{err: errors.New("upstream 500")}})

	rr, _ := do(t, s, http.MethodGet, "/v1/reviews/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, body := do(t, s, http.MethodPost, "/v1/reviews", map[string]any{"text": "TEL 0312345678", "interactive": false})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "confirmed", body["state"])
	base := "/v1/reviews/" + body["id"].(string)

	rr, _ = do(t, s, http.MethodPost, base+"/search", map[string]any{"query": "TEL"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, body = do(t, s, http.MethodPost, base+"/summarize", map[string]any{})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.NotContains(t, body, "partial")

	t.Run("PartialSections", func(t *testing.T) {
		s := newTestServer(t, Dependencies{Summarizer: &fakeSummarizer{err: errors.New("generating symptoms: upstream 500"), partial: true}})
		rr, body := do(t, s, http.MethodPost, "/v1/reviews", map[string]any{"text": "x", "interactive": false})
		require.Equal(t, http.StatusCreated, rr.Code)

		rr, body = do(t, s, http.MethodPost, "/v1/reviews/"+body["id"].(string)+"/summarize", map[string]any{})
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Contains(t, body["error"], "generating symptoms")
		require.Contains(t, body, "partial")
		assert.Equal(t, "病歴", body["partial"].(map[string]any)["history"])
	})

	t.Run("CustomTemplate", func(t *testing.T) {
		s := newTestServer(t, Dependencies{Summarizer: &fakeSummarizer{extra: []string{"my_clinic"}}})
		rr, body := do(t, s, http.MethodPost, "/v1/reviews", map[string]any{"text": "x", "interactive": false})
		require.Equal(t, http.StatusCreated, rr.Code)

		rr, body = do(t, s, http.MethodPost, "/v1/reviews/"+body["id"].(string)+"/summarize", map[string]any{"template": "my_clinic"})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "my_clinic", body["template"])

		_, body = do(t, s, http.MethodGet, "/info", nil)
		assert.Contains(t, body["templates"], "my_clinic")
	})

	t.Run("NoSummarizer", func(t *testing.T) {
		s := newTestServer(t, Dependencies{})
		rr, body := do(t, s, http.MethodPost, "/v1/reviews", map[string]any{"text": "x", "interactive": false})
		require.Equal(t, http.StatusCreated, rr.Code)
		rr, _ = do(t, s, http.MethodPost, "/v1/reviews/"+body["id"].(string)+"/summarize", map[string]any{})
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestServer_RateLimit(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.Security.RateLimit.RequestsPerMin = 1
	cfg.Security.RateLimit.Burst = 2
	s, err := New(cfg, nil, Dependencies{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		rr, _ := do(t, s, http.MethodPost, "/v1/redact", map[string]any{"text": "x"})
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr, _ := do(t, s, http.MethodPost, "/v1/redact", map[string]any{"text": "x"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr, _ = do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code, "health is not rate limited")
}

func TestServer_Reload(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	cfg := config.GetDefaults()
	cfg.Privacy.Detectors = []string{"phones"}
	require.NoError(t, s.Reload(cfg))

	_, body := do(t, s, http.MethodPost, "/v1/redact", map[string]any{"text": "氏名：田中太郎 090-1234-5678"})
	assert.Equal(t, "氏名：田中太郎 [電話番号]", body["text"])

	bad := config.GetDefaults()
	bad.Privacy.Detectors = []string{"fingerprints"}
	assert.Error(t, s.Reload(bad))
}

func TestSessionLocks(t *testing.T) {
	locks := newSessionLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("abc")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, locks.locks)
}
