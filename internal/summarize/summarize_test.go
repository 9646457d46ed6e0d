package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/logger"
)

func init() {
	retryBackoff = time.Millisecond
}

type fakeGenerator struct {
	prompts []string
	tokens  []int
	err     error
	// calls before err starts being returned
	okCalls int
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.tokens = append(f.tokens, maxTokens)
	if f.err != nil && len(f.prompts) > f.okCalls {
		return "", f.err
	}
	return "生成結果", nil
}

func TestAnthropic_Generate(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		// first call is throttled
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req anthropicRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 600, req.MaxTokens)
		assert.Equal(t, "【医療文書】[氏名]", req.Messages[0].Content)

		_ = json.NewEncoder(w).Encode(anthropicResponse{Content: []anthropicBlock{{Type: "text", Text: "病歴の要約"}}})
	}))
	defer server.Close()

	a := &Anthropic{apiKey: "test-key", model: "m", baseURL: server.URL, client: server.Client()}
	out, err := a.Generate(context.Background(), "【医療文書】[氏名]", 600)
	require.NoError(t, err)
	assert.Equal(t, "病歴の要約", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAI_Generate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(openaiResponse{Choices: []openaiChoice{{Message: openaiMessage{Role: "assistant", Content: "症状"}}}})
		}))
		defer server.Close()

		o := &OpenAI{apiKey: "sk-test", model: "m", baseURL: server.URL, client: server.Client()}
		out, err := o.Generate(context.Background(), "prompt", 10)
		require.NoError(t, err)
		assert.Equal(t, "症状", out)
	})

	t.Run("AuthErrorNotRetried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("bad key"))
		}))
		defer server.Close()

		o := &OpenAI{apiKey: "sk-bad", model: "m", baseURL: server.URL, client: server.Client()}
		_, err := o.Generate(context.Background(), "prompt", 10)
		assert.True(t, IsAuthError(err))
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestNewGenerator(t *testing.T) {
	cfg := config.GetDefaults().Summarizer

	_, err := NewGenerator(cfg)
	assert.Error(t, err, "missing API key")

	cfg.AnthropicAPIKey = "key"
	gen, err := NewGenerator(cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", gen.Name())

	cfg.Provider = "openai"
	cfg.OpenAIAPIKey = "sk"
	gen, err = NewGenerator(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", gen.Name())
}

func TestGuardedGenerator_OpensCircuit(t *testing.T) {
	inner := &fakeGenerator{err: errors.New("upstream down")}
	g := NewGuardedGenerator(inner, GuardConfig{MaxFailures: 2, OpenTimeout: time.Minute}, logger.Nop())

	for i := 0; i < 2; i++ {
		_, err := g.Generate(context.Background(), "p", 1)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := g.Generate(context.Background(), "p", 1)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, inner.prompts, 2, "open circuit does not reach the provider")
	assert.Equal(t, "open", g.State())
}

func TestSummarizer_Summarize(t *testing.T) {
	t.Run("SelectedSections", func(t *testing.T) {
		gen := &fakeGenerator{}
		s := New(gen, logger.Nop())

		result, err := s.Summarize(context.Background(), "診断名：統合失調症", Options{
			Template:    "disability_pension",
			History:     true,
			FullSummary: true,
		})
		require.NoError(t, err)

		assert.Equal(t, "生成結果", result.History)
		assert.Empty(t, result.Symptoms)
		assert.Equal(t, "生成結果", result.FullSummary)
		assert.Equal(t, []int{historyMaxTokens, summaryMaxTokens}, gen.tokens)
		for _, p := range gen.prompts {
			assert.Contains(t, p, "【医療文書】\n診断名：統合失調症\n")
			assert.NotContains(t, p, "{text}")
		}
	})

	t.Run("UnknownTemplate", func(t *testing.T) {
		_, err := New(&fakeGenerator{}, nil).Summarize(context.Background(), "x", DefaultOptions("nope"))
		assert.ErrorIs(t, err, ErrUnknownTemplate)
	})

	t.Run("ProviderFailure", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("boom")}
		result, err := New(gen, nil).Summarize(context.Background(), "x", DefaultOptions("self_support_medical"))
		assert.ErrorContains(t, err, "generating history")
		assert.True(t, result.Empty())
	})

	t.Run("KeepsSectionsBeforeFailure", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("boom"), okCalls: 2}
		result, err := New(gen, nil).Summarize(context.Background(), "x", DefaultOptions("disability_pension"))
		assert.ErrorContains(t, err, "generating full_summary")
		require.NotNil(t, result)
		assert.False(t, result.Empty())
		assert.Equal(t, "生成結果", result.History)
		assert.Equal(t, "生成結果", result.Symptoms)
		assert.Empty(t, result.FullSummary)
		assert.Len(t, gen.prompts, 3)
	})

	t.Run("CustomTemplate", func(t *testing.T) {
		reg, err := NewRegistry(map[string]config.TemplateConfig{
			"my_clinic": {
				Name:     "院内様式",
				History:  "病歴：{text}",
				Symptoms: "症状：{text}",
			},
		})
		require.NoError(t, err)

		gen := &fakeGenerator{}
		result, err := New(gen, nil).WithTemplates(reg).Summarize(context.Background(), "幻聴あり", DefaultOptions("my_clinic"))
		require.NoError(t, err)
		assert.Equal(t, "my_clinic", result.Template)
		require.Len(t, gen.prompts, 3)
		assert.Equal(t, "病歴：幻聴あり", gen.prompts[0])
		assert.Equal(t, "症状：幻聴あり", gen.prompts[1])
		assert.Contains(t, gen.prompts[2], "全期間の経過を詳しくまとめてください")
	})
}

func TestNewRegistry(t *testing.T) {
	t.Run("MergesOverBuiltins", func(t *testing.T) {
		reg, err := NewRegistry(map[string]config.TemplateConfig{
			"my_clinic": {History: "{text}", Symptoms: "{text}", Summary: "{text}"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"disability_pension", "mental_health_handbook", "my_clinic", "self_support_medical"}, reg.Keys())

		tmpl, err := reg.Lookup("my_clinic")
		require.NoError(t, err)
		assert.Equal(t, "my_clinic", tmpl.Name)

		_, err = LookupTemplate("my_clinic")
		assert.ErrorIs(t, err, ErrUnknownTemplate, "built-in set is unchanged")
	})

	t.Run("ReplacesBuiltin", func(t *testing.T) {
		reg, err := NewRegistry(map[string]config.TemplateConfig{
			"self_support_medical": {Name: "自立支援（院内版）", History: "{text}", Symptoms: "{text}"},
		})
		require.NoError(t, err)
		tmpl, err := reg.Lookup("self_support_medical")
		require.NoError(t, err)
		assert.Equal(t, "自立支援（院内版）", tmpl.Name)
	})

	t.Run("MissingMarker", func(t *testing.T) {
		_, err := NewRegistry(map[string]config.TemplateConfig{
			"broken": {History: "{text}", Symptoms: "症状をまとめてください"},
		})
		assert.ErrorIs(t, err, ErrInvalidTemplate)
		assert.ErrorContains(t, err, "symptoms")
	})

	t.Run("FromConfig", func(t *testing.T) {
		cfg := config.GetDefaults().Summarizer
		cfg.AnthropicAPIKey = "test-key"
		cfg.CustomTemplates = map[string]config.TemplateConfig{
			"my_clinic": {History: "{text}", Symptoms: "{text}"},
		}
		s, err := NewFromConfig(cfg, logger.Nop())
		require.NoError(t, err)
		assert.Contains(t, s.TemplateKeys(), "my_clinic")

		cfg.CustomTemplates["broken"] = config.TemplateConfig{History: "x", Symptoms: "{text}"}
		_, err = NewFromConfig(cfg, logger.Nop())
		assert.ErrorIs(t, err, ErrInvalidTemplate)
	})
}

func TestTemplates(t *testing.T) {
	assert.Equal(t, []string{"disability_pension", "mental_health_handbook", "self_support_medical"}, TemplateKeys())
	for _, key := range TemplateKeys() {
		tmpl, err := LookupTemplate(key)
		require.NoError(t, err)
		for _, prompt := range []string{tmpl.History, tmpl.Symptoms, tmpl.Summary} {
			assert.Equal(t, 1, strings.Count(prompt, "{text}"), key)
		}
	}
}

func TestSaveResults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

	saved, err := SaveResults(dir, &Result{History: "病歴本文", FullSummary: "サマリー本文"}, now)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "病歴_20240309_140507.txt"), saved["history"])
	assert.Equal(t, filepath.Join(dir, "全期間サマリー_20240309_140507.txt"), saved["full_summary"])
	assert.NotContains(t, saved, "symptoms")

	body, err := os.ReadFile(saved["history"])
	require.NoError(t, err)
	assert.Equal(t, "病歴本文", string(body))

	written, err := WriteRedacted(dir, "[氏名]", "レポート", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "匿名化済み_20240309_140507.txt"), written["redacted"])
	assert.Equal(t, filepath.Join(dir, "削除レポート_20240309_140507.txt"), written["report"])
}
