package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/autofund-ai/autofund/pkg/config"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/autofund-ai/autofund/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string  { return "mock" }
func (m *mockProvider) Model() string { return "mock-1" }

func (m *mockProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*llm.Response)
	return resp, args.Error(1)
}

func TestClientAppliesProfileDefaults(t *testing.T) {
	p := &mockProvider{}
	p.On("Generate", mock.Anything, mock.MatchedBy(func(req *llm.Request) bool {
		return req.Temperature == 0.3 && req.MaxTokens == 1234
	})).Return(&llm.Response{Text: "ok", Model: "mock-1"}, nil).Once()

	c := llm.NewClientWithProvider(p, config.ModelProfile{Temperature: 0.3, MaxTokens: 1234}, nil)
	resp, err := c.Generate(context.Background(), &llm.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	p.AssertExpectations(t)
}

func TestClientEnforcesTimeout(t *testing.T) {
	p := &mockProvider{}
	p.On("Generate", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, errors.New("request aborted"))

	c := llm.NewClientWithProvider(p, config.ModelProfile{Timeout: 20 * time.Millisecond}, nil)
	_, err := c.Generate(context.Background(), &llm.Request{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := llm.NewClient(context.Background(), config.LLMConfig{}, config.ModelProfile{Provider: "openai"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestNewClientMissingKey(t *testing.T) {
	_, err := llm.NewClient(context.Background(), config.LLMConfig{}, config.ModelProfile{Provider: llm.ProviderAnthropic}, nil)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func anthropicServer(t *testing.T, status int, body string, seen *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		if seen != nil {
			require.NoError(t, json.Unmarshal(raw, seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicProviderSendsDocument(t *testing.T) {
	var seen map[string]interface{}
	srv := anthropicServer(t, http.StatusOK, `{
		"id": "msg_01", "type": "message", "role": "assistant", "model": "claude-test",
		"content": [{"type": "text", "text": "{\"nif\": \"123456789\"}"}],
		"stop_reason": "end_turn", "stop_sequence": null,
		"usage": {"input_tokens": 120, "output_tokens": 40}
	}`, &seen)

	p, err := llm.NewAnthropicProvider(config.ProviderCredentials{APIKey: "sk-test", BaseURL: srv.URL}, "claude-test")
	require.NoError(t, err)
	resp, err := p.Generate(context.Background(), &llm.Request{
		System:    "extract",
		Prompt:    "return JSON",
		Document:  []byte("%PDF-1.4"),
		MaxTokens: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"nif": "123456789"}`, resp.Text)
	assert.Equal(t, int64(120), resp.Usage.PromptTokens)
	assert.Equal(t, int64(40), resp.Usage.CompletionTokens)

	messages := seen["messages"].([]interface{})
	content := messages[0].(map[string]interface{})["content"].([]interface{})
	require.Len(t, content, 2)
	doc := content[0].(map[string]interface{})
	assert.Equal(t, "document", doc["type"])
	source := doc["source"].(map[string]interface{})
	assert.Equal(t, "application/pdf", source["media_type"])
	assert.Equal(t, "JVBERi0xLjQ=", source["data"])
}

func TestAnthropicProviderMapsStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, apperrors.ErrRateLimited},
		{http.StatusUnauthorized, apperrors.ErrAuthFailed},
		{http.StatusInternalServerError, apperrors.ErrLLMUnavailable},
	}
	for _, tt := range tests {
		srv := anthropicServer(t, tt.status, `{"type":"error","error":{"type":"api_error","message":"nope"}}`, nil)
		p, err := llm.NewAnthropicProvider(config.ProviderCredentials{APIKey: "sk-test", BaseURL: srv.URL}, "claude-test")
		require.NoError(t, err)
		_, err = p.Generate(context.Background(), &llm.Request{Prompt: "x", MaxTokens: 10})
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}
}

func TestGeminiProviderRequestsJSON(t *testing.T) {
	var seen map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &seen))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"pontos_fortes\": []}"}]}}],
			"usageMetadata": {"promptTokenCount": 50, "candidatesTokenCount": 9}
		}`)
	}))
	defer srv.Close()

	p, err := llm.NewGeminiProvider(context.Background(),
		config.ProviderCredentials{APIKey: "key", BaseURL: srv.URL}, "gemini-test")
	require.NoError(t, err)
	resp, err := p.Generate(context.Background(), &llm.Request{
		Prompt:   "analyse",
		Document: []byte("%PDF-1.4"),
		JSON:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"pontos_fortes": []}`, resp.Text)
	assert.Equal(t, int64(50), resp.Usage.PromptTokens)
	gen := seen["generationConfig"].(map[string]interface{})
	assert.Equal(t, "application/json", gen["responseMimeType"])
	parts := seen["contents"].([]interface{})[0].(map[string]interface{})["parts"].([]interface{})
	assert.Contains(t, parts[0], "inlineData")
}
