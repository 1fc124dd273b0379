package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"autopilot-engine/pkg/confkit"
)

func TestLoadConfigFromReader(t *testing.T) {
	t.Setenv(envAPIKey, "override-key")
	t.Setenv(envTimeout, "45s")
	t.Setenv(envMaxRetries, "5")

	data := `
base_url: "https://example.com/v1"
api_key: "${LLM_API_KEY}"
default_model: "sentiment"
timeout: "30s"
max_retries: 2

models:
  sentiment:
    provider: "openai"
    model_name: "gpt-4o-mini"
    temperature: 0.1
    max_tokens: 256
`

	cfg, err := LoadConfigFromReader(strings.NewReader(data))
	require.NoError(t, err)

	require.Equal(t, "https://example.com/v1", cfg.BaseURL)
	require.Equal(t, "override-key", cfg.APIKey)
	require.Equal(t, "sentiment", cfg.DefaultModel)
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, 45*time.Second, cfg.Timeout)

	model, ok := cfg.Model("sentiment")
	require.True(t, ok)
	require.Equal(t, "openai/gpt-4o-mini", ResolveModelID("sentiment", model))
	require.NotNil(t, model.Temperature)
	require.InDelta(t, 0.1, *model.Temperature, 1e-9)
}

func TestLoadConfigFromReader_Invalid(t *testing.T) {
	t.Setenv(envAPIKey, "")
	_, err := LoadConfigFromReader(strings.NewReader(`default_model: x`))
	require.ErrorIs(t, err, confkit.ErrConfigInvalid)

	t.Setenv(envAPIKey, "k")
	_, err = LoadConfigFromReader(strings.NewReader("default_model: x\ntimeout: -1s\n"))
	require.ErrorIs(t, err, confkit.ErrConfigInvalid)
}

const completionBody = `{
	"id":"chatcmpl-1",
	"object":"chat.completion",
	"created":1730366400,
	"model":"openai/gpt-4o-mini",
	"choices":[{"index":0,"finish_reason":"stop","logprobs":null,"message":{"role":"assistant","content":%q}}],
	"usage":{"prompt_tokens":10,"completion_tokens":12,"total_tokens":22}
}`

type recordedCall struct {
	Path string
	Body map[string]any
}

func newTestClient(t *testing.T, contents ...string) (*Client, func() []recordedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		calls = append(calls, recordedCall{Path: r.URL.Path, Body: body})
		idx := len(calls) - 1
		if idx >= len(contents) {
			idx = len(contents) - 1
		}
		content, _ := json.Marshal(contents[idx])
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, strings.Replace(completionBody, "%q", string(content), 1))
	}))
	t.Cleanup(server.Close)

	cfg := &Config{
		BaseURL:      server.URL,
		APIKey:       "test-key",
		DefaultModel: "sentiment",
		Timeout:      5 * time.Second,
		MaxRetries:   1,
		Models: map[string]ModelConfig{
			"sentiment": {Provider: "openai", ModelName: "gpt-4o-mini"},
		},
	}
	client, err := NewClient(cfg, WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return client, func() []recordedCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedCall(nil), calls...)
	}
}

func TestClientChat(t *testing.T) {
	client, calls := newTestClient(t, "Hello from test")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.Chat(ctx, &ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "You are terse."},
			{Role: "user", Content: "Say hello"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Hello from test", resp.Content())
	require.Equal(t, 22, resp.Usage.TotalTokens)

	recorded := calls()
	require.Len(t, recorded, 1)
	require.Equal(t, "/chat/completions", recorded[0].Path)
	require.Equal(t, "openai/gpt-4o-mini", recorded[0].Body["model"])
	require.Len(t, recorded[0].Body["messages"], 2)
}

func TestClientChat_RequiresMessages(t *testing.T) {
	client, _ := newTestClient(t, "unused")
	_, err := client.Chat(context.Background(), &ChatRequest{})
	require.Error(t, err)
	_, err = client.Chat(context.Background(), nil)
	require.Error(t, err)
}

type sentimentReply struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

func TestClientChatStructured(t *testing.T) {
	client, calls := newTestClient(t, "```json\n{\"score\": 0.4, \"rationale\": \"beat estimates\"}\n```")

	var out sentimentReply
	err := client.ChatStructured(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "AAPL?"}},
	}, &out)
	require.NoError(t, err)
	require.InDelta(t, 0.4, out.Score, 1e-9)
	require.Equal(t, "beat estimates", out.Rationale)

	format, ok := calls()[0].Body["response_format"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "json_schema", format["type"])

	require.Error(t, client.ChatStructured(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "x"}},
	}, out))
}

func TestGenerateSchema(t *testing.T) {
	schema, err := GenerateSchema(&sentimentReply{})
	require.NoError(t, err)
	require.Equal(t, "object", schema["type"])
	props := schema["properties"].(map[string]any)
	require.Equal(t, map[string]any{"type": "number"}, props["score"])
	require.ElementsMatch(t, []string{"score", "rationale"}, schema["required"])

	_, err = GenerateSchema(42)
	require.Error(t, err)
}

func TestParseStructured(t *testing.T) {
	var out sentimentReply
	require.NoError(t, ParseStructured(`{"score": -1}`, &out))
	require.Equal(t, -1.0, out.Score)
	require.Error(t, ParseStructured(`not json`, &out))
	require.Error(t, ParseStructured(`{}`, out))
}

func TestResolveModelID(t *testing.T) {
	require.Equal(t, "openai/gpt-4o", ResolveModelID("openai/gpt-4o", ModelConfig{}))
	require.Equal(t, "anthropic/claude", ResolveModelID("fast", ModelConfig{Provider: "anthropic", ModelName: "claude"}))
	require.Equal(t, "plain", ResolveModelID("plain", ModelConfig{}))
	require.Equal(t, "google/gemini", ResolveModelID("fast", ModelConfig{Provider: "openrouter", ModelName: "google/gemini"}))
}
