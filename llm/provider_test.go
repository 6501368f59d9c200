package llm

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const openaiResponse = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"model": "gpt-4o",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "Ciao!"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
}`

// matchBody asserts on the decoded JSON request body.
func matchBody(t *testing.T, check func(body gjson.Result)) gock.MatchFunc {
	return func(req *http.Request, _ *gock.Request) (bool, error) {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return false, err
		}
		check(gjson.ParseBytes(raw))
		return true, nil
	}
}

func TestOpenAIChat(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.openai.com").
		Post("/v1/chat/completions").
		MatchHeader("authorization", "Bearer sk-test").
		AddMatcher(matchBody(t, func(body gjson.Result) {
			assert.Equal(t, "gpt-4o", body.Get("model").String())
			assert.Equal(t, "system", body.Get("messages.0.role").String())
			assert.Equal(t, "Sei un assistente.", body.Get("messages.0.content").String())
			assert.Equal(t, "Ciao", body.Get("messages.1.content").String())
			assert.EqualValues(t, 256, body.Get("max_tokens").Int())
		})).
		Reply(http.StatusOK).
		SetHeader("content-type", "application/json").
		BodyString(openaiResponse)

	provider, err := ProviderOpenAI.Model("gpt-4o").MaxTokens(256).APIKey("sk-test")
	require.NoError(t, err)

	resp, err := provider.Chat(context.Background(), []ChatMessage{
		SystemMessage("Sei un assistente."),
		UserMessage("Ciao"),
	})

	assert.False(t, gock.HasUnmatchedRequest())
	require.NoError(t, err)
	assert.Equal(t, "Ciao!", resp.Content)
	require.NotNil(t, resp.Usage)
	assert.EqualValues(t, 15, resp.Usage.TotalTokens)
}

func TestDeepSeekUsesItsEndpoint(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.deepseek.com").
		Post("/v1/chat/completions").
		MatchHeader("authorization", "Bearer ds-key").
		Reply(http.StatusOK).
		SetHeader("content-type", "application/json").
		BodyString(openaiResponse)

	provider, err := ProviderDeepSeek.APIKey("ds-key")
	require.NoError(t, err)
	assert.Equal(t, "deepseek", provider.Name())
	assert.Equal(t, ModelDeepSeekChat, provider.Model())

	resp, err := provider.Chat(context.Background(), []ChatMessage{UserMessage("Ciao")})
	require.NoError(t, err)
	assert.Equal(t, "Ciao!", resp.Content)
	assert.False(t, gock.HasUnmatchedRequest())
}

func TestOpenAIStreamChat(t *testing.T) {
	defer gock.Off()

	stream := strings.Join([]string{
		`data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Buon"}}]}`,
		`data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"giorno"}}]}`,
		`data: {"id":"1","object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
		`data: [DONE]`,
	}, "\n\n") + "\n\n"

	gock.New("https://api.openai.com").
		Post("/v1/chat/completions").
		AddMatcher(matchBody(t, func(body gjson.Result) {
			assert.True(t, body.Get("stream").Bool())
			assert.True(t, body.Get("stream_options.include_usage").Bool())
		})).
		Reply(http.StatusOK).
		SetHeader("content-type", "text/event-stream").
		BodyString(stream)

	provider, err := ProviderOpenAI.APIKey("sk-test")
	require.NoError(t, err)

	chunks := make(chan string, 8)
	usage, err := provider.StreamChat(context.Background(), []ChatMessage{UserMessage("Ciao")}, chunks)
	close(chunks)
	require.NoError(t, err)

	var got strings.Builder
	for c := range chunks {
		got.WriteString(c)
	}
	assert.Equal(t, "Buongiorno", got.String())
	require.NotNil(t, usage)
	assert.EqualValues(t, 7, usage.TotalTokens)
}

func TestAnthropicChat(t *testing.T) {
	defer gock.Off()

	gock.New("https://anthropic.test").
		Post("/v1/messages").
		MatchHeader("x-api-key", "sk-ant-test").
		AddMatcher(matchBody(t, func(body gjson.Result) {
			assert.Equal(t, "Regole", body.Get("system.0.text").String())
			assert.Equal(t, "user", body.Get("messages.0.role").String())
			assert.Equal(t, 1, len(body.Get("messages").Array()), "system message must not be sent as a turn")
		})).
		Reply(http.StatusOK).
		SetHeader("content-type", "application/json").
		BodyString(`{
			"id": "msg_1", "type": "message", "role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "Salve"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 8, "output_tokens": 2}
		}`)

	provider, err := ProviderAnthropic.Model(ModelAnthropicClaudeSonnet4).BaseURL("https://anthropic.test").APIKey("sk-ant-test")
	require.NoError(t, err)

	resp, err := provider.Chat(context.Background(), []ChatMessage{
		SystemMessage("Regole"),
		UserMessage("Ciao"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Salve", resp.Content)
	require.NotNil(t, resp.Usage)
	assert.EqualValues(t, 10, resp.Usage.TotalTokens)
}

// Provider errors must not echo credentials back to callers or logs.
func TestOpenAIErrorNoAPIKeyLeak(t *testing.T) {
	defer gock.Off()

	testKey := "sk-test-invalid-key-12345xyz"
	gock.New("https://api.openai.com").
		Post("/v1/chat/completions").
		Reply(http.StatusUnauthorized).
		SetHeader("content-type", "application/json").
		BodyString(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`)

	provider, err := ProviderOpenAI.APIKey(testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = provider.Chat(ctx, []ChatMessage{UserMessage("test")})
	if err == nil {
		t.Fatal("expected error for rejected API key")
	}
	if strings.Contains(err.Error(), testKey) {
		t.Errorf("OpenAI error message leaked API key: %v", err)
	}
	if strings.Contains(err.Error(), "Authorization:") {
		t.Errorf("OpenAI error exposed Authorization header: %v", err)
	}
}

func TestClientComplete(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.openai.com").
		Post("/v1/chat/completions").
		AddMatcher(matchBody(t, func(body gjson.Result) {
			assert.Equal(t, 2, len(body.Get("messages").Array()))
		})).
		Reply(http.StatusOK).
		SetHeader("content-type", "application/json").
		BodyString(openaiResponse)

	provider, err := ProviderOpenAI.APIKey("sk-test")
	require.NoError(t, err)

	client := NewClient(provider, time.Second, nil)
	resp, err := client.Complete(context.Background(), "sistema", "domanda")
	require.NoError(t, err)
	assert.Equal(t, "Ciao!", resp.Content)
	assert.Same(t, provider, client.Provider())
}
