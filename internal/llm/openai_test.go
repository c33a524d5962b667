package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenAIProvider_Name(t *testing.T) {
	p := NewOpenAIProvider(OpenAIOptions{APIKey: "sk-test"}, nil)
	assert.Equal(t, "openai", p.Name())
}

func TestOpenAIProvider_RequiresModel(t *testing.T) {
	p := NewOpenAIProvider(OpenAIOptions{APIKey: "sk-test"}, nil)
	_, err := p.ChatCompletion(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a model")
}

func TestOpenAIProvider_ChatCompletionWithToolCalls(t *testing.T) {
	var received map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {
							"name": "GoogleShopping_SearchProducts",
							"arguments": "{\"keywords\":\"wireless mouse\"}"
						}
					}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIOptions{APIKey: "sk-test", BaseURL: server.URL + "/v1"}, zaptest.NewLogger(t))

	resp, err := p.ChatCompletion(context.Background(), ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []Message{
			{Role: RoleSystem, Content: "be helpful"},
			{Role: RoleUser, Content: "find me a wireless mouse"},
		},
		Tools: []ChatTool{{
			Name:        "GoogleShopping_SearchProducts",
			Description: "Search products",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"keywords": map[string]interface{}{"type": "string"},
				},
				"required": []string{"keywords"},
			},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "GoogleShopping_SearchProducts", resp.ToolCalls[0].Name)
	assert.Equal(t, map[string]interface{}{"keywords": "wireless mouse"}, resp.ToolCalls[0].Arguments)
	assert.Equal(t, &Usage{PromptTokens: 12, CompletionTokens: 7, TotalTokens: 19}, resp.Usage)

	assert.Equal(t, "gpt-4o-mini", received["model"])
	messages := received["messages"].([]interface{})
	assert.Len(t, messages, 2)
	tools := received["tools"].([]interface{})
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]interface{})["function"].(map[string]interface{})
	assert.Equal(t, "GoogleShopping_SearchProducts", fn["name"])
}

func TestOpenAIProvider_SendsToolHistory(t *testing.T) {
	var received struct {
		Messages []struct {
			Role       string `json:"role"`
			Content    string `json:"content"`
			Name       string `json:"name"`
			ToolCallID string `json:"tool_call_id"`
			ToolCalls  []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Here you go"}}]}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIOptions{APIKey: "sk-test", BaseURL: server.URL + "/v1"}, nil)

	resp, err := p.ChatCompletion(context.Background(), ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []Message{
			{Role: RoleUser, Content: "find me a mouse"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{
				ID:        "call_1",
				Name:      "GoogleShopping_SearchProducts",
				Arguments: map[string]interface{}{"keywords": "mouse"},
			}}},
			{Role: RoleTool, Content: `[{"title":"Mouse"}]`, Name: "GoogleShopping_SearchProducts", ToolCallID: "call_1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Here you go", resp.Content)
	assert.Empty(t, resp.ToolCalls)

	require.Len(t, received.Messages, 3)
	require.Len(t, received.Messages[1].ToolCalls, 1)
	assert.Equal(t, `{"keywords":"mouse"}`, received.Messages[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "call_1", received.Messages[2].ToolCallID)
	assert.Empty(t, received.Messages[2].Name)
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIOptions{APIKey: "sk-test", BaseURL: server.URL}, nil)
	_, err := p.ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestUsageAdd(t *testing.T) {
	total := &Usage{}
	total.Add(&Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	total.Add(nil)
	total.Add(&Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	assert.Equal(t, &Usage{PromptTokens: 11, CompletionTokens: 22, TotalTokens: 33}, total)
}
