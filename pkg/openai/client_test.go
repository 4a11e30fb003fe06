package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChatCompletionParsesToolCalls(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Sure!","tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"add_to_order","arguments":"{\"items\":[{\"name\":\"Caesar Salad\",\"quantity\":2}]}"}}]}}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "sk-test", "test-model")
	resp, err := client.CreateChatCompletion(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "two caesar salads"}},
		Tools:    []Tool{{Type: "function", Function: FunctionDef{Name: "add_to_order", Parameters: json.RawMessage(`{"type":"object"}`)}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, "auto", got.ToolChoice)
	assert.Equal(t, "Sure!", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "add_to_order", resp.ToolCalls[0].Function.Name)
	assert.Contains(t, resp.ToolCalls[0].Function.Arguments, "Caesar Salad")
}

func TestCreateChatCompletionErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("case") {
		default:
			http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk-test", "m")
	_, err := client.CreateChatCompletion(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = (&Client{}).CreateChatCompletion(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCreateChatCompletionHonoursContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewClient(srv.URL, "sk-test", "m").CreateChatCompletion(ctx, ChatRequest{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
