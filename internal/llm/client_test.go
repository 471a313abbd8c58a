package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func TestChat_ReturnsContent(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel, _ = req["model"].(string)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody("[happy]ゲームにハマってるよ。"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/v1")
	out, err := c.Chat(context.Background(), "test", "gemma3:12b", []Message{
		{Role: RoleSystem, Content: "system"},
		{Role: RoleUser, Content: "こんにちは"},
	}, 0.7)

	require.NoError(t, err)
	assert.Equal(t, "[happy]ゲームにハマってるよ。", out)
	assert.Equal(t, "gemma3:12b", gotModel)
}

func TestChat_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporarily overloaded", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody("復帰したよ。"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/v1")
	out, err := c.Chat(context.Background(), "test", "gemma3:12b", []Message{{Role: RoleUser, Content: "a"}}, 0.5)

	require.NoError(t, err)
	assert.Equal(t, "復帰したよ。", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChat_EmptyContentIsRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			fmt.Fprint(w, completionBody(""))
			return
		}
		fmt.Fprint(w, completionBody("二回目で出たよ。"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/v1")
	out, err := c.Chat(context.Background(), "test", "gemma3:12b", []Message{{Role: RoleUser, Content: "a"}}, 0.5)

	require.NoError(t, err)
	assert.Equal(t, "二回目で出たよ。", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChat_ExhaustedRetriesSurfaceError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/v1")
	_, err := c.Chat(context.Background(), "test", "gemma3:12b", []Message{{Role: RoleUser, Content: "a"}}, 0.5)

	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, err.Error(), "after 3 attempts")
}
