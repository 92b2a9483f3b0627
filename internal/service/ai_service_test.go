package service

import (
	"context"
	"encoding/json"
	"lingo_edu_backend/internal/config"
	"lingo_edu_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAIServiceComplete(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	ai := NewAIService(config.AIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "m1", Temperature: 0.3, MaxTokens: 512})
	reply, err := ai.Complete(context.Background(), []AIChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
	assert.Equal(t, "m1", got.Model)
	assert.Equal(t, 0.3, got.Temperature)
	assert.Equal(t, 512, got.MaxTokens)
}

func TestAIServiceUpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `oops`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			ai := NewAIService(config.AIConfig{BaseURL: srv.URL})
			_, err := ai.Complete(context.Background(), nil)
			assert.ErrorIs(t, err, util.ErrUpstream)
		})
	}

	_, err := NewAIService(config.AIConfig{}).Complete(context.Background(), nil)
	assert.ErrorIs(t, err, util.ErrUpstream)
}
