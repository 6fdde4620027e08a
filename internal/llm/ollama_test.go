// ABOUTME: Tests for the local Ollama client against a stub server.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllama_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, defaultOllamaModel, req.Model)
		assert.False(t, req.Stream, "streaming must be off")
		require.Len(t, req.Messages, 2)

		resp := ollamaResponse{Message: ollamaMessage{Role: "assistant", Content: "local reply"}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOllama(OllamaConfig{BaseURL: server.URL})

	reply, err := p.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are terse."},
		{Role: RoleUser, Content: "dave: thoughts?"},
	})

	require.NoError(t, err)
	assert.Equal(t, "local reply", reply)
}

func TestOllama_Generate_DaemonError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaResponse{Error: "model not found"})
	}))
	defer server.Close()

	p := NewOllama(OllamaConfig{BaseURL: server.URL})

	_, err := p.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestNewOllama_Defaults(t *testing.T) {
	p := NewOllama(OllamaConfig{})

	assert.Equal(t, "local", p.Name())
	assert.Equal(t, defaultOllamaModel, p.config.Model)
	assert.Equal(t, defaultOllamaBaseURL, p.config.BaseURL)
}
