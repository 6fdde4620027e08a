// ABOUTME: Tests for the Gemini client against a stub server.

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

func TestGoogle_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req googleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		require.Len(t, req.SystemInstruction.Parts, 1)
		assert.Equal(t, "You are terse.", req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.Contents, 2)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Equal(t, "model", req.Contents[1].Role, "assistant history maps to the model role")

		resp := googleResponse{
			Candidates: []googleCandidate{
				{Content: googleContent{Role: "model", Parts: []googlePart{{Text: "indeed"}}}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewGoogle(GoogleConfig{APIKey: "test-key", BaseURL: server.URL})

	reply, err := p.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are terse."},
		{Role: RoleUser, Content: "carol: agreed?"},
		{Role: RoleAssistant, Content: "maybe"},
	})

	require.NoError(t, err)
	assert.Equal(t, "indeed", reply)
}

func TestGoogle_Generate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal"))
	}))
	defer server.Close()

	p := NewGoogle(GoogleConfig{APIKey: "test-key", BaseURL: server.URL})

	_, err := p.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "google", se.Provider)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
}

func TestGoogle_Generate_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(googleResponse{})
	}))
	defer server.Close()

	p := NewGoogle(GoogleConfig{APIKey: "test-key", BaseURL: server.URL})

	_, err := p.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestNewGoogle_Defaults(t *testing.T) {
	p := NewGoogle(GoogleConfig{APIKey: "k"})

	assert.Equal(t, "google", p.Name())
	assert.Equal(t, defaultGoogleModel, p.config.Model)
	assert.Equal(t, defaultGoogleBaseURL, p.config.BaseURL)
}
