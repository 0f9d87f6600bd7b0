package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeweave/backend/internal/apperr"
)

func TestChatForwardsSingleMessage(t *testing.T) {
	var got completionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, completionPath, r.URL.Path)
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "server-key", "", nil)
	res, err := c.Chat(context.Background(), ChatRequest{Message: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "hi there", res.Reply)
	assert.Contains(t, string(res.Completion), "choices")
	assert.Equal(t, "Bearer server-key", auth)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, []Message{{Role: "user", Content: "hello"}}, got.Messages)
}

func TestChatPrefersCallerKeyAndModel(t *testing.T) {
	var got completionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "server-key", "gpt-3.5-turbo", nil)
	msgs := []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "2+2"}}
	res, err := c.Chat(context.Background(), ChatRequest{Messages: msgs, Model: "gpt-4o-mini", APIKey: "user-key"})
	require.NoError(t, err)

	assert.Equal(t, "", res.Reply)
	assert.Equal(t, "Bearer user-key", auth)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, msgs, got.Messages)
}

func TestChatWithoutKey(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", "", nil)
	_, err := c.Chat(context.Background(), ChatRequest{Message: "hello"})
	e := apperr.As(err)
	assert.Equal(t, apperr.Auth, e.Kind)
	assert.Equal(t, http.StatusUnauthorized, e.Status)
}

func TestChatRequiresMessage(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "k", "", nil)
	_, err := c.Chat(context.Background(), ChatRequest{})
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestChatPassesUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", "", nil).Chat(context.Background(), ChatRequest{Message: "x"})
	e := apperr.As(err)
	assert.Equal(t, apperr.Upstream, e.Kind)
	assert.Equal(t, http.StatusTooManyRequests, e.Status)
	assert.Contains(t, e.Message, "rate limited")
}

func TestChatUnreachableUpstream(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "k", "", nil).Chat(context.Background(), ChatRequest{Message: "x"})
	e := apperr.As(err)
	assert.Equal(t, apperr.Upstream, e.Kind)
	assert.Equal(t, http.StatusBadGateway, e.Status)
}
