package authservice

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

func tokenInfoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("id_token") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error_description": "Invalid Value"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"aud": "client-1", "sub": "g-100", "email": "v@example.com", "name": "Verified",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleVerifierAcceptsValidToken(t *testing.T) {
	srv := tokenInfoServer(t)
	v := NewGoogleVerifier(srv.URL, "client-1", srv.Client())

	id, err := v.Verify(context.Background(), ExternalLogin{Token: "good", ExternalID: "g-100"})
	require.NoError(t, err)
	assert.Equal(t, ExternalIdentity{ExternalID: "g-100", Email: "v@example.com", Name: "Verified"}, id)
}

func TestGoogleVerifierPassesProviderStatus(t *testing.T) {
	srv := tokenInfoServer(t)
	v := NewGoogleVerifier(srv.URL, "", srv.Client())

	_, err := v.Verify(context.Background(), ExternalLogin{Token: "bad"})
	e := apperr.As(err)
	assert.Equal(t, apperr.Upstream, e.Kind)
	assert.Equal(t, http.StatusBadRequest, e.Status)
	assert.Equal(t, "Invalid Value", e.Message)
}

func TestGoogleVerifierChecksAudienceAndSubject(t *testing.T) {
	srv := tokenInfoServer(t)

	_, err := NewGoogleVerifier(srv.URL, "other-client", srv.Client()).
		Verify(context.Background(), ExternalLogin{Token: "good"})
	assert.Equal(t, http.StatusUnauthorized, apperr.As(err).Status)

	_, err = NewGoogleVerifier(srv.URL, "", srv.Client()).
		Verify(context.Background(), ExternalLogin{Token: "good", ExternalID: "g-other"})
	assert.Equal(t, http.StatusUnauthorized, apperr.As(err).Status)
}
