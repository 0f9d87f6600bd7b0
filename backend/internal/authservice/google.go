package authservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"codeweave/backend/internal/apperr"
)

// GoogleVerifier checks ID tokens against Google's tokeninfo endpoint.
type GoogleVerifier struct {
	client       *http.Client
	tokenInfoURL string
	clientID     string
}

func NewGoogleVerifier(tokenInfoURL, clientID string, client *http.Client) *GoogleVerifier {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &GoogleVerifier{client: client, tokenInfoURL: tokenInfoURL, clientID: clientID}
}

type tokenInfo struct {
	Aud              string `json:"aud"`
	Sub              string `json:"sub"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	ErrorDescription string `json:"error_description"`
}

func (g *GoogleVerifier) Verify(ctx context.Context, login ExternalLogin) (ExternalIdentity, error) {
	if login.Token == "" {
		return ExternalIdentity{}, apperr.NewValidation("VALIDATION", "Missing provider token")
	}

	u, err := url.Parse(g.tokenInfoURL)
	if err != nil {
		return ExternalIdentity{}, apperr.NewInternal(fmt.Errorf("token info url: %w", err))
	}
	q := u.Query()
	q.Set("id_token", login.Token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ExternalIdentity{}, apperr.NewInternal(err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return ExternalIdentity{}, apperr.NewUpstream(http.StatusBadGateway, "Google token verification failed", err)
	}
	defer resp.Body.Close()

	var info tokenInfo
	_ = json.NewDecoder(resp.Body).Decode(&info)
	if resp.StatusCode != http.StatusOK {
		msg := info.ErrorDescription
		if msg == "" {
			msg = "Google token verification failed"
		}
		return ExternalIdentity{}, apperr.NewUpstream(resp.StatusCode, msg, nil)
	}
	if g.clientID != "" && info.Aud != g.clientID {
		return ExternalIdentity{}, apperr.NewAuth(http.StatusUnauthorized, "INVALID_PROVIDER_TOKEN", "Token was issued for another client")
	}
	if login.ExternalID != "" && info.Sub != login.ExternalID {
		return ExternalIdentity{}, apperr.NewAuth(http.StatusUnauthorized, "INVALID_PROVIDER_TOKEN", "Token does not match googleId")
	}
	return ExternalIdentity{ExternalID: info.Sub, Email: info.Email, Name: info.Name}, nil
}
