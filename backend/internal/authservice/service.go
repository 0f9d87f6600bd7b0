package authservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"codeweave/backend/internal/apperr"
	"codeweave/backend/internal/user"
)

const (
	IdentifierEmail = "email"
	IdentifierPhone = "phone"
)

type Session struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

type RegisterInput struct {
	Identifier string
	Password   string
	Username   string
	Type       string
}

// ExternalLogin is what the client posts after signing in with Google.
type ExternalLogin struct {
	Token      string
	ExternalID string
	Email      string
	Name       string
}

type ExternalIdentity struct {
	ExternalID string
	Email      string
	Name       string
}

// ProviderVerifier checks a provider token and returns the identity it vouches for.
type ProviderVerifier interface {
	Verify(ctx context.Context, login ExternalLogin) (ExternalIdentity, error)
}

type Service struct {
	users    user.Repository
	tokens   *TokenIssuer
	hasher   PasswordHasher
	verifier ProviderVerifier
	now      func() time.Time
}

type Option func(*Service)

func WithVerifier(v ProviderVerifier) Option {
	return func(s *Service) { s.verifier = v }
}

func WithHasher(h PasswordHasher) Option {
	return func(s *Service) { s.hasher = h }
}

func NewService(users user.Repository, tokens *TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:  users,
		tokens: tokens,
		hasher: NewPasswordHasher(PasswordCost),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Tokens() *TokenIssuer { return s.tokens }

var errInvalidCredentials = apperr.NewAuth(http.StatusBadRequest, "INVALID_CREDENTIALS", "Invalid credentials")

func storeError(err error) error {
	if errors.Is(err, user.ErrUnavailable) {
		return apperr.NewStoreUnavailable(err)
	}
	return apperr.NewInternal(err)
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	in.Identifier = strings.TrimSpace(in.Identifier)
	in.Username = strings.TrimSpace(in.Username)
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	if in.Identifier == "" || in.Password == "" || in.Username == "" {
		return nil, apperr.NewValidation("VALIDATION", "All fields are required")
	}
	// older clients omit type and register with an email
	if in.Type == "" {
		in.Type = IdentifierEmail
	}
	if in.Type != IdentifierEmail && in.Type != IdentifierPhone {
		return nil, apperr.NewValidation("VALIDATION", "Type must be email or phone")
	}

	_, err := s.users.FindByIdentifier(ctx, in.Identifier)
	if err == nil {
		return nil, apperr.NewConflict(http.StatusBadRequest, "USER_EXISTS", "User already exists")
	}
	if !errors.Is(err, user.ErrUserNotFound) {
		return nil, storeError(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.NewInternal(fmt.Errorf("hash password: %w", err))
	}
	u := &user.User{Username: in.Username, PasswordHash: hash, CreatedAt: s.now().UTC()}
	if in.Type == IdentifierEmail {
		u.Email = in.Identifier
	} else {
		u.Phone = in.Identifier
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrUserExists) {
			return nil, apperr.NewConflict(http.StatusBadRequest, "USER_EXISTS", "User already exists")
		}
		return nil, storeError(err)
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, identifier, password string) (*Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperr.NewValidation("VALIDATION", "Identifier and password are required")
	}

	u, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, storeError(err)
	}
	if !u.HasPassword() {
		return nil, apperr.NewAuth(http.StatusBadRequest, "GOOGLE_ACCOUNT", "Please login with Google")
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, errInvalidCredentials
	}
	return s.session(u)
}

// LoginWithExternalProvider resolves a Google identity to a local user: by google id first,
// then by linking an account with the same email, else by creating one.
func (s *Service) LoginWithExternalProvider(ctx context.Context, in ExternalLogin) (*Session, error) {
	id := ExternalIdentity{
		ExternalID: strings.TrimSpace(in.ExternalID),
		Email:      strings.TrimSpace(in.Email),
		Name:       strings.TrimSpace(in.Name),
	}
	if s.verifier != nil {
		verified, err := s.verifier.Verify(ctx, in)
		if err != nil {
			return nil, err
		}
		id = mergeIdentity(id, verified)
	}
	if id.ExternalID == "" || id.Email == "" {
		return nil, apperr.NewValidation("VALIDATION", "Missing googleId or email in payload")
	}

	u, err := s.users.FindByGoogleID(ctx, id.ExternalID)
	if err == nil {
		return s.session(u)
	}
	if !errors.Is(err, user.ErrUserNotFound) {
		return nil, storeError(err)
	}

	u, err = s.users.FindByEmail(ctx, id.Email)
	switch {
	case err == nil:
		if err := s.users.LinkGoogleID(ctx, u.ID, id.ExternalID); err != nil {
			return nil, storeError(err)
		}
		u.GoogleID = id.ExternalID
		return s.session(u)
	case !errors.Is(err, user.ErrUserNotFound):
		return nil, storeError(err)
	}

	u = &user.User{
		Username:  usernameFor(id),
		Email:     id.Email,
		GoogleID:  id.ExternalID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if !errors.Is(err, user.ErrUserExists) {
			return nil, storeError(err)
		}
		// lost a race with a concurrent first login of the same identity
		existing, ferr := s.users.FindByGoogleID(ctx, id.ExternalID)
		if ferr != nil {
			return nil, storeError(ferr)
		}
		u = existing
	}
	return s.session(u)
}

func mergeIdentity(claimed, verified ExternalIdentity) ExternalIdentity {
	if verified.ExternalID != "" {
		claimed.ExternalID = verified.ExternalID
	}
	if verified.Email != "" {
		claimed.Email = verified.Email
	}
	if claimed.Name == "" {
		claimed.Name = verified.Name
	}
	return claimed
}

func usernameFor(id ExternalIdentity) string {
	if id.Name != "" {
		return id.Name
	}
	local, _, _ := strings.Cut(id.Email, "@")
	return local
}

func (s *Service) session(u *user.User) (*Session, error) {
	token, _, err := s.tokens.Sign(u.ID, u.Username)
	if err != nil {
		return nil, apperr.NewInternal(fmt.Errorf("sign token: %w", err))
	}
	return &Session{Token: token, Username: u.Username, UserID: u.ID}, nil
}

// Authenticate turns a bearer token into its claims.
func (s *Service) Authenticate(token string) (*Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return nil, apperr.NewAuth(http.StatusUnauthorized, "TOKEN_EXPIRED", "Token expired, please login again")
		}
		return nil, apperr.NewAuth(http.StatusUnauthorized, "UNAUTHENTICATED", "Invalid token")
	}
	return claims, nil
}
