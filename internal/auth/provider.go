package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/config"
	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailTaken         = errors.New("user already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// CredentialError reports malformed sign-up input.
type CredentialError struct {
	Field string
	Rule  string
}

func (e *CredentialError) Error() string {
	switch e.Field {
	case "Email":
		return "unable to validate email address: invalid format"
	case "Password":
		return "password should be at least 6 characters"
	}
	return "invalid " + strings.ToLower(e.Field)
}

type credentials struct {
	Email    string `validate:"required,email,max=190"`
	Password string `validate:"required,min=6,max=72"`
}

var validate = validator.New()

// Provider is the email/password auth provider. It issues a short-lived JWT
// access token and a rotating opaque refresh token per sign-in.
type Provider struct {
	store      backend.Store
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewProvider(store backend.Store, cfg config.Config) *Provider {
	return &Provider{
		store:      store,
		secret:     cfg.JWTSecret,
		accessTTL:  time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		refreshTTL: time.Duration(cfg.RefreshTokenTTLDays) * 24 * time.Hour,
		now:        time.Now,
	}
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	email = strings.TrimSpace(email)
	acc, err := p.store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !VerifyPassword(acc.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return p.issue(ctx, acc)
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (*backend.Session, error) {
	in := credentials{Email: strings.TrimSpace(email), Password: password}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &CredentialError{Field: verrs[0].Field(), Rule: verrs[0].Tag()}
		}
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	acc := &models.Account{Email: in.Email, PasswordHash: hash}
	if err := p.store.Accounts().Create(ctx, acc); err != nil {
		if errors.Is(err, backend.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return p.issue(ctx, acc)
}

// SignOut revokes the session's refresh token. A nil session is a no-op.
func (p *Provider) SignOut(ctx context.Context, s *backend.Session) error {
	if s == nil || s.RefreshToken == "" {
		return nil
	}
	return p.store.Tokens().Revoke(ctx, s.RefreshToken, p.now())
}

func (p *Provider) Restore(ctx context.Context, accessToken string) (*backend.Session, error) {
	claims, err := ParseAccessToken(accessToken, p.secret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	acc, err := p.store.Accounts().Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	sess := &backend.Session{UserID: acc.ID, Email: acc.Email, AccessToken: accessToken}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

// Refresh rotates the refresh token: the old one is revoked and a new pair issued.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*backend.Session, error) {
	now := p.now()
	rec, err := p.store.Tokens().Valid(ctx, refreshToken, now)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if err := p.store.Tokens().Revoke(ctx, refreshToken, now); err != nil {
		return nil, err
	}
	acc, err := p.store.Accounts().Get(ctx, rec.AccountID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return p.issue(ctx, acc)
}

func (p *Provider) issue(ctx context.Context, acc *models.Account) (*backend.Session, error) {
	now := p.now()
	at, exp, err := generateAccessToken(acc.ID, p.secret, now, p.accessTTL)
	if err != nil {
		return nil, err
	}
	rt, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	rec := &models.RefreshToken{AccountID: acc.ID, Token: rt, ExpiresAt: now.Add(p.refreshTTL)}
	if err := p.store.Tokens().Save(ctx, rec); err != nil {
		return nil, err
	}
	return &backend.Session{
		UserID:       acc.ID,
		Email:        acc.Email,
		AccessToken:  at,
		RefreshToken: rt,
		ExpiresAt:    exp,
	}, nil
}

// GetSession returns the session placed on the context by AuthMiddleware.
func GetSession(c *gin.Context) *backend.Session {
	if v, ok := c.Get("session"); ok {
		if s, ok2 := v.(*backend.Session); ok2 {
			return s
		}
	}
	return nil
}
