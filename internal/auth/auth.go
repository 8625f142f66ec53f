// Package auth signs the platform's login challenge with an identity and
// exchanges the signature for a bearer token.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	xerrors "RewardPilot/internal/errors"
	"RewardPilot/internal/identity"
	"RewardPilot/internal/platform"
	"RewardPilot/pkg/logger"
)

// LoginAPI is the login endpoint.
type LoginAPI interface {
	Login(ctx context.Context, req platform.LoginRequest, rt http.RoundTripper) (platform.LoginData, error)
}

// Session is an authenticated identity. The token is only valid for the
// identity that produced it.
type Session struct {
	Identity    *identity.Identity
	AccessToken string
}

// Config configures an Authenticator.
type Config struct {
	// Message is the challenge text, signed as UTF-8 bytes.
	Message  string
	Referral ReferralSource
}

// Authenticator performs challenge logins. It holds no per-identity state and
// is safe for concurrent use.
type Authenticator struct {
	api      LoginAPI
	message  string
	referral ReferralSource
	logger   *slog.Logger
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithLogger overrides the authenticator logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAuthenticator validates cfg.
func NewAuthenticator(api LoginAPI, cfg Config, opts ...Option) (*Authenticator, error) {
	if api == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "login api is required")
	}
	if strings.TrimSpace(cfg.Message) == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "login challenge message is required")
	}
	referral := cfg.Referral
	if referral == nil {
		referral = StaticReferral("")
	}
	a := &Authenticator{
		api:      api,
		message:  cfg.Message,
		referral: referral,
		logger:   logger.Named("auth"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Message returns the challenge text.
func (a *Authenticator) Message() string {
	return a.message
}

// Login signs the challenge with id and posts it through rt. Network failures
// keep their NETWORK_ERROR code; a response without an access token is an
// AUTH_ERROR and is not retried.
func (a *Authenticator) Login(ctx context.Context, id *identity.Identity, rt http.RoundTripper) (*Session, error) {
	if id == nil {
		return nil, xerrors.New(xerrors.CodeValidation, "identity is required")
	}
	signature, err := id.Sign([]byte(a.message))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAuth, err, "sign login challenge")
	}
	referral, err := a.referral.ReferralCode()
	if err != nil {
		a.logger.Warn("referral code unavailable, using fallback", slog.Any("error", err), slog.String("fallback", referral))
	}

	data, err := a.api.Login(ctx, platform.LoginRequest{
		Message:       a.message,
		WalletAddress: id.PublicKey,
		Signature:     signature,
		ReferralCode:  referral,
	}, rt)
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(data.AccessToken)
	if token == "" {
		return nil, xerrors.New(xerrors.CodeAuth, "login response has no access token",
			xerrors.WithMetadata("wallet", id.PublicKey))
	}
	a.logger.Debug("login succeeded", slog.String("wallet", id.PublicKey))
	return &Session{Identity: id, AccessToken: token}, nil
}

// VerifyChallenge reports whether signature is publicKey's signature of the
// challenge under scheme.
func (a *Authenticator) VerifyChallenge(scheme identity.Scheme, publicKey, signature string) bool {
	if scheme == nil {
		return false
	}
	return scheme.Verify(publicKey, []byte(a.message), signature)
}
