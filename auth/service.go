package auth

import (
	"net/url"

	"github.com/undercover/server/apperr"
	"github.com/undercover/server/models"
	"github.com/undercover/server/persistence"
)

// Service is the full session boundary: OpenID 2.0 login against the provider,
// session token issuance, and session lookup/teardown.
type Service struct {
	openid *OpenIDClient
	tokens *TokenService
	db     persistence.Database
}

func NewService(openid *OpenIDClient, tokens *TokenService, db persistence.Database) *Service {
	return &Service{openid: openid, tokens: tokens, db: db}
}

// LoginURL returns the URL to redirect the browser to for login. callbackURL
// is the caller's own post-login redirect target, round-tripped through the
// provider so handleCallback knows where to send the browser back to.
func (s *Service) LoginURL(callbackURL string) (string, error) {
	return s.openid.LoginURL(callbackURL)
}

// CompleteLogin verifies the provider's callback, fetches the user's
// profile, mints a session token, and persists a SessionRecord. The
// returned sessionID is the opaque value handed to the browser; it is the
// signed JWT itself, so ValidateToken can verify it without a server-side
// lookup.
func (s *Service) CompleteLogin(params url.Values) (sessionID string, user *models.User, err error) {
	userID, err := s.openid.VerifyCallback(params)
	if err != nil {
		return "", nil, err
	}

	username, nickname, avatar, err := s.openid.FetchUserInfo(userID)
	if err != nil {
		return "", nil, err
	}

	signed, expiresAt, err := s.tokens.Issue(userID, username, nickname, avatar)
	if err != nil {
		return "", nil, apperr.WithMessage(apperr.AuthError, "failed to issue session token")
	}

	rec := &models.SessionRecord{
		SessionID: signed,
		UserID:    userID,
		Username:  username,
		Nickname:  nickname,
		Avatar:    avatar,
		ExpiresAt: expiresAt,
	}
	if s.db != nil {
		_ = s.db.SaveSession(rec)
	}

	return signed, &models.User{ID: userID, Username: username, Nickname: nickname, Avatar: avatar}, nil
}

// ValidateToken verifies a session token presented on a WebSocket handshake
// or an authenticated HTTP request and returns the identity it carries.
func (s *Service) ValidateToken(token string) (*models.User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		if err == ErrTokenExpired {
			return nil, apperr.WithMessage(apperr.AuthRequired, "session expired")
		}
		return nil, apperr.WithMessage(apperr.AuthError, "invalid session token")
	}
	return &models.User{ID: claims.UserID, Username: claims.Username, Nickname: claims.Nickname, Avatar: claims.Avatar}, nil
}

// Logout discards the persisted session record, if any; the JWT itself
// remains valid until it expires, matching stateless-token semantics.
func (s *Service) Logout(sessionID string) {
	if s.db != nil && sessionID != "" {
		_ = s.db.DeleteSession(sessionID)
	}
}
