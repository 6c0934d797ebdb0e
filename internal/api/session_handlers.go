package api

import (
	"context"
	"net/http"

	"github.com/example/storefront-cart/internal/api/middleware"
	"github.com/example/storefront-cart/internal/auth"
	"go.uber.org/zap"
)

type Authenticator interface {
	Anonymous(ctx context.Context) (auth.Session, error)
	Register(ctx context.Context, email, password string, current *auth.Claims) (auth.Session, error)
	Login(ctx context.Context, email, password string, current *auth.Claims) (auth.Session, error)
	Verify(token string) (*auth.Claims, error)
}

// SessionHandlers issue session tokens. Every client gets a session before
// its first cart request; logging in keeps the cart of that session.
type SessionHandlers struct {
	auth         Authenticator
	secureCookie bool
	logger       *zap.Logger
}

func NewSessionHandlers(authenticator Authenticator, secureCookie bool, logger *zap.Logger) *SessionHandlers {
	return &SessionHandlers{auth: authenticator, secureCookie: secureCookie, logger: logger.Named("session")}
}

func (h *SessionHandlers) Create(w http.ResponseWriter, r *http.Request) {
	if claims, ok := middleware.SessionFromContext(r.Context()); ok {
		resp := SessionResponse{
			SessionID: claims.SessionID,
			UserID:    claims.UserID,
			Email:     claims.Email,
			Token:     middleware.ExtractToken(r),
		}
		if claims.ExpiresAt != nil {
			resp.ExpiresAt = claims.ExpiresAt.Time
		}
		respondJSON(w, http.StatusOK, resp)
		return
	}

	session, err := h.auth.Anonymous(r.Context())
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	h.setSessionCookie(w, session)
	respondJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (h *SessionHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	current, _ := middleware.SessionFromContext(r.Context())
	session, err := h.auth.Register(r.Context(), req.Email, req.Password, current)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	h.setSessionCookie(w, session)
	respondJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (h *SessionHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	current, _ := middleware.SessionFromContext(r.Context())
	session, err := h.auth.Login(r.Context(), req.Email, req.Password, current)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	h.setSessionCookie(w, session)
	respondJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *SessionHandlers) setSessionCookie(w http.ResponseWriter, s auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func newSessionResponse(s auth.Session) SessionResponse {
	return SessionResponse{
		SessionID: s.ID,
		UserID:    s.UserID,
		Email:     s.Email,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}
