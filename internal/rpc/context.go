package rpc

import (
	"time"

	"github.com/febriansr/authgate/internal/domain"
)

// CookieWriter lets procedures ask the transport to set or clear the
// session cookies without knowing anything about HTTP.
type CookieWriter interface {
	SetSession(token string, expires time.Time)
	SetSessionCache(token string)
	ClearSession()
}

// RequestContext is built fresh for every inbound call and discarded
// with it. Session is nil when the request carries no valid session;
// protected procedures never observe that state.
type RequestContext struct {
	Session *domain.Session

	// SessionToken is the raw cookie value behind Session, needed by
	// sign-out to invalidate the stored row.
	SessionToken string

	Cookies CookieWriter
}

type noopCookies struct{}

func (noopCookies) SetSession(string, time.Time) {}
func (noopCookies) SetSessionCache(string)       {}
func (noopCookies) ClearSession()                {}

// NewRequestContext wires a context; a nil CookieWriter is replaced with
// a no-op so procedures never have to nil-check it.
func NewRequestContext(session *domain.Session, sessionToken string, cookies CookieWriter) *RequestContext {
	if cookies == nil {
		cookies = noopCookies{}
	}
	return &RequestContext{
		Session:      session,
		SessionToken: sessionToken,
		Cookies:      cookies,
	}
}
