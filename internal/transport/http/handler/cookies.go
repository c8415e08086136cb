package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// SessionCookie carries the opaque session token.
	SessionCookie = "authgate_session"
	// SessionCacheCookie carries the short-lived signed session payload
	// that lets resolution skip the store for a few minutes.
	SessionCacheCookie = "authgate_session_data"

	cacheCookieMaxAge = 5 * 60 // seconds, matches the cache token TTL
)

// cookieWriter implements rpc.CookieWriter on top of a gin context.
// HttpOnly and SameSite=Lax always; Secure everywhere except local dev.
type cookieWriter struct {
	c      *gin.Context
	secure bool
}

func newCookieWriter(c *gin.Context, env string) *cookieWriter {
	return &cookieWriter{c: c, secure: env != "local"}
}

func (w *cookieWriter) SetSession(token string, expires time.Time) {
	w.set(SessionCookie, token, int(time.Until(expires).Seconds()))
}

func (w *cookieWriter) SetSessionCache(token string) {
	w.set(SessionCacheCookie, token, cacheCookieMaxAge)
}

func (w *cookieWriter) ClearSession() {
	w.set(SessionCookie, "", -1)
	w.set(SessionCacheCookie, "", -1)
}

func (w *cookieWriter) set(name, value string, maxAge int) {
	w.c.SetSameSite(http.SameSiteLaxMode)
	w.c.SetCookie(name, value, maxAge, "/", "", w.secure, true)
}
