package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/febriansr/authgate/internal/domain"
	"github.com/gin-gonic/gin"
)

// emailVerifier is the subset of AuthUsecase the page handlers need.
type emailVerifier interface {
	VerifyEmail(ctx context.Context, rawToken string) error
}

// PageHandler serves the page surface the edge guard routes over.
type PageHandler struct {
	auth    emailVerifier
	baseURL string
	logger  *slog.Logger
}

func NewPageHandler(auth emailVerifier, baseURL string, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		auth:    auth,
		baseURL: baseURL,
		logger:  logger.With("component", "page_handler"),
	}
}

func (h *PageHandler) Home(c *gin.Context) {
	page(c, "Home", `<a href="/sign-in">Sign in</a> or <a href="/sign-up">create an account</a>.`)
}

func (h *PageHandler) SignIn(c *gin.Context) {
	body := `<h1>Sign in</h1>`
	if c.Query("verified") == "true" {
		body += `<p>Email verified. You can sign in now.</p>`
	}
	if c.Query("error") == "invalid-token" {
		body += `<p>Verification link is invalid or expired.</p>`
	}
	page(c, "Sign in", body)
}

func (h *PageHandler) SignUp(c *gin.Context) {
	page(c, "Sign up", `<h1>Create an account</h1>`)
}

func (h *PageHandler) Dashboard(c *gin.Context) {
	page(c, "Dashboard", `<h1>Dashboard</h1>`)
}

// GET /verify-email?token=<raw>&callbackURL=<url>
// Consumes the emailed token and redirects: to the callback on success,
// to sign-in with an error flag otherwise.
func (h *PageHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")

	if err := h.auth.VerifyEmail(c.Request.Context(), token); err != nil {
		if !errors.Is(err, domain.ErrTokenInvalid) {
			h.logger.ErrorContext(c.Request.Context(), "verify email", "error", err)
		}
		c.Redirect(http.StatusFound, "/sign-in?error=invalid-token")
		return
	}

	c.Redirect(http.StatusFound, h.safeCallback(c.Query("callbackURL")))
}

// safeCallback keeps the post-verification redirect on this origin.
func (h *PageHandler) safeCallback(callback string) string {
	const fallback = "/sign-in?verified=true"
	switch {
	case callback == "":
		return fallback
	case strings.HasPrefix(callback, h.baseURL+"/"), callback == h.baseURL:
		return callback
	case strings.HasPrefix(callback, "/") && !strings.HasPrefix(callback, "//"):
		return callback
	default:
		return fallback
	}
}

func page(c *gin.Context, title, body string) {
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte(`<!DOCTYPE html><html><head><title>`+title+`</title></head><body>`+body+`</body></html>`))
}
