package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/febriansr/authgate/internal/domain"
	"github.com/febriansr/authgate/internal/rpc"
	"github.com/gin-gonic/gin"
)

// 64 KiB is plenty for any procedure payload in this API.
const maxPayloadBytes = 64 << 10

// sessionResolver is the subset of AuthUsecase the handler needs.
// Defined here (point of use) so tests can inject a fake.
type sessionResolver interface {
	ResolveSession(ctx context.Context, rawToken, cacheToken string) (*domain.Session, bool, error)
	CacheToken(s *domain.Session) (string, error)
}

type RPCHandler struct {
	dispatcher *rpc.Dispatcher
	sessions   sessionResolver
	env        string
	logger     *slog.Logger
}

func NewRPCHandler(dispatcher *rpc.Dispatcher, sessions sessionResolver, env string, logger *slog.Logger) *RPCHandler {
	return &RPCHandler{
		dispatcher: dispatcher,
		sessions:   sessions,
		env:        env,
		logger:     logger.With("component", "rpc_handler"),
	}
}

// POST /api/rpc/:procedure
// Resolves the session, builds the per-request context, and dispatches.
func (h *RPCHandler) Dispatch(c *gin.Context) {
	name := c.Param("procedure")

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, rpc.Error{Code: rpc.CodeValidation, Message: "unreadable request body"})
		return
	}

	ctx := c.Request.Context()
	cookies := newCookieWriter(c, h.env)

	rawToken, _ := c.Cookie(SessionCookie)
	cacheToken, _ := c.Cookie(SessionCacheCookie)

	session, fromCache, err := h.sessions.ResolveSession(ctx, rawToken, cacheToken)
	if err != nil {
		h.logger.ErrorContext(ctx, "resolve session", "error", err)
		c.JSON(http.StatusInternalServerError, rpc.Error{Code: rpc.CodeInternal, Message: "internal server error"})
		return
	}

	// A session freshly confirmed against the store gets a new cache
	// cookie so the next few requests skip the round-trip.
	if session != nil && !fromCache {
		if cacheTok, err := h.sessions.CacheToken(session); err == nil {
			cookies.SetSessionCache(cacheTok)
		}
	}

	rc := rpc.NewRequestContext(session, rawToken, cookies)

	result, rpcErr := h.dispatcher.Call(ctx, name, payload, rc)
	if rpcErr != nil {
		c.JSON(rpcErr.HTTPStatus(), rpcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
