package httptransport

import (
	"log/slog"

	"github.com/febriansr/authgate/internal/transport/http/handler"
	"github.com/febriansr/authgate/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, rpcHandler *handler.RPCHandler, pages *handler.PageHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	// Typed procedure API
	r.POST("/api/rpc/:procedure", rpcHandler.Dispatch)

	// Page routes behind the edge guard. The guard looks at cookie
	// existence only; full validation happens inside the RPC layer.
	requireCookie := middleware.RequireSessionCookie(handler.SessionCookie, "/sign-in")
	bounceAuthed := middleware.RedirectAuthenticated(handler.SessionCookie, "/dashboard")

	r.GET("/", pages.Home)
	r.GET("/sign-in", bounceAuthed, pages.SignIn)
	r.GET("/sign-up", bounceAuthed, pages.SignUp)
	r.GET("/dashboard", requireCookie, pages.Dashboard)
	r.GET("/verify-email", pages.VerifyEmail)

	return r
}
