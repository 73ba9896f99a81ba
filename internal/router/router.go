// Package router registers the HTTP routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/armyboard/connection-service/internal/handler"
	"github.com/armyboard/connection-service/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only the health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterConnections registers the connection procedures under /v1.
// Every route requires a valid bearer token; limit, when non-nil, runs
// after authentication so keys can include the user.
func RegisterConnections(e *echo.Echo, h *handler.ConnectionHandler, jwtSecret string, limit echo.MiddlewareFunc) *echo.Group {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	if limit != nil {
		g.Use(limit)
	}

	rpc := g.Group("/rpc")
	rpc.POST("/connect", h.Connect)
	rpc.POST("/seller_respond_connection", h.SellerRespond)
	rpc.POST("/submit_bonding_answers", h.SubmitBondingAnswers)
	rpc.POST("/set_comfort_decision", h.SetComfortDecision)
	rpc.POST("/set_social_share_decision", h.SetSocialShareDecision)
	rpc.POST("/accept_agreement", h.AcceptAgreement)
	rpc.POST("/end_connection", h.EndConnection)
	rpc.POST("/undo_connection", h.UndoConnection)
	rpc.POST("/rate_connection", h.RateConnection)
	rpc.POST("/get_connection_preview", h.GetPreview)

	g.GET("/connections", h.ListMine)
	g.GET("/connections/:id", h.Get)
	return g
}

// RegisterAdmin registers operational routes on the authenticated /v1
// group, restricted to the ADMIN role.
func RegisterAdmin(v1 *echo.Group, a *handler.AdminHandler) {
	admin := v1.Group("/admin", middleware.RequireRole("ADMIN"))
	admin.POST("/sweep", a.Sweep)
}
