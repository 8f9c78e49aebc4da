package server

import (
	"net/http"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/auth"
	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/config"
	"github.com/Harsh4r0ra/chat-cli/internal/metrics"
	"github.com/Harsh4r0ra/chat-cli/internal/mw"
	"github.com/Harsh4r0ra/chat-cli/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter wires middleware, the REST API and the terminal websocket.
func SetupRouter(cfg config.Config, provider *auth.Provider, client backend.Client, hub *ws.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.CORSAllowedOrigins))
	// per IP and route
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "terminals": hub.Online()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", ws.Serve(hub, client, cfg))

	h := NewHandler(provider, client.Store)
	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.Refresh)
	api.POST("/auth/logout", auth.AuthMiddleware(provider), h.Logout)

	admin := api.Group("/admin", auth.AuthMiddleware(provider), h.RequireAdmin)
	admin.GET("/stats", h.Stats)
	admin.GET("/users", h.ListUsers)
	for _, action := range []string{"block", "unblock", "timeout", "untimeout"} {
		admin.POST("/users/:id/"+action, h.Moderate(action))
	}
	admin.POST("/admins", h.MakeAdmin)
	admin.GET("/rooms", h.ListRooms)
	admin.POST("/rooms", h.CreateRoom)
	admin.DELETE("/rooms/:name", h.DeleteRoom)
	admin.POST("/rooms/:name/grants", h.GrantAccess)
	admin.DELETE("/rooms/:name/grants/:username", h.RevokeAccess)

	return r
}
