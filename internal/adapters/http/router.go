package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/account"
	"github.com/dkeye/tileworld/internal/adapters/signal"
	"github.com/dkeye/tileworld/internal/app/orch"
	"github.com/dkeye/tileworld/internal/config"
	"github.com/dkeye/tileworld/internal/core"
	api "github.com/dkeye/tileworld/internal/transport/http"
	"github.com/dkeye/tileworld/internal/world"
)

const requestIDHeader = "X-Request-ID"

type Deps struct {
	Orch     *orch.Orchestrator
	Accounts *account.Service
	Maps     *world.Service
	Tokens   core.TokenVerifier
	Users    core.UserStore
}

// RequestIDMiddleware tags each request with an id, reusing the caller's if sent.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: int(cfg.Auth.TokenTTL.Seconds()), HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(api.SessionName, store))
	r.Use(RequestIDMiddleware())

	ctl := signal.NewSignalWSController(deps.Orch, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.Game.SendBuffer,
	})
	h := &api.Handlers{
		Accounts: deps.Accounts,
		Maps:     deps.Maps,
		Metrics:  deps.Orch.Metrics,
		Registry: deps.Orch.Registry,
	}
	authn := &api.Authenticator{Tokens: deps.Tokens, Users: deps.Users}

	r.GET("/healthz", h.Health)
	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	g := r.Group("/api")

	authGroup := g.Group("/auth")
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/logout", h.Logout)
	authGroup.GET("/me", authn.Required(), h.Me)

	maps := g.Group("/maps")
	maps.GET("", authn.Optional(), h.ListMaps)
	maps.GET("/default", h.DefaultMap)
	maps.GET("/:id", authn.Optional(), h.GetMap)
	dev := maps.Group("", authn.Required(), authn.Developer())
	dev.POST("", h.CreateMap)
	dev.PUT("/:id", h.UpdateMap)
	dev.DELETE("/:id", h.DeleteMap)
	dev.PATCH("/:id/publish", h.TogglePublish)
	dev.PATCH("/:id/set-default", h.SetDefaultMap)

	g.GET("/metrics", h.MetricsSnapshot)

	g.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("request", c.GetString("request_id")).Msg("ws endpoint hit")
		ctl.HandleSignal(ctx, c.Writer, c.Request, api.TokenFromRequest(c))
	})

	return r
}
