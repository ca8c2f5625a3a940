package webserver

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stake-plus/govledger/src/ledger/config"
)

func attachRoutes(r *gin.Engine, cfg config.Config, d Deps) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	secret := []byte(cfg.JWTSecret)
	limiter := NewRateLimiter(cfg.RateLimit, cfg.RateWindow())

	authH := NewAuth(d.Nonces, secret, d.Logger.Named("auth"))
	propH := NewProposals(d.Ledger, cfg.IsAdmin, d.Logger)
	profH := NewProfiles(d.Ledger)
	adminH := NewAdmin(d.Ledger, d.Logger.Named("admin"))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "dirty": d.Ledger.Dirty()})
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/challenge", RateLimitMiddleware(limiter), authH.Challenge)
		v1.POST("/auth/verify", RateLimitMiddleware(limiter), authH.Verify)

		v1.GET("/proposals", propH.List)
		v1.GET("/proposals/:id", propH.Get)
		v1.GET("/results", propH.Results)
		v1.GET("/stats", propH.Stats)
		v1.GET("/users/:user/proposals", propH.ByUser)
		v1.GET("/profiles", profH.List)
		v1.GET("/profiles/:id", profH.Get)
	}

	secured := v1.Group("", JWTMiddleware(secret), RateLimitMiddleware(limiter))
	{
		secured.POST("/proposals", propH.Create)
		secured.DELETE("/proposals/:id", propH.Delete)
		secured.POST("/proposals/:id/votes", propH.Vote)
		secured.GET("/proposals/:id/votes/me", propH.MyVote)
		secured.POST("/profiles", profH.Create)
	}

	admin := v1.Group("/admin", JWTMiddleware(secret), AdminMiddleware(cfg.IsAdmin))
	{
		admin.POST("/checkpoint", adminH.Checkpoint)
		admin.GET("/snapshot", adminH.Export)
		admin.POST("/snapshot", adminH.Import)
	}
}
