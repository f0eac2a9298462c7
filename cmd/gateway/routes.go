package main

import (
	"github.com/gin-gonic/gin"

	"github.com/trinityhades/luna-gateway/internal/middleware"
)

func setupRouter(api *API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(api.logger))

	rateLimiter := middleware.NewRateLimiter(api.cfg.RateLimit.RequestsPerSecond, api.cfg.RateLimit.Burst)
	router.Use(middleware.RateLimit(rateLimiter))

	// Health check
	router.GET("/health", api.healthCheck)

	// Token issuance
	router.POST("/auth/token", api.createToken)

	// Session API
	v1 := router.Group("/api/v1")
	if api.cfg.Auth.JWTSecret != "" {
		v1.Use(middleware.JWTAuth())
	}
	{
		v1.POST("/sources/resolve", api.resolveSources)

		v1.POST("/sessions", api.createSession)
		v1.GET("/sessions/:id", api.getSession)
		v1.DELETE("/sessions/:id", api.deleteSession)

		// Playback synchronization
		v1.POST("/sessions/:id/playback", api.reportPlayback)
		v1.GET("/sessions/:id/cue", api.getActiveCue)
		v1.POST("/sessions/:id/offset", api.adjustOffset)
		v1.DELETE("/sessions/:id/offset", api.resetOffset)
		v1.POST("/sessions/:id/subtitles", api.setSubtitlesEnabled)
		v1.POST("/sessions/:id/tracks/:index", api.selectTrack)
	}

	// Resource proxy used by the player; the player cannot carry a JWT, the
	// session ID in the path is the capability
	proxy := router.Group("/proxy/:id")
	{
		proxy.GET("/manifest.m3u8", api.proxyManifest)
		proxy.GET("/load", api.proxyLoad)
	}

	return router
}
