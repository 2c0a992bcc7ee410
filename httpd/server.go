// Package httpd exposes the registry over HTTP: the /api/v1 surface
// consumed by the CLI and web clients, with bearer auth and per-IP /
// per-token rate limiting.
package httpd

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/xrey167/molthub/httpd/ratelimit"
	"github.com/xrey167/molthub/registry"
	"github.com/xrey167/molthub/search"
)

// Server wires the registry service and search engine into a gin
// router.
type Server struct {
	svc     *registry.Service
	engine  *search.Engine
	limiter *ratelimit.Limiter
	router  *gin.Engine
}

func NewServer(
	svc *registry.Service,
	engine *search.Engine,
	production bool,
) *Server {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		svc:     svc,
		engine:  engine,
		limiter: ratelimit.New(),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.authMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")

	read := api.Group("", s.rateLimitMiddleware(false))
	{
		read.GET("/search", s.handleSearch)
		read.GET("/skills", s.handleListSkills)
		read.GET("/skills/:slug", s.handleGetSkill)
		read.GET("/skills/:slug/versions", s.handleListVersions)
		read.GET("/skills/:slug/versions/:version", s.handleGetVersion)
		read.GET("/skills/:slug/file", s.handleGetFile)
		read.GET("/skill/resolve", s.handleResolve)
		read.GET("/download", s.handleDownload)
		read.GET("/whoami", s.handleWhoami)
	}

	write := api.Group("", s.rateLimitMiddleware(true))
	{
		write.POST("/skills", s.handlePublish)
		write.POST("/skills/:slug/undelete", s.handleUndelete)
		write.DELETE("/skills/:slug", s.handleSoftDelete)
		write.POST("/stars/:slug", s.handleStar)
		write.DELETE("/stars/:slug", s.handleUnstar)
		write.POST("/upload-url", s.handleUploadURL)
		write.PUT("/upload/:id", s.handleUpload)
	}

	s.router = router

	return s
}

// Handler returns the underlying http handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the listener fails.
func (s *Server) Run(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("addr", addr).Msg("http server listening")

	return s.router.Run(addr)
}
