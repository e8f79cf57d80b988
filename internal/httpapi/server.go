// Package httpapi serves a store over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gehhilfe/orthrus"
)

type Server struct {
	router *gin.Engine
	store  *orthrus.Store
	logger *slog.Logger

	jwtSecret string
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithJWTSecret requires an HS256 bearer token signed with secret on every
// write route.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		s.jwtSecret = secret
	}
}

func New(store *orthrus.Store, opts ...Option) *Server {
	s := &Server{
		router: gin.New(),
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(Recovery(s.logger))
	s.router.Use(RequestLogger(s.logger))
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "stream": s.store.Stream()})
	})

	api := s.router.Group("/api/v1")
	{
		api.GET("/events", s.handleGetAllEvents())
		api.GET("/types/:aggregate/events", s.handleGetEventsByType())

		aggregates := api.Group("/aggregates/:id")
		{
			aggregates.GET("/events", s.handleGetEventsByID())
			aggregates.GET("/last", s.handleGetLastEvent())

			write := aggregates.Group("")
			if s.jwtSecret != "" {
				write.Use(JWTAuth(s.jwtSecret))
			}
			write.POST("/events", s.handleAppendEvents())
		}
	}
}
