// Package httpapi exposes the chat service over HTTP using gin: a
// non-streaming chat exchange, a line-framed streaming exchange, chat
// history accessors and title generation, behind bearer-token auth.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/northwind-labs/atlas/internal/core/ports/driving"
	"github.com/northwind-labs/atlas/internal/logger"
)

// Server is the HTTP API server.
type Server struct {
	chat   driving.ChatService
	auth   AuthConfig
	engine *gin.Engine
}

// NewServer creates the HTTP API server around the chat service.
func NewServer(chat driving.ChatService, auth AuthConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		chat:   chat,
		auth:   auth,
		engine: engine,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/api/health", s.handleHealth)

	api := s.engine.Group("/api", authMiddleware(s.auth))
	api.POST("/chat", s.handleChat)
	api.POST("/chat/stream", s.handleChatStream)
	api.GET("/chats", s.handleListChats)
	api.GET("/chats/:id/messages", s.handleGetMessages)
	api.POST("/chats/:id/title", s.handleGenerateTitle)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	logger.Info("HTTP API listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
