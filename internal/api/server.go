// Package api exposes the control plane over HTTP plus the websocket upgrade
// endpoint that hands connections to the gateway.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/nguyentrongduc2005/chat-high-load/internal/chat"
	"github.com/nguyentrongduc2005/chat-high-load/internal/config"
	"github.com/nguyentrongduc2005/chat-high-load/internal/gateway"
)

type Server struct {
	log            *log.Logger
	svc            *chat.Service
	gw             *gateway.Gateway
	srv            *http.Server
	allowedOrigins []string
}

// NewServer builds the HTTP server on the given mux. The mux is supplied by
// the caller so other components can register handlers on it too.
func NewServer(logger *log.Logger, svc *chat.Service, gw *gateway.Gateway, cfg *config.Config, mux *http.ServeMux) *Server {
	s := &Server{
		log:            logger,
		svc:            svc,
		gw:             gw,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /api/rooms", s.createRoom)
	mux.HandleFunc("GET /api/rooms", s.listRooms)
	mux.HandleFunc("POST /api/rooms/{id}/join", s.joinRoom)
	mux.HandleFunc("POST /api/rooms/{id}/leave", s.leaveRoom)
	mux.HandleFunc("POST /api/rooms/{id}/messages", s.sendMessage)
	mux.HandleFunc("GET /api/rooms/{id}/messages", s.getMessages)
	mux.HandleFunc("GET /api/rooms/{id}/users", s.listUsersInRoom)
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *Server) Start() error {
	s.log.Printf("Starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Println("Shutting down server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.log.Println("Server shutdown complete")
	return nil
}

func (s *Server) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}
