// Package httpserver builds the process HTTP server. Roadlog exposes only
// ambient endpoints (health, metrics); the record REST API lives in the
// external transport.
package httpserver

import (
	"net/http"
	"time"
)

// New builds a server for the ambient endpoints. The handlers are tiny, so
// the timeouts mostly bound stalled clients.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       time.Minute,
	}
}
