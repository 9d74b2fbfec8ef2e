// Package server hosts the session endpoint: per-connection
// challenge-response authentication followed by a command-dispatch loop
// over the catalog and row store. A connection carries one persistent
// session, not one-shot requests.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/phasma-db/phasmadb/internal/catalog"
	"github.com/phasma-db/phasmadb/internal/store"
	"github.com/phasma-db/phasmadb/pkg/logging"
)

// Server owns the catalog, the row store, and the registered-user key
// store, and serves sessions at a single websocket endpoint.
type Server struct {
	catalog *catalog.Catalog
	store   *store.Store
	keys    *KeyStore
	log     *logging.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New builds a Server over an already-opened store and catalog.
func New(st *store.Store, cat *catalog.Catalog, keys *KeyStore, log *logging.Logger) *Server {
	return &Server{
		catalog: cat,
		store:   st,
		keys:    keys,
		log:     log.Component("server"),
	}
}

// Start begins listening at addr and serving sessions at GET /phasma-db.
func (srv *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	srv.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("GET /phasma-db", srv.handleSession)

	srv.httpServer = &http.Server{
		Handler: mux,
		// Sessions are long-lived; no read/write deadline is imposed
		// and the server sends no websocket pings, so a dead peer is
		// noticed only when the socket itself reports an error.
	}

	go func() {
		if err := srv.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			srv.log.Error("server error", "error", err)
		}
	}()

	srv.log.Info("server started", "addr", addr, "endpoint", "ws://"+addr+"/phasma-db")
	return nil
}

// Addr returns the address the server is listening on, once Start has
// succeeded. Useful for tests and callers that bind to port 0.
func (srv *Server) Addr() string {
	if srv.listener == nil {
		return ""
	}
	return srv.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (srv *Server) Stop() error {
	if srv.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.httpServer.Shutdown(ctx)
}
