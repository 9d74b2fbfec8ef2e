package server

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader accepts every origin: PhasmaDB's authentication happens inside
// the session handshake, not at the transport layer.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleSession upgrades the HTTP connection and runs one session to
// completion. Each connection is a private point-to-point channel:
// nothing is broadcast to other clients.
func (srv *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.log.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := &Session{
		conn:    conn,
		catalog: srv.catalog,
		store:   srv.store,
		log:     srv.log.Component("session"),
	}
	sess.Run(srv.keys)
}
