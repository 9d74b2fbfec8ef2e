package server

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/phasma-db/phasmadb/internal/catalog"
	"github.com/phasma-db/phasmadb/internal/store"
	"github.com/phasma-db/phasmadb/internal/wire"
	"github.com/phasma-db/phasmadb/pkg/logging"
)

// Session owns one client connection end to end: the challenge-response
// handshake, then a strictly sequential one-command-in-flight loop. It
// never runs two commands concurrently and never reorders responses.
//
// Its states are AwaitUser, AwaitResponse, AuthedIdle, Dispatching, and
// Closed; Run below walks them in order and returns once Closed.
type Session struct {
	conn    *websocket.Conn
	catalog *catalog.Catalog
	store   *store.Store
	log     *logging.Logger
	owner   string
}

func (s *Session) readJSON(v interface{}) error {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Session) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Run drives the session to completion. Any transport error or malformed
// frame during the handshake closes the connection outright; once
// authenticated, only a transport error (not a single bad command, which
// is reported as error 2) ends the session.
func (s *Session) Run(keys *KeyStore) {
	defer s.conn.Close()

	// AwaitUser.
	var hello wire.HelloRequest
	if err := s.readJSON(&hello); err != nil {
		s.log.Debug("closing: malformed or absent hello", "error", err)
		return
	}
	if !validUsername(hello.Username) {
		s.writeJSON(wire.ChallengeResponse{Error: wire.ErrNoSuchUser})
		return
	}
	pub, ok := keys.Lookup(hello.Username)
	if !ok {
		s.writeJSON(wire.ChallengeResponse{Error: wire.ErrNoSuchUser})
		return
	}
	plaintext, challengeHex, err := issueChallenge(pub)
	if err != nil {
		s.log.Error("issue challenge", "error", err)
		return
	}
	if err := s.writeJSON(wire.ChallengeResponse{Challenge: &challengeHex}); err != nil {
		return
	}

	// AwaitResponse.
	var answer wire.ChallengeAnswer
	if err := s.readJSON(&answer); err != nil {
		s.log.Debug("closing: malformed or absent challenge answer", "error", err)
		return
	}
	if !verifyResponse(plaintext, answer.Response) {
		// Write the failure before closing even though the peer may
		// already be gone.
		s.writeJSON(wire.AuthFailure{Success: false, Error: wire.ErrAuthFailure})
		return
	}

	s.owner = hello.Username
	s.log = s.log.With("owner", s.owner)
	s.log.Info("session authenticated")

	// AuthedIdle / Dispatching, alternating until exit or a transport error.
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug("session closed", "error", err)
			return
		}

		var response map[string]interface{}
		exit := false
		var cmd wire.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			response = errorEnvelope(wire.ErrMalformedRequest, "")
		} else {
			response, exit = s.dispatch(cmd)
		}
		if err := s.writeJSON(response); err != nil {
			s.log.Debug("write failed, closing", "error", err)
			return
		}
		if exit {
			return
		}
	}
}
