package client

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"fmt"

	"github.com/gorilla/websocket"
)

// authenticate drives the client side of the challenge-response
// handshake: send the username, decrypt the server's RSA-encrypted
// challenge with priv, and echo the plaintext back for verification.
func authenticate(conn *websocket.Conn, username string, priv *rsa.PrivateKey) error {
	if err := conn.WriteJSON(map[string]string{"username": username}); err != nil {
		return fmt.Errorf("client: send username: %w", err)
	}

	var challenge struct {
		Challenge *string `json:"challenge"`
		Error     int     `json:"error"`
	}
	if err := conn.ReadJSON(&challenge); err != nil {
		return fmt.Errorf("client: read challenge: %w", err)
	}
	if challenge.Challenge == nil {
		return fmt.Errorf("client: server rejected username (error %d)", challenge.Error)
	}

	ciphertext, err := hex.DecodeString(*challenge.Challenge)
	if err != nil {
		return fmt.Errorf("client: decode challenge hex: %w", err)
	}
	plaintext, err := rsa.DecryptPKCS1v15(rand.Reader, priv, ciphertext)
	if err != nil {
		return fmt.Errorf("client: decrypt challenge: %w", err)
	}

	if err := conn.WriteJSON(map[string]string{"response": hex.EncodeToString(plaintext)}); err != nil {
		return fmt.Errorf("client: send challenge response: %w", err)
	}

	// The server replies only on failure; on success it proceeds straight
	// to the command loop, so there is nothing further to read here. A
	// peer that rejected the response writes {success:false, error:102}
	// and closes; the caller's first Send then receives that envelope as
	// its response, or a transport error if the connection is already
	// gone.
	return nil
}
