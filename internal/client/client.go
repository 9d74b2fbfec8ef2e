// Package client is the client side of the PhasmaDB session protocol: it
// dials the server's websocket endpoint, drives the challenge-response
// handshake with the user's RSA key pair, and thereafter owns a single
// goroutine that drains a queue of (command, completion) pairs strictly
// in order. At most one command is ever in flight; a transport failure
// is latched and fans out to every queued completion.
package client

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/phasma-db/phasmadb/internal/keyring"
	"github.com/phasma-db/phasmadb/internal/wire"
)

// pending is one queued command awaiting its response.
type pending struct {
	cmd  map[string]interface{}
	done chan result
}

type result struct {
	resp map[string]interface{}
	err  error
}

// Client owns one authenticated session to a phasmadbd server. Its
// Keyring decrypts and hashes everything sent or received on the caller's
// behalf; the server itself never holds it.
type Client struct {
	Keyring *keyring.Keyring

	conn  *websocket.Conn
	queue chan pending
	stop  chan struct{}

	mu      sync.Mutex
	closed  bool
	fatal   error
	nextCmd uint64
}

// Dial opens a websocket connection to addr, runs the challenge-response
// handshake as username using priv, and starts the session's single
// cooperative sender/receiver goroutine. The returned Client is ready for
// concurrent callers to invoke Send/high-level command methods on: they
// compete only for queue slots, never for the connection itself.
func Dial(addr, username string, priv *rsa.PrivateKey, kr *keyring.Keyring) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}

	if err := authenticate(conn, username, priv); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		Keyring: kr,
		conn:    conn,
		queue:   make(chan pending, 64),
		stop:    make(chan struct{}),
	}
	go c.run()
	return c, nil
}

// run is the session's single goroutine: it owns the connection end to
// end, popping one queued command at a time, writing it, and awaiting
// exactly one response before popping the next. Commands are never
// reordered and never run concurrently with each other. It never closes
// the queue itself (callers may still be enqueueing); Exit signals
// shutdown via stop instead.
func (c *Client) run() {
	for {
		var p pending
		select {
		case p = <-c.queue:
		case <-c.stop:
			return
		}

		data, err := json.Marshal(p.cmd)
		if err != nil {
			p.done <- result{err: fmt.Errorf("client: marshal command: %w", err)}
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.fail(err)
			p.done <- result{err: err}
			c.drainWithError(err)
			return
		}

		_, respData, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			p.done <- result{err: err}
			c.drainWithError(err)
			return
		}

		var resp map[string]interface{}
		if err := json.Unmarshal(respData, &resp); err != nil {
			p.done <- result{err: fmt.Errorf("client: decode response: %w", err)}
			continue
		}
		p.done <- result{resp: resp}
	}
}

// fail latches err as the session's terminal transport error; subsequent
// Send calls fail fast instead of blocking on a dead connection.
func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fatal == nil {
		c.fatal = err
	}
	c.closed = true
}

// drainWithError signals every command still queued (but not yet popped)
// with the same transport error.
func (c *Client) drainWithError(err error) {
	for {
		select {
		case p := <-c.queue:
			p.done <- result{err: err}
		default:
			return
		}
	}
}

// Send enqueues cmd and blocks until its response arrives or the session
// fails. Callers may invoke Send concurrently; delivery order across the
// wire is still strictly the order in which the sender goroutine pops
// the queue, so at most one request is ever in flight.
func (c *Client) Send(cmd map[string]interface{}) (map[string]interface{}, error) {
	c.mu.Lock()
	if c.fatal != nil {
		err := c.fatal
		c.mu.Unlock()
		return nil, err
	}
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("client: session closed")
	}
	c.mu.Unlock()

	cmd["cmd_id"] = fmt.Sprintf("%d", c.nextCmdID())

	p := pending{cmd: cmd, done: make(chan result, 1)}
	c.queue <- p
	r := <-p.done
	if r.err != nil {
		return nil, r.err
	}
	if sentID, ok := cmd["cmd_id"].(string); ok {
		if gotID, _ := r.resp["cmd_id"].(string); gotID != "" && gotID != sentID {
			return nil, fmt.Errorf("client: cmd_id mismatch: sent %s, got %s", sentID, gotID)
		}
	}
	return r.resp, nil
}

func (c *Client) nextCmdID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextCmd++
	return c.nextCmd
}

// Exit sends the exit command, signals the session goroutine to stop, and
// closes the underlying connection.
func (c *Client) Exit() error {
	_, err := c.Send(map[string]interface{}{"cmd": "exit"})
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	close(c.stop)
	if err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

// errFromResponse extracts a wire.CodeError from a {success:false,
// error:N} envelope, or nil if resp reports success.
func errFromResponse(resp map[string]interface{}) error {
	if success, _ := resp["success"].(bool); success {
		return nil
	}
	if code, ok := resp["error"].(float64); ok {
		return wire.CodeError(int(code))
	}
	return fmt.Errorf("client: malformed response: %v", resp)
}
