// Package stream implements the newline-delimited-JSON transport used by
// every TCP endpoint family in spec §4.3: detection ingest, operator
// console, bird subsystem, pilot query. A Conn wraps one accepted or dialed
// TCP connection with line-framed Send/Receive. A Client adds client-side
// reconnect with capped backoff and at-most-once delivery — messages queued
// while disconnected are dropped rather than buffered across reconnects,
// and each reconnect re-synchronizes state via a fresh full re-broadcast
// from the level-triggered server side, per spec §5.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// ErrClosed is returned by Send/Receive once the connection has been closed.
var ErrClosed = errors.New("stream: connection closed")

const maxLineBytes = 1 << 20 // 1 MiB; generous enough for a detection batch line

// Conn is one newline-delimited-JSON connection, usable from both server
// (accept) and client (dial) sides.
type Conn struct {
	raw     net.Conn
	scanner *bufio.Scanner

	writeMu sync.Mutex
	closed  bool
}

// NewConn wraps an already-established net.Conn.
func NewConn(raw net.Conn) *Conn {
	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 4096), maxLineBytes)
	return &Conn{raw: raw, scanner: scanner}
}

// Send marshals v to JSON and writes it as one line.
func (c *Conn) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stream: marshal: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, err := c.raw.Write(data); err != nil {
		return fmt.Errorf("stream: write: %w", err)
	}
	return nil
}

// Receive blocks for the next newline-delimited line and returns its raw
// bytes (without the trailing newline). It returns ErrClosed when the peer
// closes the connection or Close has been called locally.
func (c *Conn) Receive() ([]byte, error) {
	if c.scanner.Scan() {
		line := append([]byte{}, c.scanner.Bytes()...)
		return line, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream: read: %w", err)
	}
	return nil, ErrClosed
}

// Close closes the underlying connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.raw.Close()
}

// RemoteAddr returns the peer address, for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// SetDeadline passes through to the underlying connection. Used by callers
// that need a bounded read, such as the login handshake's connect timeout
// (spec §10.3).
func (c *Conn) SetDeadline(t time.Time) error {
	return c.raw.SetDeadline(t)
}

// Handler processes one accepted connection until it closes.
type Handler func(conn *Conn)

// Serve accepts connections on addr and runs handler for each in its own
// goroutine, until the listener is closed.
func Serve(addr string, handler Handler) (*net.TCPListener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("stream: resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("stream: listen %s: %w", addr, err)
	}
	go func() {
		for {
			raw, err := ln.Accept()
			if err != nil {
				return
			}
			go handler(NewConn(raw))
		}
	}()
	return ln, nil
}

const (
	minBackoff = 1 * time.Second
	maxBackoff = 5 * time.Second
)

// Client dials addr, reconnecting with capped exponential-ish backoff
// (1s doubling to a 5s ceiling, per spec §5) whenever the connection drops.
// OnConnect is invoked with the fresh Conn after every successful dial,
// including reconnects, so callers can re-send any level-triggered state.
type Client struct {
	addr      string
	onConnect func(*Conn)

	mu      sync.Mutex
	current *Conn
	stopped bool
	done    chan struct{}
}

// NewClient creates a reconnecting client. Call Run to start it.
func NewClient(addr string, onConnect func(*Conn)) *Client {
	return &Client{addr: addr, onConnect: onConnect, done: make(chan struct{})}
}

// Run dials and reconnects until Stop is called. It blocks the calling
// goroutine; callers should invoke it via `go client.Run()`.
func (c *Client) Run() {
	backoff := minBackoff
	for {
		c.mu.Lock()
		stopped := c.stopped
		c.mu.Unlock()
		if stopped {
			return
		}

		raw, err := net.Dial("tcp", c.addr)
		if err != nil {
			log.Printf("[Stream] dial %s failed: %v; retrying in %s", c.addr, err, backoff)
			if !c.sleepOrStop(backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = minBackoff
		conn := NewConn(raw)
		c.mu.Lock()
		c.current = conn
		c.mu.Unlock()

		c.onConnect(conn)

		// Block here until the connection drops; Receive is driven by the
		// caller's onConnect read loop, so Run's job is just to notice the
		// connection died and reconnect. waitForClose polls the conn's
		// closed state, which that read loop sets by calling Close.
		c.waitForClose(conn)

		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

// waitForClose polls until conn is closed. The read loop living in
// onConnect is what actually detects EOF/ErrClosed and calls conn.Close();
// this just blocks Run until that happens.
func (c *Client) waitForClose(conn *Conn) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		conn.writeMu.Lock()
		closed := conn.closed
		conn.writeMu.Unlock()
		if closed {
			return
		}
	}
}

func (c *Client) sleepOrStop(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.done:
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	next := d * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// Stop terminates the client; any in-progress dial/backoff wait is
// cancelled and Run returns once it notices.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.done)
	if c.current != nil {
		c.current.Close()
	}
}
