// Package datagram implements the UDP video transport (spec §4.2): a
// per-camera Sender that pushes JPEG frames with the "camera-id:frame-id:"
// header, stepping the JPEG quality ladder down on oversize frames, and a
// shared Receiver that demultiplexes incoming datagrams by camera-id and
// silently drops anything with a stale or out-of-order frame-id.
package datagram

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"falcon/internal/frame"
)

// MaxDatagramBytes bounds the UDP payload size the sender will attempt to
// produce; it is the budget EncodeWithBudget steps the JPEG quality down to
// satisfy.
const MaxDatagramBytes = 60000

// receiveBufferBytes is the receive buffer size (spec §4.2: "at least
// 128 KiB"), kept comfortably above MaxDatagramBytes so a read never
// truncates a datagram even if a peer ever raises its own send budget.
const receiveBufferBytes = 128 * 1024

// Sender pushes frames for a single camera to a fixed destination over UDP.
type Sender struct {
	mu       sync.Mutex
	conn     *net.UDPConn
	cameraID string
}

// NewSender dials a UDP "connection" (really just a fixed peer address) to
// addr for cameraID.
func NewSender(cameraID, addr string) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("datagram: resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("datagram: dial %s: %w", addr, err)
	}
	return &Sender{conn: conn, cameraID: cameraID}, nil
}

// Send JPEG-encodes f at startQuality, stepping the quality ladder down as
// needed to fit MaxDatagramBytes, and writes the header+payload datagram. It
// never blocks on the network beyond a single UDP write.
func (s *Sender) Send(f *frame.Frame, startQuality int) error {
	_, payload, err := frame.EncodeWithBudget(f.Pix, s.cameraID, f.FrameID, startQuality, MaxDatagramBytes)
	if err != nil {
		return fmt.Errorf("datagram: encode frame %d: %w", f.FrameID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conn.Write(payload); err != nil {
		return fmt.Errorf("datagram: write: %w", err)
	}
	return nil
}

// Close releases the sender's socket.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Handler receives one decoded frame per accepted datagram.
type Handler func(f *frame.Frame)

// Receiver listens on a single shared UDP socket and dispatches decoded
// frames to per-camera handlers, dropping anything whose camera-id is not
// registered or whose frame-id is not greater than the last frame-id seen
// for that camera, so repeats are dropped as well as regressions (spec
// §4.2's stale-frame rule).
type Receiver struct {
	conn *net.UDPConn

	mu       sync.Mutex
	handlers map[string]Handler
	lastID   map[string]int64
}

// Listen opens the shared UDP socket at addr (e.g. ":9500").
func Listen(addr string) (*Receiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("datagram: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("datagram: listen %s: %w", addr, err)
	}
	return &Receiver{
		conn:     conn,
		handlers: make(map[string]Handler),
		lastID:   make(map[string]int64),
	}, nil
}

// Register installs the handler invoked for frames tagged with cameraID.
// Datagrams for camera-ids with no registered handler are dropped silently.
func (r *Receiver) Register(cameraID string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[cameraID] = h
}

// Unregister removes a previously registered handler.
func (r *Receiver) Unregister(cameraID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, cameraID)
	delete(r.lastID, cameraID)
}

// Run reads datagrams until the socket is closed. It is meant to run in its
// own goroutine; it returns only once Close has been called (or a
// non-recoverable read error occurs).
func (r *Receiver) Run() {
	buf := make([]byte, receiveBufferBytes)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[Datagram] read error: %v", err)
			continue
		}
		r.dispatch(buf[:n])
	}
}

func (r *Receiver) dispatch(payload []byte) {
	r.mu.Lock()
	known := func(tag string) bool {
		_, ok := r.handlers[tag]
		return ok
	}
	cameraID, frameID, rest, err := frame.ParseHeader(payload, known)
	if err != nil {
		r.mu.Unlock()
		return
	}
	if last, seen := r.lastID[cameraID]; seen && frameID <= last {
		r.mu.Unlock()
		return
	}
	r.lastID[cameraID] = frameID
	h := r.handlers[cameraID]
	r.mu.Unlock()

	img, err := frame.Decode(rest)
	if err != nil {
		log.Printf("[Datagram] malformed JPEG from camera %s frame %d: %v", cameraID, frameID, err)
		return
	}
	h(&frame.Frame{
		CameraID: cameraID,
		FrameID:  frameID,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Pix:      img,
	})
}

// Close releases the receiver's socket, unblocking Run.
func (r *Receiver) Close() error {
	return r.conn.Close()
}
