// Package dispatch implements the server dispatch core (spec §4.15, C2): the
// composition of the four stream-endpoint acceptors, the shared video
// ingress receiver, and the single owning tasks for the frame buffer,
// first-observation gate, and risk state machine. Grounded on the teacher's
// server composition root pattern in orbo's cmd/orbo main package, which
// wires one listener per concern behind a single top-level struct rather
// than a framework-driven router.
package dispatch

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"falcon/internal/area"
	"falcon/internal/auth"
	"falcon/internal/config"
	"falcon/internal/firstseen"
	"falcon/internal/framebuffer"
	"falcon/internal/repository"
	"falcon/internal/risk"
	"falcon/internal/transport/datagram"
	"falcon/internal/transport/stream"
)

// firstSeenSweepInterval is how often Core retires stale first-observation
// entries (spec §4.12). Kept well under firstseen.DefaultStaleAfter so a
// retirement is noticed promptly once it's due.
const firstSeenSweepInterval = 5 * time.Second

// Core owns every piece of server-side shared state named in spec §4.15 and
// runs the four stream acceptors plus the shared video receiver.
type Core struct {
	cfg   config.ListenConfig
	authn *auth.Authenticator

	repo  *repository.Repository
	areas *area.Map

	buffer    *framebuffer.Buffer
	firstSeen *firstseen.Gate
	risk      *risk.State

	videoRecv *datagram.Receiver

	mu          sync.Mutex
	lastFrameID map[string]int64 // per-camera ordering guard (spec §5)
	lastDetail  map[int64]detailRecord

	opMu      sync.Mutex
	operators map[*operatorSession]struct{}

	ingestLn   *net.TCPListener
	operatorLn *net.TCPListener
	birdLn     *net.TCPListener
	pilotLn    *net.TCPListener

	stopSweep chan struct{}
}

// detailRecord is the last-known detection detail for an object-id, used to
// answer MC_OD detail requests from the operator console.
type detailRecord struct {
	cameraID string
	class    string
	bbox     [4]int
}

// New builds a Core from its configuration and already-opened dependencies.
// repo, areas, and authn are constructed by the caller (cmd/server) since
// they carry their own setup errors (file/db open, polygon parsing).
func New(cfg config.ListenConfig, buf *framebuffer.Buffer, repo *repository.Repository, areas *area.Map, authn *auth.Authenticator) *Core {
	return &Core{
		cfg:         cfg,
		authn:       authn,
		repo:        repo,
		areas:       areas,
		buffer:      buf,
		firstSeen:   firstseen.New(),
		risk:        risk.New(),
		lastFrameID: make(map[string]int64),
		lastDetail:  make(map[int64]detailRecord),
		operators:   make(map[*operatorSession]struct{}),
		stopSweep:   make(chan struct{}),
	}
}

// Serve binds the shared video ingress socket and all four stream
// acceptors. A bind failure here is Fatal per spec §7 ("failure to bind a
// listening port"); the caller is expected to exit non-zero.
func (c *Core) Serve() error {
	recv, err := datagram.Listen(net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.VideoIngressPort)))
	if err != nil {
		return fmt.Errorf("dispatch: video ingress: %w", err)
	}
	c.videoRecv = recv
	go recv.Run()

	ln, err := stream.Serve(net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.DetectionPort)), c.handleIngest)
	if err != nil {
		return fmt.Errorf("dispatch: detection ingest: %w", err)
	}
	c.ingestLn = ln

	ln, err = stream.Serve(net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.OperatorPort)), c.handleOperator)
	if err != nil {
		return fmt.Errorf("dispatch: operator console: %w", err)
	}
	c.operatorLn = ln

	ln, err = stream.Serve(net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.BirdPort)), c.handleBird)
	if err != nil {
		return fmt.Errorf("dispatch: bird subsystem: %w", err)
	}
	c.birdLn = ln

	ln, err = stream.Serve(net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.PilotPort)), c.handlePilot)
	if err != nil {
		return fmt.Errorf("dispatch: pilot query: %w", err)
	}
	c.pilotLn = ln

	log.Printf("[Dispatch] listening: ingest=%d operator=%d bird=%d pilot=%d video=%d",
		c.cfg.DetectionPort, c.cfg.OperatorPort, c.cfg.BirdPort, c.cfg.PilotPort, c.cfg.VideoIngressPort)

	go c.sweepFirstSeenLoop()
	return nil
}

// sweepFirstSeenLoop periodically retires stale first-observation entries
// (spec §4.12: "removed from the set when the server has not received a
// detection for that id for longer than the tracker's lost threshold").
func (c *Core) sweepFirstSeenLoop() {
	ticker := time.NewTicker(firstSeenSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.firstSeen.Sweep(firstseen.DefaultStaleAfter)
		case <-c.stopSweep:
			return
		}
	}
}

// IngestAddr, OperatorAddr, BirdAddr, and PilotAddr return the bound
// address of each acceptor, useful when the configured port is 0 (tests,
// or letting the OS pick an ephemeral port).
func (c *Core) IngestAddr() string   { return c.ingestLn.Addr().String() }
func (c *Core) OperatorAddr() string { return c.operatorLn.Addr().String() }
func (c *Core) BirdAddr() string     { return c.birdLn.Addr().String() }
func (c *Core) PilotAddr() string    { return c.pilotLn.Addr().String() }

// Shutdown closes every listener and the video receiver. Accepted
// connections close on their next read/write per spec §5's leaf-to-root
// cancellation order.
func (c *Core) Shutdown() {
	close(c.stopSweep)
	if c.videoRecv != nil {
		c.videoRecv.Close()
	}
	for _, ln := range []*net.TCPListener{c.ingestLn, c.operatorLn, c.birdLn, c.pilotLn} {
		if ln != nil {
			ln.Close()
		}
	}
}

// acceptFrameOrder enforces the per-camera non-decreasing frame-id rule
// (spec §5 "Ordering guarantees"). Returns false if frameID regresses
// relative to the last accepted id for cameraID, in which case the caller
// must discard the whole batch.
func (c *Core) acceptFrameOrder(cameraID string, frameID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastFrameID[cameraID]; ok && frameID < last {
		return false
	}
	c.lastFrameID[cameraID] = frameID
	return true
}

func (c *Core) recordDetail(objectID int64, cameraID, class string, bbox [4]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastDetail[objectID] = detailRecord{cameraID: cameraID, class: class, bbox: bbox}
}

func (c *Core) lookupDetail(objectID int64) (detailRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.lastDetail[objectID]
	return d, ok
}

func (c *Core) registerOperator(s *operatorSession) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.operators[s] = struct{}{}
}

func (c *Core) unregisterOperator(s *operatorSession) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	delete(c.operators, s)
	if s.videoSender != nil {
		s.videoSender.Close()
	}
}

// forEachOperator runs fn against a snapshot of connected operator sessions.
func (c *Core) forEachOperator(fn func(*operatorSession)) {
	c.opMu.Lock()
	sessions := make([]*operatorSession, 0, len(c.operators))
	for s := range c.operators {
		sessions = append(sessions, s)
	}
	c.opMu.Unlock()
	for _, s := range sessions {
		fn(s)
	}
}
