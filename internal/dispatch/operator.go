package dispatch

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"falcon/internal/frame"
	"falcon/internal/overlay"
	"falcon/internal/protocol"
	"falcon/internal/risk"
	"falcon/internal/transport/datagram"
	"falcon/internal/transport/stream"

	"github.com/google/uuid"
)

// cameraA and cameraB are the two fixed camera ids the operator console
// selects between via MC_CA/MC_CB (spec §6: these are literal two-camera
// selection codes, not a parameterized "select camera <id>" command).
const (
	cameraA = "A"
	cameraB = "B"
)

// operatorSession is one connected operator console (spec §4.15). The
// server holds one datagram sender per console, dialed lazily once the
// console has selected a camera and told the server where to send
// annotated frames (see DESIGN.md: the spec leaves how a console's video
// destination address reaches the server unspecified; this repo piggybacks
// it on the MC_CA/MC_CB command body).
type operatorSession struct {
	id   string
	conn *stream.Conn

	mu          sync.Mutex
	selected    string // "" means map view (MC_MP), else cameraA/cameraB
	videoAddr   string
	videoSender *datagram.Sender
}

// handleOperator serves one operator-console connection: login handshake,
// then alternating commands and broadcasts until the connection drops.
func (c *Core) handleOperator(conn *stream.Conn) {
	defer conn.Close()

	if _, err := c.authenticate(conn); err != nil {
		log.Printf("[Dispatch:Operator] login failed: %v", err)
		return
	}

	sess := &operatorSession{id: uuid.NewString(), conn: conn}
	c.registerOperator(sess)
	defer c.unregisterOperator(sess)

	c.sendCurrentState(sess)

	for {
		line, err := conn.Receive()
		if err != nil {
			log.Printf("[Dispatch:Operator:%s] disconnected: %v", sess.id, err)
			return
		}

		env, err := protocol.Peek(line)
		if err != nil {
			log.Printf("[Dispatch:Operator:%s] malformed message, discarding: %v", sess.id, err)
			continue
		}
		if env.Type != protocol.TypeCommand {
			continue
		}

		var msg protocol.OperatorMessage
		if err := unmarshalInto(line, &msg); err != nil {
			log.Printf("[Dispatch:Operator:%s] malformed operator command: %v", sess.id, err)
			continue
		}
		c.handleOperatorCommand(sess, msg)
	}
}

func (c *Core) handleOperatorCommand(sess *operatorSession, msg protocol.OperatorMessage) {
	prefix, body, _ := strings.Cut(msg.Code, ":")

	switch prefix {
	case "MC_CA":
		c.selectCamera(sess, cameraA, body)
		sess.conn.Send(protocol.NewOperatorResponse("MR_CA", "ok"))
	case "MC_CB":
		c.selectCamera(sess, cameraB, body)
		sess.conn.Send(protocol.NewOperatorResponse("MR_CB", "ok"))
	case "MC_MP":
		c.selectCamera(sess, "", "")
		sess.conn.Send(protocol.NewOperatorResponse("MR_MP", "ok"))
	case "MC_OD":
		sess.conn.Send(protocol.NewOperatorResponse("MR_OD", c.describeObject(body)))
	case "MC_RWY_A":
		c.setRunwayAdmin(risk.RunwayA, body)
	case "MC_RWY_B":
		c.setRunwayAdmin(risk.RunwayB, body)
	default:
		log.Printf("[Dispatch:Operator:%s] unrecognized code %q", sess.id, msg.Code)
	}
}

// selectCamera switches the console's camera view and, if a video address
// was supplied, (re)dials the console's annotated-video UDP sender for the
// newly selected camera.
func (c *Core) selectCamera(sess *operatorSession, cameraID, videoAddr string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	prev := sess.selected
	sess.selected = cameraID
	if cameraID == "" || videoAddr == "" {
		return
	}
	if sess.videoSender != nil && sess.videoAddr == videoAddr && prev == cameraID {
		return
	}
	if sess.videoSender != nil {
		sess.videoSender.Close()
	}
	sender, err := datagram.NewSender(cameraID, videoAddr)
	if err != nil {
		log.Printf("[Dispatch:Operator:%s] dial video sender %s: %v", sess.id, videoAddr, err)
		sess.videoSender = nil
		return
	}
	sess.videoSender = sender
	sess.videoAddr = videoAddr
}

// onVideoFrame renders the overlay for f (if this console is viewing its
// camera) and forwards it on the console's annotated-video sender. Frames
// are dropped, never queued, if the sender is behind (spec §4.11).
func (s *operatorSession) onVideoFrame(c *Core, f *frame.Frame) {
	s.mu.Lock()
	selected := s.selected
	sender := s.videoSender
	s.mu.Unlock()

	if selected == "" || selected != f.CameraID || sender == nil {
		return
	}

	dets := c.buffer.Overlay(f.CameraID, f.FrameID)
	overlayDets := make([]overlay.Detection, 0, len(dets))
	for _, d := range dets {
		overlayDets = append(overlayDets, overlay.Detection{ClassTag: d.ClassTag, BBox: d.BBox, Confidence: d.Confidence})
	}
	annotated := overlay.Render(f.Pix, overlayDets)

	annotatedFrame := &frame.Frame{CameraID: f.CameraID, FrameID: f.FrameID, Width: f.Width, Height: f.Height, Pix: annotated, Captured: f.Captured}
	if err := sender.Send(annotatedFrame, 80); err != nil {
		log.Printf("[Dispatch:Operator:%s] annotated video send: %v", s.id, err)
	}
}

// describeObject answers an MC_OD:<object-id> detail request.
func (c *Core) describeObject(body string) string {
	id, err := strconv.ParseInt(body, 10, 64)
	if err != nil {
		return "INVALID"
	}
	d, ok := c.lookupDetail(id)
	if !ok {
		return "NOT_FOUND"
	}
	return fmt.Sprintf("%d,%s,%s,%d,%d,%d,%d", id, d.cameraID, d.class, d.bbox[0], d.bbox[1], d.bbox[2], d.bbox[3])
}

// setRunwayAdmin applies an operator-commanded runway status change (spec
// §4.13 "command messages from the operator: set runway risk directly").
func (c *Core) setRunwayAdmin(r risk.Runway, value string) {
	var status risk.RunwayStatus
	switch value {
	case "CLEAR":
		status = risk.RunwayClear
	case "WARNING":
		status = risk.RunwayWarning
	default:
		log.Printf("[Dispatch:Operator] invalid runway status %q", value)
		return
	}
	if change, changed := c.risk.SetRunway(r, status); changed {
		c.broadcastRiskChange(change)
	}
}

// sendCurrentState re-broadcasts the three risk values to one console,
// satisfying the reconnect-liveness property (spec §8): "within one
// round-trip the operator console has received the three current risk
// values."
func (c *Core) sendCurrentState(sess *operatorSession) {
	snap := c.risk.Current()
	sess.conn.Send(protocol.NewOperatorEvent("ME_BR:" + string(snap.Bird)))
	sess.conn.Send(protocol.NewOperatorEvent("ME_RA:" + string(snap.RunwayA)))
	sess.conn.Send(protocol.NewOperatorEvent("ME_RB:" + string(snap.RunwayB)))
}

// broadcastRiskChange maps a risk.Change to its operator-facing broadcast
// code (spec §6: ME_BR / ME_RA / ME_RB, distinct from the risk package's
// own internal ChangeKind vocabulary) and sends it to every connected
// console.
func (c *Core) broadcastRiskChange(change risk.Change) {
	var code string
	switch change.Kind {
	case risk.BirdChanged:
		code = "ME_BR"
	case risk.RunwayAChanged:
		code = "ME_RA"
	case risk.RunwayBChanged:
		code = "ME_RB"
	default:
		return
	}
	c.broadcastOperatorEvent(code + ":" + change.Value)
}

// broadcastObjectDetected sends an ME_OD broadcast to every connected
// operator console, unconditionally of which camera each console has
// selected (spec §8 scenario 1).
func (c *Core) broadcastObjectDetected(ev protocol.ObjectDetectedEvent) {
	if len(ev.Detections) == 0 {
		return
	}
	var b strings.Builder
	for i, d := range ev.Detections {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%d,%s,%d,%d,%d,%d,%.2f", d.ObjectID, d.Class, d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3], d.Confidence)
	}
	c.broadcastOperatorEvent("ME_OD:" + ev.CameraID + ":" + b.String())
}

func (c *Core) broadcastOperatorEvent(code string) {
	c.forEachOperator(func(s *operatorSession) {
		if err := s.conn.Send(protocol.NewOperatorEvent(code)); err != nil {
			log.Printf("[Dispatch:Operator:%s] broadcast send failed: %v", s.id, err)
		}
	})
}
