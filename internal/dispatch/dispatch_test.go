package dispatch

import (
	"encoding/json"
	"image"
	"image/color"
	"net"
	"path/filepath"
	"testing"
	"time"

	"falcon/internal/area"
	"falcon/internal/auth"
	"falcon/internal/config"
	"falcon/internal/framebuffer"
	"falcon/internal/frame"
	"falcon/internal/protocol"
	"falcon/internal/repository"
	"falcon/internal/transport/stream"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	dir := t.TempDir()
	repo, err := repository.Open(filepath.Join(dir, "falcon.db"), filepath.Join(dir, "img"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	areas := area.NewMap(nil)
	authn := auth.NewAuthenticator(auth.Config{Enabled: false})

	c := New(config.ListenConfig{Host: "127.0.0.1"}, framebuffer.New(5*time.Second), repo, areas, authn)
	if err := c.Serve(); err != nil {
		t.Fatalf("serve: %v", err)
	}
	t.Cleanup(c.Shutdown)
	return c
}

func dialLine(t *testing.T, addr string) *stream.Conn {
	t.Helper()
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	return stream.NewConn(raw)
}

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{10, 20, 30, 255})
		}
	}
	return img
}

func objectDetectedLine(cameraID string, frameID, objectID int64, class string) protocol.ObjectDetectedEvent {
	return protocol.NewObjectDetectedEvent(cameraID, []protocol.DetectionDTO{
		{ObjectID: objectID, Class: class, BBox: [4]int{10, 10, 50, 50}, Confidence: 0.9, ImgID: frameID},
	})
}

// TestFirstObservationPersistsOnce exercises spec §8 scenarios 1 and 2: the
// first batch for an object-id persists one row; repeated batches for the
// same id at later frame-ids persist nothing further.
func TestFirstObservationPersistsOnce(t *testing.T) {
	c := newTestCore(t)
	c.buffer.Put(&frame.Frame{CameraID: "A", FrameID: 1000, Width: 64, Height: 64, Pix: solidImage(64, 64), Captured: time.Now()})
	c.buffer.Put(&frame.Frame{CameraID: "A", FrameID: 1001, Width: 64, Height: 64, Pix: solidImage(64, 64), Captured: time.Now()})
	c.buffer.Put(&frame.Frame{CameraID: "A", FrameID: 1002, Width: 64, Height: 64, Pix: solidImage(64, 64), Captured: time.Now()})
	c.buffer.Put(&frame.Frame{CameraID: "A", FrameID: 1003, Width: 64, Height: 64, Pix: solidImage(64, 64), Captured: time.Now()})

	conn := dialLine(t, c.IngestAddr())
	defer conn.Close()

	for _, frameID := range []int64{1000, 1001, 1002, 1003} {
		if err := conn.Send(objectDetectedLine("A", frameID, 42, "BIRD")); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	time.Sleep(100 * time.Millisecond)

	if !c.firstSeen.Admitted("A", 42) {
		t.Fatal("expected object 42 to be admitted after first batch")
	}

	count, err := c.repo.CountEvents(42)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one persisted row, got %d", count)
	}
}

// TestBirdRiskTransitionBroadcastsOnce exercises spec §8 scenario 3.
func TestBirdRiskTransitionBroadcastsOnce(t *testing.T) {
	c := newTestCore(t)

	opConn := dialLine(t, c.OperatorAddr())
	defer opConn.Close()
	drainCurrentState(t, opConn)

	birdConn := dialLine(t, c.BirdAddr())
	defer birdConn.Close()

	send := func() {
		birdConn.Send(protocol.BirdChangedEvent{Type: protocol.TypeEvent, Event: "BR_CHANGED", Result: "BR_MEDIUM"})
	}
	send()
	msg := readOperatorMessage(t, opConn)
	if msg.Code != "ME_BR:MEDIUM" {
		t.Fatalf("expected ME_BR:MEDIUM broadcast, got %+v", msg)
	}

	send()
	opConn.Send(protocol.NewOperatorCommand("MC_MP"))
	ack := readOperatorMessage(t, opConn)
	if ack.Code != "MR_MP" {
		t.Fatalf("expected only the MR_MP ack after a repeated equal-valued update, got %+v", ack)
	}
}

// TestPilotQueryRouting exercises spec §8 scenario 4.
func TestPilotQueryRouting(t *testing.T) {
	c := newTestCore(t)

	opConn := dialLine(t, c.OperatorAddr())
	defer opConn.Close()
	drainCurrentState(t, opConn)

	opConn.Send(protocol.NewOperatorCommand("MC_RWY_B:WARNING"))
	readOperatorMessage(t, opConn) // ME_RB broadcast

	pilotConn := dialLine(t, c.PilotAddr())
	defer pilotConn.Close()

	pilotConn.Send(protocol.NewOperatorCommand("RWY_AVAIL_INQ"))
	resp := readOperatorMessage(t, pilotConn)
	if resp.Payload != "A_ONLY" {
		t.Fatalf("expected A_ONLY, got %+v", resp)
	}

	opConn.Send(protocol.NewOperatorCommand("MC_RWY_A:WARNING"))
	readOperatorMessage(t, opConn) // ME_RA broadcast

	pilotConn.Send(protocol.NewOperatorCommand("RWY_AVAIL_INQ"))
	resp = readOperatorMessage(t, pilotConn)
	if resp.Payload != "NONE" {
		t.Fatalf("expected NONE, got %+v", resp)
	}
}

func drainCurrentState(t *testing.T, conn *stream.Conn) {
	t.Helper()
	for i := 0; i < 3; i++ {
		readOperatorMessage(t, conn)
	}
}

func readOperatorMessage(t *testing.T, conn *stream.Conn) protocol.OperatorMessage {
	t.Helper()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	defer conn.SetDeadline(time.Time{})
	line, err := conn.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var msg protocol.OperatorMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}
