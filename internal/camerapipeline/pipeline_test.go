package camerapipeline

import (
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"falcon/internal/detect"
	"falcon/internal/frame"
	"falcon/internal/protocol"
	"falcon/internal/transport/stream"
)

// fakeDevice yields a fixed image on every Capture call.
type fakeDevice struct {
	img image.Image
}

func (d *fakeDevice) Capture() (image.Image, error) {
	return d.img, nil
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// newTestDetectorServer returns a detector HTTP backend reporting one
// person detection at a fixed bbox, and a pose endpoint reporting FALLEN.
func newTestDetectorServer(t *testing.T) *detect.Adapter {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/detect", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"class": "person", "track_id": 7, "confidence": 0.95, "bbox": [4]int{10, 10, 40, 50}},
			},
		})
	})
	mux.HandleFunc("/pose", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "FALLEN", "keypoints": []any{}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return detect.New(detect.Config{ObjectEndpoint: srv.URL, PoseEndpoint: srv.URL})
}

func TestPipelineSuppressesInferenceInMapMode(t *testing.T) {
	p := New(Config{CameraID: "A", ProcessWidth: 64, ProcessHeight: 64}, &fakeDevice{img: solid(64, 64, color.RGBA{0, 0, 0, 255})}, newTestDetectorServer(t), nil)
	if p.Mode() != ModeMap {
		t.Fatalf("expected boot mode to be map, got %s", p.Mode())
	}

	b := p.runInference(testFrame(t, p))
	if b != nil {
		t.Fatalf("runInference should only be reachable in object mode via inferenceLoop gating, got %+v", b)
	}
}

func TestPipelineEmitsRescueLevelForFallenPerson(t *testing.T) {
	p := New(Config{CameraID: "A", ProcessWidth: 64, ProcessHeight: 64}, &fakeDevice{img: solid(64, 64, color.RGBA{0, 0, 0, 255})}, newTestDetectorServer(t), nil)
	p.setMode(ModeObject)

	b := p.runInference(testFrame(t, p))
	if b == nil || len(b.Detections) != 1 {
		t.Fatalf("expected one detection, got %+v", b)
	}
	d := b.Detections[0]
	if d.RescueLevel == nil || *d.RescueLevel != 1 {
		t.Fatalf("expected rescue level 1 on first fallen report, got %+v", d)
	}
}

func TestPipelineAssignsStableObjectIDAcrossFrames(t *testing.T) {
	p := New(Config{CameraID: "A", ProcessWidth: 64, ProcessHeight: 64}, &fakeDevice{img: solid(64, 64, color.RGBA{0, 0, 0, 255})}, newTestDetectorServer(t), nil)
	p.setMode(ModeObject)

	f := testFrame(t, p)
	b1 := p.runInference(f)
	b2 := p.runInference(f)
	if b1 == nil || b2 == nil || len(b1.Detections) != 1 || len(b2.Detections) != 1 {
		t.Fatalf("expected one detection per pass")
	}
	if b1.Detections[0].ObjectID != b2.Detections[0].ObjectID {
		t.Fatalf("expected stable object id, got %d then %d", b1.Detections[0].ObjectID, b2.Detections[0].ObjectID)
	}
}

func TestSetModeViaStreamCommand(t *testing.T) {
	received := make(chan protocol.CommandResponse, 1)
	ln, err := stream.Serve("127.0.0.1:0", func(conn *stream.Conn) {
		defer conn.Close()
		conn.Send(protocol.ModeCommand{Type: protocol.TypeCommand, Command: "set_mode_object"})
		line, err := conn.Receive()
		if err != nil {
			return
		}
		var resp protocol.CommandResponse
		if err := json.Unmarshal(line, &resp); err == nil {
			received <- resp
		}
	})
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	defer ln.Close()

	p := New(Config{CameraID: "A", ProcessWidth: 64, ProcessHeight: 64}, &fakeDevice{img: solid(64, 64, color.RGBA{0, 0, 0, 255})}, newTestDetectorServer(t), nil)
	p.Run(ln.Addr().String())
	defer p.Stop()

	select {
	case resp := <-received:
		if resp.Command != "set_mode_object" || resp.Result != "ok" {
			t.Fatalf("unexpected response: %+v", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never received command ack")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Mode() == ModeObject {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected mode to become object, got %s", p.Mode())
}

func testFrame(t *testing.T, p *Pipeline) *frame.Frame {
	t.Helper()
	img := solid(64, 64, color.RGBA{0, 0, 0, 255})
	b := img.Bounds()
	return &frame.Frame{
		CameraID: p.cameraID,
		FrameID:  frame.NewFrameID(time.Now()),
		Width:    b.Dx(),
		Height:   b.Dy(),
		Pix:      img,
		Captured: time.Now(),
	}
}
