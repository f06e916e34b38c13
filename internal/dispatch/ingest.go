package dispatch

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"strconv"

	"falcon/internal/area"
	"falcon/internal/framebuffer"
	"falcon/internal/frame"
	"falcon/internal/protocol"
	"falcon/internal/repository"
	"falcon/internal/transport/stream"

	"github.com/google/uuid"
)

// handleIngest serves one detection-ingest connection (spec §4.15): a
// trusted camera host, no login handshake. Each accepted connection runs
// its own reader task, matching §5's scheduling model.
func (c *Core) handleIngest(conn *stream.Conn) {
	connID := uuid.NewString()
	defer conn.Close()

	var cameraID string
	for {
		line, err := conn.Receive()
		if err != nil {
			if cameraID != "" {
				c.videoRecv.Unregister(cameraID)
			}
			log.Printf("[Dispatch:Ingest:%s] connection closed: %v", connID, err)
			return
		}

		env, err := protocol.Peek(line)
		if err != nil {
			log.Printf("[Dispatch:Ingest:%s] malformed message, discarding: %v", connID, err)
			continue
		}
		if env.Type == protocol.TypeEvent && env.Event == "mode_degraded" {
			var mode protocol.ModeDegradedEvent
			if err := unmarshalInto(line, &mode); err != nil {
				log.Printf("[Dispatch:Ingest:%s] malformed mode_degraded event: %v", connID, err)
				continue
			}
			c.handleModeDegraded(mode)
			continue
		}
		if env.Type != protocol.TypeEvent || env.Event != "object_detected" {
			continue
		}

		var ev protocol.ObjectDetectedEvent
		if err := unmarshalInto(line, &ev); err != nil {
			log.Printf("[Dispatch:Ingest:%s] malformed object_detected event: %v", connID, err)
			continue
		}

		if cameraID == "" && ev.CameraID != "" {
			cameraID = ev.CameraID
			c.videoRecv.Register(cameraID, c.onVideoFrame)
		}

		c.handleObjectDetected(ev)
	}
}

// handleModeDegraded forwards a camera's unsolicited fallback-to-map-mode
// notice (spec §7 DetectorFailure) to every connected operator console.
func (c *Core) handleModeDegraded(mode protocol.ModeDegradedEvent) {
	log.Printf("[Dispatch:Ingest] camera %s degraded to map mode: %s", mode.CameraID, mode.Reason)
	c.broadcastOperatorEvent("ME_DEGRADED:" + mode.CameraID + ":" + mode.Reason)
}

// handleObjectDetected applies the joiner (§4.10), the first-observation
// gate (§4.12), and the operator broadcast (§4.15/§8 scenario 1) for one
// incoming detection batch.
func (c *Core) handleObjectDetected(ev protocol.ObjectDetectedEvent) {
	if len(ev.Detections) == 0 {
		return
	}

	frameID := ev.Detections[0].ImgID
	if !c.acceptFrameOrder(ev.CameraID, frameID) {
		log.Printf("[Dispatch:Ingest] discarding out-of-order batch for camera %s frame %d", ev.CameraID, frameID)
		return
	}

	detections := make([]framebuffer.Detection, 0, len(ev.Detections))
	objectIDs := make([]int64, 0, len(ev.Detections))
	for _, d := range ev.Detections {
		var level *int
		if d.RescueLevel != nil {
			if v, err := strconv.Atoi(*d.RescueLevel); err == nil {
				level = &v
			}
		}
		detections = append(detections, framebuffer.Detection{
			ObjectID:    d.ObjectID,
			ClassTag:    d.Class,
			BBox:        d.BBox,
			Confidence:  d.Confidence,
			RescueLevel: level,
		})
		objectIDs = append(objectIDs, d.ObjectID)
		c.recordDetail(d.ObjectID, ev.CameraID, d.Class, d.BBox)
	}
	c.buffer.Attach(ev.CameraID, frameID, detections)

	newIDs, _ := c.firstSeen.Partition(ev.CameraID, objectIDs)
	if len(newIDs) > 0 {
		newSet := make(map[int64]bool, len(newIDs))
		for _, id := range newIDs {
			newSet[id] = true
		}
		for _, d := range ev.Detections {
			if newSet[d.ObjectID] {
				c.persistFirstObservation(ev.CameraID, d, frameID)
			}
		}
	}

	c.broadcastObjectDetected(ev)
}

// persistFirstObservation crops the detection's bbox from the frame that
// produced it and saves one event row (spec §4.12, §4.14). On success the
// id is admitted to the first-observation gate; on failure it is left out
// so the next detection of the same id retries (spec §7 RepositoryFailure).
func (c *Core) persistFirstObservation(cameraID string, d protocol.DetectionDTO, frameID int64) {
	f := c.buffer.Get(cameraID, frameID)
	if f == nil {
		log.Printf("[Dispatch:Ingest] frame %d for camera %s no longer buffered, cannot crop object %d", frameID, cameraID, d.ObjectID)
		return
	}

	crop, err := cropJPEG(f.Pix, d.BBox)
	if err != nil {
		log.Printf("[Dispatch:Ingest] crop failed for object %d: %v", d.ObjectID, err)
		return
	}

	pt := area.BottomCenter(area.BBox{X1: d.BBox[0], Y1: d.BBox[1], X2: d.BBox[2], Y2: d.BBox[3]})
	areaID := ""
	if c.areas != nil {
		areaID = c.areas.Resolve(area.BBox{X1: d.BBox[0], Y1: d.BBox[1], X2: d.BBox[2], Y2: d.BBox[3]})
	}

	ok := c.repo.SaveEventLogged(repository.EventHazard, cameraID, d.ObjectID, d.Class, pt.X, pt.Y, areaID, f.Captured, crop)
	if ok {
		c.firstSeen.Admit(cameraID, d.ObjectID)
	}
}

func cropJPEG(img image.Image, bbox [4]int) ([]byte, error) {
	rect := image.Rect(bbox[0], bbox[1], bbox[2], bbox[3]).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("dispatch: empty crop region %v", bbox)
	}
	cropped := image.NewRGBA(rect)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			cropped.Set(x, y, img.At(x, y))
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("dispatch: encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

// onVideoFrame is the datagram.Receiver handler registered per camera id:
// it feeds the frame buffer and fans the frame out, annotated, to every
// operator console currently viewing that camera (§4.11).
func (c *Core) onVideoFrame(f *frame.Frame) {
	c.buffer.Put(f)
	c.forEachOperator(func(s *operatorSession) {
		s.onVideoFrame(c, f)
	})
}
