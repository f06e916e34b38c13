// Package camerapipeline composes the frame codec, datagram transport,
// detector adapter, tracker, subclass refiner and rescue estimator into the
// per-camera cooperative loop described in spec §4.9 (component C1):
// capture, inference and transport stages separated by bounded drop-oldest
// queues, with mode control (object vs. map) driven by commands from the
// server's detection-ingest endpoint. Grounded on the teacher's
// DetectionPipeline/DetectionPipelineManager pair
// (marcopennelli-orbo/internal/pipeline/detection_pipeline.go): one
// goroutine-backed pipeline per camera, config held under a mutex, plain
// bracketed log lines.
package camerapipeline

import (
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"falcon/internal/detect"
	"falcon/internal/frame"
	"falcon/internal/protocol"
	"falcon/internal/queue"
	"falcon/internal/refine"
	"falcon/internal/rescue"
	"falcon/internal/tracker"
	"falcon/internal/transport/datagram"
	"falcon/internal/transport/stream"
)

// Mode mirrors the camera's object/map mode (spec §4.9).
type Mode string

const (
	// ModeMap is the boot-time default: only calibration may be emitted,
	// no object_detected events are sent.
	ModeMap Mode = "map"
	// ModeObject is the normal per-frame detection mode.
	ModeObject Mode = "object"
)

const (
	defaultCaptureQueueCap = 5 // cap→inf, drop-oldest (spec §4.9)
	defaultSendQueueCap    = 2 // inf→send, drop-oldest (spec §4.9)
	captureBackoff         = 100 * time.Millisecond
)

// Config names one camera's processing parameters (spec §6 Configuration).
type Config struct {
	CameraID      string
	ProcessWidth  int
	ProcessHeight int
	JPEGQuality   int // starting quality for the datagram sender's quality ladder

	TrackerLostThreshold int
	RescueMax            int
	Refine               refine.Config

	CaptureQueueCap int
	SendQueueCap    int
}

func (c Config) withDefaults() Config {
	if c.CaptureQueueCap <= 0 {
		c.CaptureQueueCap = defaultCaptureQueueCap
	}
	if c.SendQueueCap <= 0 {
		c.SendQueueCap = defaultSendQueueCap
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = 90
	}
	if c.TrackerLostThreshold <= 0 {
		c.TrackerLostThreshold = tracker.DefaultLostThreshold
	}
	if c.RescueMax <= 0 {
		c.RescueMax = rescue.DefaultMax
	}
	return c
}

// detectionRecord is one post-tracking, post-refinement detection awaiting
// transport (internal to the pipeline; protocol.DetectionDTO is its wire
// shape).
type detectionRecord struct {
	ObjectID    int64
	ClassTag    string
	BBox        [4]int
	Confidence  float64
	RescueLevel *int
}

// batch is one inference pass's output, queued on inf→send.
type batch struct {
	FrameID    int64
	Detections []detectionRecord
}

// Pipeline runs one camera's capture/inference/transport loop.
type Pipeline struct {
	cfg      Config
	cameraID string

	device   CaptureDevice
	detector *detect.Adapter
	tracker  *tracker.Tracker
	rescue   *rescue.Estimator
	sender   *datagram.Sender
	client   *stream.Client

	capToInf  *queue.Queue[*frame.Frame]
	infToSend *queue.Queue[batch]

	mu                  sync.RWMutex
	mode                Mode
	conn                *stream.Conn
	consecutiveFailures int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Pipeline. sender may be nil in tests that don't exercise the
// datagram path.
func New(cfg Config, device CaptureDevice, detector *detect.Adapter, sender *datagram.Sender) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:       cfg,
		cameraID:  cfg.CameraID,
		device:    device,
		detector:  detector,
		tracker:   tracker.New(cfg.TrackerLostThreshold),
		rescue:    rescue.New(cfg.RescueMax),
		sender:    sender,
		capToInf:  queue.New[*frame.Frame](cfg.CaptureQueueCap, queue.DropOldest),
		infToSend: queue.New[batch](cfg.SendQueueCap, queue.DropOldest),
		mode:      ModeMap,
		stopCh:    make(chan struct{}),
	}
}

// Run starts the three pipeline stages and the reconnecting stream client
// to serverAddr. It does not block; call Stop to shut down.
func (p *Pipeline) Run(serverAddr string) {
	p.client = stream.NewClient(serverAddr, p.handleConnect)
	p.wg.Add(3)
	go p.captureLoop()
	go p.inferenceLoop()
	go p.transportLoop()
	go p.client.Run()
	log.Printf("[CameraPipeline:%s] started, dialing %s", p.cameraID, serverAddr)
}

// Stop shuts down the pipeline: queues close, stages observe closed-channel
// and return, the stream client stops, and the datagram sender closes
// (spec §5 cancellation: leaf-to-root, in-flight batches may be dropped).
func (p *Pipeline) Stop() {
	close(p.stopCh)
	p.capToInf.Close()
	p.infToSend.Close()
	if p.client != nil {
		p.client.Stop()
	}
	if p.sender != nil {
		p.sender.Close()
	}
	p.wg.Wait()
	log.Printf("[CameraPipeline:%s] stopped", p.cameraID)
}

// Mode returns the pipeline's current mode.
func (p *Pipeline) Mode() Mode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

func (p *Pipeline) setMode(m Mode) {
	p.mu.Lock()
	p.mode = m
	p.consecutiveFailures = 0
	p.mu.Unlock()
	log.Printf("[CameraPipeline:%s] mode set to %s", p.cameraID, m)
}

func (p *Pipeline) currentConn() *stream.Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

// captureLoop pulls frames from the device, stamps a frame-id, resizes to
// the processing resolution, enqueues for inference (never blocking on it),
// and concurrently sends the frame on the datagram transport (spec §4.9).
func (p *Pipeline) captureLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		img, err := p.device.Capture()
		if err != nil {
			log.Printf("[CameraPipeline:%s] capture error: %v", p.cameraID, err)
			select {
			case <-time.After(captureBackoff):
			case <-p.stopCh:
				return
			}
			continue
		}

		captured := time.Now()
		resized := resize(img, p.cfg.ProcessWidth, p.cfg.ProcessHeight)
		bounds := resized.Bounds()
		f := &frame.Frame{
			CameraID: p.cameraID,
			FrameID:  frame.NewFrameID(captured),
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
			Pix:      resized,
			Captured: captured,
		}

		p.capToInf.Push(f)

		if p.sender != nil {
			go func(fr *frame.Frame) {
				if err := p.sender.Send(fr, p.cfg.JPEGQuality); err != nil {
					log.Printf("[CameraPipeline:%s] datagram send failed: %v", p.cameraID, err)
				}
			}(f)
		}
	}
}

// inferenceLoop dequeues frames, runs detection/refinement/tracking/rescue
// and emits a batch on inf→send (spec §4.9).
func (p *Pipeline) inferenceLoop() {
	defer p.wg.Done()
	for {
		f, ok := p.capToInf.Pop()
		if !ok {
			return
		}
		if p.Mode() != ModeObject {
			continue // map mode: no hot-path inference, only out-of-band calibration
		}
		if b := p.runInference(f); b != nil {
			p.infToSend.Push(*b)
		}
		for _, objectID := range p.tracker.Evicted() {
			p.rescue.Evict(p.cameraID, objectID)
		}
	}
}

func (p *Pipeline) runInference(f *frame.Frame) *batch {
	if p.Mode() != ModeObject {
		return nil
	}
	jpegBytes, err := frame.Encode(f.Pix, 90)
	if err != nil {
		log.Printf("[CameraPipeline:%s] encode for inference failed: %v", p.cameraID, err)
		return nil
	}

	raw, err := p.detector.DetectObjects(image.Rect(0, 0, f.Width, f.Height), jpegBytes, detect.ModeObject)
	if err != nil {
		p.onDetectorFailure(err)
		return nil
	}
	p.resetDetectorFailures()

	records := make([]detectionRecord, 0, len(raw))
	var personIdx []int
	for _, d := range raw {
		class := refine.Refine(f.Pix, refine.BBox{X1: d.BBox[0], Y1: d.BBox[1], X2: d.BBox[2], Y2: d.BBox[3]}, d.ClassTag, p.cfg.Refine)
		objectID := p.tracker.Assign(class, d.DetectorID)
		if class == "person" || class == "work-person" {
			personIdx = append(personIdx, len(records))
		}
		records = append(records, detectionRecord{
			ObjectID:   objectID,
			ClassTag:   class,
			BBox:       d.BBox,
			Confidence: d.Confidence,
		})
	}

	if len(personIdx) > 0 {
		report, err := p.detector.DetectPose(jpegBytes)
		if err != nil {
			log.Printf("[CameraPipeline:%s] pose detector failed: %v", p.cameraID, err)
		} else {
			status := mapPoseStatus(report.Status)
			for _, idx := range personIdx {
				level := p.rescue.Report(p.cameraID, records[idx].ObjectID, status)
				records[idx].RescueLevel = &level
			}
		}
	}

	return &batch{FrameID: f.FrameID, Detections: records}
}

func mapPoseStatus(s detect.PoseStatus) rescue.PoseStatus {
	switch s {
	case detect.PoseFallen:
		return rescue.Fallen
	case detect.PoseStanding:
		return rescue.Standing
	default:
		return rescue.Unknown
	}
}

// onDetectorFailure implements spec §7 DetectorFailure: two consecutive
// failures on the object-detection stage trigger an automatic fallback to
// map mode, with a notification sent to the server over the stream
// connection (the dispatch core fans it out to operator consoles).
func (p *Pipeline) onDetectorFailure(err error) {
	log.Printf("[CameraPipeline:%s] object detector failed: %v", p.cameraID, err)

	p.mu.Lock()
	p.consecutiveFailures++
	degraded := p.consecutiveFailures >= 2
	if degraded {
		p.mode = ModeMap
		p.consecutiveFailures = 0
	}
	conn := p.conn
	p.mu.Unlock()

	if !degraded {
		return
	}
	log.Printf("[CameraPipeline:%s] two consecutive detector failures, falling back to map mode", p.cameraID)
	if conn == nil {
		return
	}
	if sendErr := conn.Send(protocol.NewModeDegradedEvent(p.cameraID, err.Error())); sendErr != nil {
		log.Printf("[CameraPipeline:%s] failed to notify server of mode degrade: %v", p.cameraID, sendErr)
	}
}

func (p *Pipeline) resetDetectorFailures() {
	p.mu.Lock()
	p.consecutiveFailures = 0
	p.mu.Unlock()
}

// transportLoop dequeues batches and sends each as an object_detected
// event; empty batches are suppressed (spec §4.9).
func (p *Pipeline) transportLoop() {
	defer p.wg.Done()
	for {
		b, ok := p.infToSend.Pop()
		if !ok {
			return
		}
		if len(b.Detections) == 0 {
			continue
		}
		conn := p.currentConn()
		if conn == nil {
			log.Printf("[CameraPipeline:%s] no active connection, dropping detection batch for frame %d", p.cameraID, b.FrameID)
			continue
		}
		event := protocol.NewObjectDetectedEvent(p.cameraID, toDTOs(b.Detections))
		if err := conn.Send(event); err != nil {
			log.Printf("[CameraPipeline:%s] send detection batch failed: %v", p.cameraID, err)
		}
	}
}

func toDTOs(records []detectionRecord) []protocol.DetectionDTO {
	out := make([]protocol.DetectionDTO, 0, len(records))
	for _, r := range records {
		dto := protocol.DetectionDTO{
			ObjectID:   r.ObjectID,
			Class:      r.ClassTag,
			BBox:       r.BBox,
			Confidence: r.Confidence,
		}
		if r.RescueLevel != nil {
			s := fmt.Sprintf("%d", *r.RescueLevel)
			dto.RescueLevel = &s
		}
		out = append(out, dto)
	}
	return out
}

// handleConnect is the stream.Client's onConnect callback: it records the
// fresh connection and starts a reader goroutine for server-issued mode
// commands. Called again after every reconnect.
func (p *Pipeline) handleConnect(conn *stream.Conn) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	log.Printf("[CameraPipeline:%s] connected to %s", p.cameraID, conn.RemoteAddr())
	go p.readCommands(conn)
}

func (p *Pipeline) readCommands(conn *stream.Conn) {
	defer conn.Close()
	for {
		line, err := conn.Receive()
		if err != nil {
			log.Printf("[CameraPipeline:%s] connection lost: %v", p.cameraID, err)
			return
		}
		env, err := protocol.Peek(line)
		if err != nil {
			log.Printf("[CameraPipeline:%s] malformed message: %v", p.cameraID, err)
			continue
		}
		if env.Type != protocol.TypeCommand {
			continue
		}

		switch env.Command {
		case "set_mode_object":
			p.setMode(ModeObject)
		case "set_mode_map":
			p.setMode(ModeMap)
		default:
			continue
		}

		if err := conn.Send(protocol.NewCommandResponse(env.Command, "ok")); err != nil {
			log.Printf("[CameraPipeline:%s] failed to ack command %s: %v", p.cameraID, env.Command, err)
		}
	}
}
