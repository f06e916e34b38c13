// Package detect wraps the external object and pose detector services
// behind one adapter interface (spec §4.5, §9 "sum type behind one adapter
// interface"). The detector's algorithmic internals are out of scope (spec
// §1 Non-goals); here they are modeled purely as HTTP+JSON services, the
// same client shape the teacher uses for its YOLO/DINOv3 backends.
package detect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// Mode selects what the object detector returns for a frame.
type Mode string

const (
	ModeObject Mode = "object" // normal per-frame detection
	ModeMarker Mode = "marker" // calibration-only, out-of-band (spec §4.5)
)

// MaxBBoxAreaFraction is the bbox-area filter threshold: boxes larger than
// this fraction of the frame area are rejected as spurious (spec §4.5).
const MaxBBoxAreaFraction = 0.5

// Detection is one raw detector observation before tracking/refinement.
type Detection struct {
	ClassTag    string
	BBox        [4]int // x1,y1,x2,y2
	Confidence  float64
	DetectorID  int64 // detector-assigned short-lived track id, if any
}

// CalibrationMarker is a marker-mode observation (spec §4.5: "used only at
// startup; treated as an out-of-band capability").
type CalibrationMarker struct {
	Homography [9]float64
	Scale      float64
}

// Keypoint is one pose-estimation landmark.
type Keypoint struct {
	X, Y       float64
	Confidence float64
	Name       string
}

// PoseStatus mirrors rescue.PoseStatus's vocabulary at the adapter boundary
// to avoid coupling this package to the rescue package.
type PoseStatus string

const (
	PoseStanding PoseStatus = "STANDING"
	PoseFallen   PoseStatus = "FALLEN"
	PoseUnknown  PoseStatus = "UNKNOWN"
)

// PoseReport is the result of a detectPose call.
type PoseReport struct {
	Status    PoseStatus
	Keypoints []Keypoint
}

type objectResponseDTO struct {
	Detections []struct {
		Class      string  `json:"class"`
		TrackID    int64   `json:"track_id"`
		Confidence float64 `json:"confidence"`
		BBox       [4]int  `json:"bbox"`
	} `json:"detections"`
}

type markerResponseDTO struct {
	Markers []struct {
		Homography [9]float64 `json:"homography"`
		Scale      float64    `json:"scale"`
	} `json:"markers"`
}

type poseResponseDTO struct {
	Status    string `json:"status"`
	Keypoints []struct {
		X          float64 `json:"x"`
		Y          float64 `json:"y"`
		Confidence float64 `json:"confidence"`
		Name       string  `json:"name"`
	} `json:"keypoints"`
}

// Adapter is an HTTP+JSON client for one external detector service,
// covering both the object/marker detector and the pose detector (two
// endpoints on the same or different hosts).
type Adapter struct {
	objectEndpoint string
	poseEndpoint   string
	client         *http.Client

	mu      sync.RWMutex
	healthy bool
}

// Config names the two backend endpoints (spec §6 Configuration).
type Config struct {
	ObjectEndpoint string
	PoseEndpoint   string
	Timeout        time.Duration
}

// New creates an Adapter. A zero Timeout defaults to 5 seconds, matched to
// the soft per-frame inference budget in spec §5.
func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		objectEndpoint: cfg.ObjectEndpoint,
		poseEndpoint:   cfg.PoseEndpoint,
		client:         &http.Client{Timeout: timeout},
		healthy:        true,
	}
}

// DetectObjects runs the object (or marker) detector on frame and returns
// filtered detections. In ModeMarker, detections are instead calibration
// markers and nil is returned for the Detection slice's rescue-relevant
// fields (callers in marker mode use DetectMarkers instead).
func (a *Adapter) DetectObjects(frameArea image.Rectangle, jpegBytes []byte, mode Mode) ([]Detection, error) {
	body, contentType, err := multipartJPEG(jpegBytes)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, a.objectEndpoint+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("detect: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	q := req.URL.Query()
	q.Set("mode", string(mode))
	req.URL.RawQuery = q.Encode()

	resp, err := a.client.Do(req)
	if err != nil {
		a.setHealthy(false)
		return nil, fmt.Errorf("detect: object request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("detect: object detector returned %d: %s", resp.StatusCode, string(data))
	}

	var dto objectResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("detect: decode object response: %w", err)
	}

	frameAreaPx := frameArea.Dx() * frameArea.Dy()
	out := make([]Detection, 0, len(dto.Detections))
	for _, d := range dto.Detections {
		w := d.BBox[2] - d.BBox[0]
		h := d.BBox[3] - d.BBox[1]
		if w <= 0 || h <= 0 {
			continue
		}
		if frameAreaPx > 0 && float64(w*h) > MaxBBoxAreaFraction*float64(frameAreaPx) {
			continue // spurious: bbox-area filter (spec §4.5)
		}
		out = append(out, Detection{
			ClassTag:   d.Class,
			BBox:       d.BBox,
			Confidence: d.Confidence,
			DetectorID: d.TrackID,
		})
	}
	a.setHealthy(true)
	return out, nil
}

// DetectMarkers runs the detector in calibration mode.
func (a *Adapter) DetectMarkers(jpegBytes []byte) ([]CalibrationMarker, error) {
	body, contentType, err := multipartJPEG(jpegBytes)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, a.objectEndpoint+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("detect: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	q := req.URL.Query()
	q.Set("mode", string(ModeMarker))
	req.URL.RawQuery = q.Encode()

	resp, err := a.client.Do(req)
	if err != nil {
		a.setHealthy(false)
		return nil, fmt.Errorf("detect: marker request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("detect: marker detector returned %d: %s", resp.StatusCode, string(data))
	}

	var dto markerResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("detect: decode marker response: %w", err)
	}
	out := make([]CalibrationMarker, 0, len(dto.Markers))
	for _, m := range dto.Markers {
		out = append(out, CalibrationMarker{Homography: m.Homography, Scale: m.Scale})
	}
	return out, nil
}

// DetectPose runs the pose detector on one full frame. Called only when at
// least one person-class detection exists (spec §4.9).
func (a *Adapter) DetectPose(jpegBytes []byte) (PoseReport, error) {
	body, contentType, err := multipartJPEG(jpegBytes)
	if err != nil {
		return PoseReport{}, err
	}
	resp, err := a.client.Post(a.poseEndpoint+"/pose", contentType, body)
	if err != nil {
		a.setHealthy(false)
		return PoseReport{}, fmt.Errorf("detect: pose request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return PoseReport{}, fmt.Errorf("detect: pose detector returned %d: %s", resp.StatusCode, string(data))
	}

	var dto poseResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return PoseReport{}, fmt.Errorf("detect: decode pose response: %w", err)
	}
	report := PoseReport{Status: PoseStatus(dto.Status)}
	for _, kp := range dto.Keypoints {
		report.Keypoints = append(report.Keypoints, Keypoint{X: kp.X, Y: kp.Y, Confidence: kp.Confidence, Name: kp.Name})
	}
	a.setHealthy(true)
	return report, nil
}

func (a *Adapter) setHealthy(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.healthy = v
}

// Healthy reports whether the last call to either backend succeeded.
func (a *Adapter) Healthy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.healthy
}

func multipartJPEG(jpegBytes []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, "", fmt.Errorf("detect: build multipart: %w", err)
	}
	if _, err := fw.Write(jpegBytes); err != nil {
		return nil, "", fmt.Errorf("detect: write multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("detect: close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
