// Package protocol defines the wire grammar carried over the stream message
// transport (spec §4.3, §6): one JSON object per line, a "type" discriminator
// in {command, response, event, heartbeat}, and discriminator fields per
// kind. Operator-console and pilot-query short codes (ME_OD, MC_CA, BR_INQ,
// ...) are carried as the Code/Payload fields of the same envelope.
package protocol

import "encoding/json"

// MessageType is the "type" discriminator shared by every envelope.
type MessageType string

const (
	TypeCommand   MessageType = "command"
	TypeResponse  MessageType = "response"
	TypeEvent     MessageType = "event"
	TypeHeartbeat MessageType = "heartbeat"
)

// Envelope is the minimal shape every line decodes into; callers switch on
// Type (and, for command/event, Command/Event) to pick a concrete struct.
type Envelope struct {
	Type    MessageType `json:"type"`
	Command string      `json:"command,omitempty"`
	Event   string      `json:"event,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// Peek decodes just the envelope discriminator fields from a raw line.
func Peek(line []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(line, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// DetectionDTO is one detection within an object_detected event, matching
// the wire shape in spec §6.
type DetectionDTO struct {
	ObjectID     int64  `json:"object_id"`
	Class        string `json:"class"`
	BBox         [4]int `json:"bbox"`
	Confidence   float64 `json:"confidence"`
	ImgID        int64   `json:"img_id"`
	RescueLevel  *string `json:"rescue_level,omitempty"`
}

// ObjectDetectedEvent is the camera -> server detection-ingest message.
type ObjectDetectedEvent struct {
	Type       MessageType    `json:"type"`
	Event      string         `json:"event"` // "object_detected"
	CameraID   string         `json:"camera_id"`
	Detections []DetectionDTO `json:"detections"`
}

// NewObjectDetectedEvent builds a ready-to-marshal event.
func NewObjectDetectedEvent(cameraID string, detections []DetectionDTO) ObjectDetectedEvent {
	return ObjectDetectedEvent{Type: TypeEvent, Event: "object_detected", CameraID: cameraID, Detections: detections}
}

// ModeCommand is the server -> camera mode-control message
// (set_mode_object / set_mode_map).
type ModeCommand struct {
	Type    MessageType `json:"type"`
	Command string      `json:"command"`
}

// CommandResponse acknowledges a command with a result tag.
type CommandResponse struct {
	Type    MessageType `json:"type"`
	Command string      `json:"command"`
	Result  string      `json:"result"`
}

// NewCommandResponse builds an "ok" (or any other result) acknowledgement.
func NewCommandResponse(command, result string) CommandResponse {
	return CommandResponse{Type: TypeResponse, Command: command, Result: result}
}

// BirdChangedEvent is the bird-subsystem -> server proposed bird-risk level.
type BirdChangedEvent struct {
	Type   MessageType `json:"type"`
	Event  string      `json:"event"` // "BR_CHANGED"
	Result string      `json:"result"` // BR_LOW | BR_MEDIUM | BR_HIGH
}

// LoginCommand is the operator/pilot console login handshake (spec §10.3,
// an ambient addition; camera ingest and the bird subsystem skip it).
type LoginCommand struct {
	Type    MessageType `json:"type"`
	Command string      `json:"command"` // "login"
	Token   string      `json:"token"`
}

// ModeDegradedEvent notifies the server that a camera pipeline fell back to
// map mode on its own after repeated detector failures (spec §7
// DetectorFailure: "notify the operator console via a state-change event").
// The dispatch core forwards it to connected operator consoles as an
// OperatorMessage; it is not itself part of §6's short-code grammar.
type ModeDegradedEvent struct {
	Type     MessageType `json:"type"`
	Event    string      `json:"event"` // "mode_degraded"
	CameraID string      `json:"camera_id"`
	Reason   string      `json:"reason"`
}

// NewModeDegradedEvent builds a ready-to-marshal event.
func NewModeDegradedEvent(cameraID, reason string) ModeDegradedEvent {
	return ModeDegradedEvent{Type: TypeEvent, Event: "mode_degraded", CameraID: cameraID, Reason: reason}
}

// Heartbeat keeps idle stream connections distinguishable from a dead peer
// without requiring a read timeout (spec §5 says stream reads are
// level-triggered / untimed; heartbeats are an optional liveness signal a
// peer may send, never required).
type Heartbeat struct {
	Type MessageType `json:"type"`
}

// OperatorMessage carries the colon/comma/semicolon-coded operator-console
// and pilot-query vocabulary from spec §6 (ME_OD, MC_CA, BR_INQ, ...) inside
// the same line-JSON envelope used elsewhere on the stream transport.
//
// Code is the short token itself, optionally with an inline ":body" (e.g.
// "MC_OD:42"). Payload holds any additional comma-separated fields /
// semicolon-separated records for responses that carry structured detail
// (e.g. an object-detail response).
type OperatorMessage struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Payload string      `json:"payload,omitempty"`
}

func NewOperatorEvent(code string) OperatorMessage {
	return OperatorMessage{Type: TypeEvent, Code: code}
}

func NewOperatorCommand(code string) OperatorMessage {
	return OperatorMessage{Type: TypeCommand, Code: code}
}

func NewOperatorResponse(code, payload string) OperatorMessage {
	return OperatorMessage{Type: TypeResponse, Code: code, Payload: payload}
}
