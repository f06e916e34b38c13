// Package config provides TOML configuration loading for both FALCON
// binaries (spec §6 "Configuration"): cmd/ids reads an IDSConfig, cmd/server
// reads a ServerConfig. Structure and Default()/Load() pattern are
// grounded on the teacher pack's config loader.
//
// Example ids.toml:
//
//	[camera]
//	id = "A"
//	device = "/dev/video0"
//	capture_width = 1920
//	capture_height = 1080
//	process_width = 640
//	process_height = 360
//	jpeg_quality = 90
//
//	[server]
//	host = "127.0.0.1"
//	detection_port = 9100
//	video_port = 9500
//
//	[tracker]
//	lost_threshold = 20
//
//	[rescue]
//	max_level = 5
//
//	[hsv]
//	vest_hue_min = 20
//	vest_hue_max = 50
//	vest_fraction = 0.10
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// IDSConfig is the per-camera pipeline host's configuration.
type IDSConfig struct {
	Camera  CameraConfig  `toml:"camera"`
	Server  ServerAddr    `toml:"server"`
	Tracker TrackerConfig `toml:"tracker"`
	Rescue  RescueConfig  `toml:"rescue"`
	HSV     HSVConfig     `toml:"hsv"`
	Detect  DetectConfig  `toml:"detect"`
}

// CameraConfig holds capture device settings for one camera.
type CameraConfig struct {
	ID            string `toml:"id"`
	DisplayName   string `toml:"display_name"`
	Device        string `toml:"device"`
	CaptureWidth  int    `toml:"capture_width"`
	CaptureHeight int    `toml:"capture_height"`
	ProcessWidth  int    `toml:"process_width"`
	ProcessHeight int    `toml:"process_height"`
	JPEGQuality   int    `toml:"jpeg_quality"`
}

// ServerAddr names the central server's endpoints as seen from a camera.
type ServerAddr struct {
	Host           string `toml:"host"`
	DetectionPort  int    `toml:"detection_port"`
	VideoPort      int    `toml:"video_port"`
}

// TrackerConfig configures the per-camera tracker.
type TrackerConfig struct {
	LostThreshold int `toml:"lost_threshold"`
}

// RescueConfig configures the rescue-level estimator.
type RescueConfig struct {
	MaxLevel int `toml:"max_level"`
}

// HSVConfig configures the subclass refiner's color windows (spec §4.7).
// LoadIDS starts from DefaultIDS, whose windows equal
// refine.DefaultConfig()'s, so those windows apply whenever a config file
// is absent or leaves this section out.
type HSVConfig struct {
	VestHueMin, VestHueMax float64 `toml:"vest_hue_min"`
	VestSatMin, VestSatMax float64 `toml:"vest_sat_min"`
	VestValMin, VestValMax float64 `toml:"vest_val_min"`
	VestFraction           float64 `toml:"vest_fraction"`

	YellowHueMin, YellowHueMax float64 `toml:"yellow_hue_min"`
	YellowSatMin, YellowSatMax float64 `toml:"yellow_sat_min"`
	YellowValMin, YellowValMax float64 `toml:"yellow_val_min"`
	YellowFraction             float64 `toml:"yellow_fraction"`

	BlackHueMin, BlackHueMax float64 `toml:"black_hue_min"`
	BlackSatMin, BlackSatMax float64 `toml:"black_sat_min"`
	BlackValMin, BlackValMax float64 `toml:"black_val_min"`
	BlackFraction            float64 `toml:"black_fraction"`
}

// DetectConfig names the external detector service endpoints.
type DetectConfig struct {
	ObjectEndpoint string `toml:"object_endpoint"`
	PoseEndpoint   string `toml:"pose_endpoint"`
}

// DefaultIDS returns the default camera-host configuration.
func DefaultIDS() *IDSConfig {
	return &IDSConfig{
		Camera: CameraConfig{
			ID:            "A",
			Device:        "/dev/video0",
			CaptureWidth:  1920,
			CaptureHeight: 1080,
			ProcessWidth:  640,
			ProcessHeight: 360,
			JPEGQuality:   90,
		},
		Server: ServerAddr{
			Host:          "127.0.0.1",
			DetectionPort: 9100,
			VideoPort:     9500,
		},
		Tracker: TrackerConfig{LostThreshold: 20},
		Rescue:  RescueConfig{MaxLevel: 5},
		HSV: HSVConfig{
			VestHueMin: 20, VestHueMax: 50,
			VestSatMin: 0.4, VestSatMax: 1.0,
			VestValMin: 0.4, VestValMax: 1.0,
			VestFraction: 0.10,

			YellowHueMin: 40, YellowHueMax: 65,
			YellowSatMin: 0.3, YellowSatMax: 1.0,
			YellowValMin: 0.3, YellowValMax: 1.0,
			YellowFraction: 0.05,

			BlackHueMin: 0, BlackHueMax: 360,
			BlackSatMin: 0, BlackSatMax: 1.0,
			BlackValMin: 0, BlackValMax: 0.2,
			BlackFraction: 0.01,
		},
		Detect: DetectConfig{
			ObjectEndpoint: "http://127.0.0.1:8081",
			PoseEndpoint:   "http://127.0.0.1:8082",
		},
	}
}

// LoadIDS reads and parses path, falling back to defaults for anything
// unset (or for the whole config, if path is empty or missing).
func LoadIDS(path string) (*IDSConfig, error) {
	cfg := DefaultIDS()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ServerConfig is the central dispatch core's configuration.
type ServerConfig struct {
	Listen     ListenConfig     `toml:"listen"`
	Repository RepositoryConfig `toml:"repository"`
	Buffer     BufferConfig     `toml:"buffer"`
	Auth       AuthConfig       `toml:"auth"`
	Areas      []AreaConfig     `toml:"area"`
}

// ListenConfig names the four stream-endpoint ports plus the shared video
// ingress port (spec §4.15).
type ListenConfig struct {
	Host             string `toml:"host"`
	DetectionPort    int    `toml:"detection_port"`
	OperatorPort     int    `toml:"operator_port"`
	BirdPort         int    `toml:"bird_port"`
	PilotPort        int    `toml:"pilot_port"`
	VideoIngressPort int    `toml:"video_ingress_port"`
	VideoEgressBase  int    `toml:"video_egress_base_port"`
}

// RepositoryConfig names the SQLite database file and crop image root.
type RepositoryConfig struct {
	DBPath  string `toml:"db_path"`
	ImgRoot string `toml:"img_root"`
}

// BufferConfig configures the server-side frame buffer window.
type BufferConfig struct {
	WindowSeconds float64 `toml:"window_seconds"`
}

// AuthConfig configures the operator/pilot JWT login handshake (spec
// §10.3). Enabled defaults to false: an operator deploying without a
// console login step (local development, a trusted network) leaves auth
// off by omitting this section entirely.
type AuthConfig struct {
	Enabled         bool   `toml:"enabled"`
	Username        string `toml:"username"`
	PasswordHash    string `toml:"password_hash"`
	Secret          string `toml:"secret"`
	TokenTTLMinutes int    `toml:"token_ttl_minutes"`
}

// AreaConfig is one named polygon for pixel-to-zone mapping (spec §6).
type AreaConfig struct {
	ID       string     `toml:"id"`
	Vertices [][2]float64 `toml:"vertices"`
}

// DefaultServer returns the default dispatch-core configuration.
func DefaultServer() *ServerConfig {
	return &ServerConfig{
		Listen: ListenConfig{
			Host:             "0.0.0.0",
			DetectionPort:    9100,
			OperatorPort:     9200,
			BirdPort:         9300,
			PilotPort:        9400,
			VideoIngressPort: 9500,
			VideoEgressBase:  9600,
		},
		Repository: RepositoryConfig{DBPath: "falcon.db", ImgRoot: "img"},
		Buffer:     BufferConfig{WindowSeconds: 3},
		Auth:       AuthConfig{Enabled: false, Secret: "change-me", TokenTTLMinutes: 60},
	}
}

// LoadServer reads and parses path, falling back to defaults.
func LoadServer(path string) (*ServerConfig, error) {
	cfg := DefaultServer()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
