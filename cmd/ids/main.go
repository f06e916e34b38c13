// Command ids hosts one camera's capture/inference/transport pipeline
// (spec §4.9, §13 process topology): it dials the server's detection-ingest
// and video-ingress endpoints and runs camerapipeline.Pipeline until
// terminated.
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"falcon/internal/camerapipeline"
	"falcon/internal/config"
	"falcon/internal/detect"
	"falcon/internal/refine"
	"falcon/internal/transport/datagram"
)

func main() {
	configPathF := flag.String("config", "ids.toml", "path to the camera-host TOML config")
	flag.Parse()

	logger := log.New(os.Stderr, "[ids] ", log.Ltime)

	cfg, err := config.LoadIDS(*configPathF)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	detector := detect.New(detect.Config{
		ObjectEndpoint: cfg.Detect.ObjectEndpoint,
		PoseEndpoint:   cfg.Detect.PoseEndpoint,
	})

	videoAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.VideoPort))
	sender, err := datagram.NewSender(cfg.Camera.ID, videoAddr)
	if err != nil {
		logger.Fatalf("dial video ingress %s: %v", videoAddr, err)
	}
	defer sender.Close()

	device := camerapipeline.NewFFmpegDevice(cfg.Camera.Device, cfg.Camera.CaptureWidth, cfg.Camera.CaptureHeight, 15)
	defer device.Close()

	pipeline := camerapipeline.New(camerapipeline.Config{
		CameraID:             cfg.Camera.ID,
		ProcessWidth:         cfg.Camera.ProcessWidth,
		ProcessHeight:        cfg.Camera.ProcessHeight,
		JPEGQuality:          cfg.Camera.JPEGQuality,
		TrackerLostThreshold: cfg.Tracker.LostThreshold,
		RescueMax:            cfg.Rescue.MaxLevel,
		Refine: refine.Config{
			VestWindow: refine.HSVWindow{
				HueMin: cfg.HSV.VestHueMin, HueMax: cfg.HSV.VestHueMax,
				SatMin: cfg.HSV.VestSatMin, SatMax: cfg.HSV.VestSatMax,
				ValMin: cfg.HSV.VestValMin, ValMax: cfg.HSV.VestValMax,
			},
			VestFraction: cfg.HSV.VestFraction,
			YellowWindow: refine.HSVWindow{
				HueMin: cfg.HSV.YellowHueMin, HueMax: cfg.HSV.YellowHueMax,
				SatMin: cfg.HSV.YellowSatMin, SatMax: cfg.HSV.YellowSatMax,
				ValMin: cfg.HSV.YellowValMin, ValMax: cfg.HSV.YellowValMax,
			},
			YellowFraction: cfg.HSV.YellowFraction,
			BlackWindow: refine.HSVWindow{
				HueMin: cfg.HSV.BlackHueMin, HueMax: cfg.HSV.BlackHueMax,
				SatMin: cfg.HSV.BlackSatMin, SatMax: cfg.HSV.BlackSatMax,
				ValMin: cfg.HSV.BlackValMin, ValMax: cfg.HSV.BlackValMax,
			},
			BlackFraction: cfg.HSV.BlackFraction,
		},
	}, device, detector, sender)

	detectionAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.DetectionPort))
	logger.Printf("camera %q starting; detection ingest %s, video ingress %s", cfg.Camera.ID, detectionAddr, videoAddr)

	go pipeline.Run(detectionAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	logger.Printf("exiting (%v)", <-sig)

	pipeline.Stop()
	logger.Println("exited")
}
