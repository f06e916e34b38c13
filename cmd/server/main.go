// Command server hosts the FALCON dispatch core (spec §4.15, §13 process
// topology): the four stream acceptors, the shared video-ingress receiver,
// the frame buffer, first-observation gate, risk state machine, and event
// repository.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"falcon/internal/area"
	"falcon/internal/auth"
	"falcon/internal/config"
	"falcon/internal/dispatch"
	"falcon/internal/framebuffer"
	"falcon/internal/repository"
)

func main() {
	configPathF := flag.String("config", "server.toml", "path to the dispatch-core TOML config")
	flag.Parse()

	logger := log.New(os.Stderr, "[server] ", log.Ltime)

	cfg, err := config.LoadServer(*configPathF)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	repo, err := repository.Open(cfg.Repository.DBPath, cfg.Repository.ImgRoot)
	if err != nil {
		logger.Fatalf("open repository: %v", err)
	}
	defer repo.Close()

	polygons := make([]area.Polygon, 0, len(cfg.Areas))
	for _, a := range cfg.Areas {
		vertices := make([]area.Point, 0, len(a.Vertices))
		for _, v := range a.Vertices {
			vertices = append(vertices, area.Point{X: v[0], Y: v[1]})
		}
		polygons = append(polygons, area.Polygon{ID: a.ID, Vertices: vertices})
	}
	areas := area.NewMap(polygons)

	authn := auth.NewAuthenticator(auth.Config{
		Enabled:      cfg.Auth.Enabled,
		Username:     cfg.Auth.Username,
		PasswordHash: cfg.Auth.PasswordHash,
		Secret:       cfg.Auth.Secret,
		TTLMinutes:   cfg.Auth.TokenTTLMinutes,
	})
	if authn.IsEnabled() {
		logger.Printf("console login handshake enabled (user: %s)", cfg.Auth.Username)
	} else {
		logger.Println("console login handshake disabled (set auth.enabled = true in server.toml to require console login)")
	}

	windowSeconds := cfg.Buffer.WindowSeconds
	if windowSeconds <= 0 {
		windowSeconds = framebuffer.DefaultWindow.Seconds()
	}
	buf := framebuffer.New(time.Duration(windowSeconds * float64(time.Second)))

	core := dispatch.New(cfg.Listen, buf, repo, areas, authn)
	if err := core.Serve(); err != nil {
		logger.Fatalf("serve: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	logger.Printf("exiting (%v)", <-sig)

	core.Shutdown()
	logger.Println("exited")
}
