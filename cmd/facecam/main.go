// facecam serves a page with a single toggle that starts the local
// camera and draws a box around every detected face.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-facecam/internal/config"
	"github.com/teslashibe/go-facecam/internal/httpc"
	"github.com/teslashibe/go-facecam/internal/log"
	"github.com/teslashibe/go-facecam/pkg/cv"
	"github.com/teslashibe/go-facecam/pkg/detection"
	"github.com/teslashibe/go-facecam/pkg/metrics"
	"github.com/teslashibe/go-facecam/pkg/viewer"
	"github.com/teslashibe/go-facecam/pkg/vision"
	"github.com/teslashibe/go-facecam/pkg/web"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Parse(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}

	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error("facecam stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := log.L()
	m := metrics.New()

	lib := cv.NewLibrary(cfg.JPEGQuality)
	camera := cv.NewCamera(cv.CameraConfig{
		Device: cfg.Device,
		Width:  cfg.Width,
		Height: cfg.Height,
		Logger: logger,
	})
	resource := vision.NewResource(&vision.FileLoader{
		Library:  lib,
		Path:     cfg.ClassifierPath,
		CacheDir: cfg.CacheDir,
		Client:   httpc.Client,
	}, m, logger)
	clock := detection.NewFrameClock(cfg.FPS)

	server := web.NewServer(web.Config{Port: cfg.Port, Metrics: m, Logger: logger})

	v, err := viewer.New(viewer.Config{
		Source:    camera,
		Surface:   web.NewPreview(server.VideoHub(), lib, clock.Interval(), logger),
		Canvas:    web.NewCanvas(server.CanvasHub()),
		Resource:  resource,
		Scheduler: clock,
		OnChange:  server.PublishStatus,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	server.Attach(v)

	v.Mount(ctx)
	defer v.Unmount()

	log.Info("facecam ready",
		"url", "http://localhost:"+cfg.Port,
		"device", cfg.Device,
		"classifier", cfg.ClassifierPath,
		"fps", cfg.FPS,
	)
	return server.Run(ctx)
}
