// Package config provides configuration for the facecam command.
// Values come from flags first, then environment variables (optionally
// loaded from a .env file), then defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultPort           = "8090"
	DefaultDevice         = 0
	DefaultWidth          = 640
	DefaultHeight         = 480
	DefaultFPS            = 30
	DefaultJPEGQuality    = 80
	DefaultClassifierPath = "models/haarcascade_frontalface_default.xml"
	DefaultCacheDir       = ".cache/facecam"
	DefaultLogLevel       = "info"
)

// Config holds everything cmd/facecam needs to wire the service.
type Config struct {
	Port     string
	LogLevel string

	// Camera. Preset, when set, supplies Width and Height unless they
	// are given explicitly.
	Preset      string
	Device      int
	Width       int
	Height      int
	FPS         int
	JPEGQuality int

	// Classifier resource. ClassifierPath may be a local file or an
	// http(s) URL; URLs are fetched once into CacheDir.
	ClassifierPath string
	CacheDir       string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:           DefaultPort,
		LogLevel:       DefaultLogLevel,
		Device:         DefaultDevice,
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		FPS:            DefaultFPS,
		JPEGQuality:    DefaultJPEGQuality,
		ClassifierPath: DefaultClassifierPath,
		CacheDir:       DefaultCacheDir,
	}
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are ignored; variables already set are not overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// FromEnv overlays environment variables onto cfg.
func FromEnv(cfg Config, getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v, ok := envInt(getenv, "CAMERA_DEVICE"); ok {
		cfg.Device = v
	}
	if v := getenv("CAMERA_PRESET"); v != "" {
		cfg.Preset = v
		if r, err := LookupPreset(v); err == nil {
			cfg.Width, cfg.Height = r.Width, r.Height
		}
	}
	if v, ok := envInt(getenv, "CAMERA_WIDTH"); ok {
		cfg.Width = v
	}
	if v, ok := envInt(getenv, "CAMERA_HEIGHT"); ok {
		cfg.Height = v
	}
	if v, ok := envInt(getenv, "CAMERA_FPS"); ok {
		cfg.FPS = v
	}
	if v, ok := envInt(getenv, "JPEG_QUALITY"); ok {
		cfg.JPEGQuality = v
	}
	if v := getenv("CLASSIFIER_PATH"); v != "" {
		cfg.ClassifierPath = v
	}
	if v := getenv("CLASSIFIER_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	return cfg
}

func envInt(getenv func(string) string, key string) (int, bool) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Parse builds a Config from defaults, the environment and command line
// arguments, in increasing priority.
func Parse(args []string, getenv func(string) string) (Config, error) {
	cfg := FromEnv(Default(), getenv)

	fs := flag.NewFlagSet("facecam", flag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "HTTP port for the page and API")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	preset := fs.String("preset", "", "Capture resolution preset: "+strings.Join(PresetNames(), ", "))
	fs.IntVar(&cfg.Device, "device", cfg.Device, "Camera device index")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "Requested frame width")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "Requested frame height")
	fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "Detection loop frame rate")
	fs.IntVar(&cfg.JPEGQuality, "quality", cfg.JPEGQuality, "JPEG quality for page frames (1-100)")
	fs.StringVar(&cfg.ClassifierPath, "classifier", cfg.ClassifierPath, "Haar cascade file path or http(s) URL")
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "Directory for downloaded classifier files")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *preset != "" {
		explicit := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

		cfg.Preset = *preset
		if r, err := LookupPreset(*preset); err == nil {
			if !explicit["width"] {
				cfg.Width = r.Width
			}
			if !explicit["height"] {
				cfg.Height = r.Height
			}
		}
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.Preset != "" {
		if _, err := LookupPreset(c.Preset); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Device < 0 {
		errs = append(errs, "device must not be negative")
	}
	if c.Width < 160 || c.Width > 4096 {
		errs = append(errs, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > 2160 {
		errs = append(errs, "height must be between 120 and 2160")
	}
	if c.FPS < 1 || c.FPS > 120 {
		errs = append(errs, "fps must be between 1 and 120")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, "quality must be between 1 and 100")
	}
	if strings.TrimSpace(c.ClassifierPath) == "" {
		errs = append(errs, "classifier path is required")
	}

	return errs
}

// IsRemote reports whether the classifier path is an http(s) URL.
func (c *Config) IsRemote() bool {
	return strings.HasPrefix(c.ClassifierPath, "http://") || strings.HasPrefix(c.ClassifierPath, "https://")
}
