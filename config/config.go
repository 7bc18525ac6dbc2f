// Package config loads settings for the device host.
//
// Configuration comes from a single file named by the --config flag or,
// failing that, the IODEVICES_CONFIG environment variable. Without either,
// the defaults apply. There is no discovery of files in standard places.
//
// Files ending in .json or .jsonc are read as JSON with comments and
// trailing commas; anything else is YAML. Both use the same keys:
//
//	window:
//	  backend: ebiten        # ebiten, terminal, fbdev or headless
//	  title: guest display
//	  scale: 2
//	presenter:
//	  interval: 16ms
//	  join_timeout: 500ms
//	snapshot:
//	  compression: zstd
//	runtime:
//	  memory_limit_pages: 1024
//	log:
//	  level: debug
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-iodevices/errors"
	"github.com/wippyai/wasm-iodevices/presenter"
	"github.com/wippyai/wasm-iodevices/snapshot"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "IODEVICES_CONFIG"

// Window backends.
const (
	BackendEbiten   = "ebiten"
	BackendTerminal = "terminal"
	BackendFbdev    = "fbdev"
	BackendHeadless = "headless"
)

// MaxScale bounds the integer window scale factor.
const MaxScale = 16

// MaxMemoryPages is the largest 32-bit wasm memory in pages.
const MaxMemoryPages = 65536

// Config is the complete host configuration.
type Config struct {
	Window    WindowConfig    `yaml:"window"`
	Log       LogConfig       `yaml:"log"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Presenter PresenterConfig `yaml:"presenter"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
}

// WindowConfig selects and sizes the window backend.
type WindowConfig struct {
	// Backend is one of ebiten, terminal, fbdev or headless.
	Backend string `yaml:"backend"`

	// Title is shown by backends that have a title bar.
	Title string `yaml:"title"`

	// FbdevPath is the framebuffer device used by the fbdev backend.
	FbdevPath string `yaml:"fbdev_path"`

	// Scale multiplies the window size. 1 means one screen pixel per
	// device pixel.
	Scale int `yaml:"scale"`
}

// PresenterConfig tunes the presenter loop.
type PresenterConfig struct {
	// Interval is the presenter tick.
	Interval time.Duration `yaml:"interval"`

	// JoinTimeout bounds how long close waits for the presenter.
	JoinTimeout time.Duration `yaml:"join_timeout"`

	// InputQueue bounds buffered input events per device.
	InputQueue int `yaml:"input_queue"`
}

// SnapshotConfig controls snapshot files written by the host.
type SnapshotConfig struct {
	// Compression is none, lz4 or zstd.
	Compression string `yaml:"compression"`
}

// RuntimeConfig tunes the wasm runtime the guest runs in.
type RuntimeConfig struct {
	// MemoryLimitPages caps guest memory in 64 KiB pages. Zero means the
	// wasm maximum of 65536 pages.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `yaml:"level"`

	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Backend:   BackendEbiten,
			Title:     "wasm io device",
			FbdevPath: "/dev/fb0",
			Scale:     1,
		},
		Presenter: PresenterConfig{
			Interval:    presenter.DefaultInterval,
			JoinTimeout: 500 * time.Millisecond,
			InputQueue:  presenter.DefaultInputQueueSize,
		},
		Snapshot: SnapshotConfig{
			Compression: "zstd",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Path returns the config file to load: flagPath if set, otherwise the
// value of EnvVar. An empty result means defaults only.
func Path(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return os.Getenv(EnvVar)
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read "+path)
	}
	if err := cfg.decode(data, isJSON(path)); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse "+path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, or JSON with comments when jsonWithComments is set,
// over the defaults and validates the result.
func Parse(data []byte, jsonWithComments bool) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data, jsonWithComments); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays data onto c. JSON is a subset of YAML, so comment-free
// JSON goes through the same strict decoder.
func (c *Config) decode(data []byte, jsonWithComments bool) error {
	if jsonWithComments {
		data = jsonc.ToJSON(data)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

func isJSON(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return true
	}
	return false
}

// Validate checks every field.
func (c *Config) Validate() error {
	switch c.Window.Backend {
	case BackendEbiten, BackendTerminal, BackendFbdev, BackendHeadless:
	default:
		return invalid("window.backend %q is not one of ebiten, terminal, fbdev, headless", c.Window.Backend)
	}
	if c.Window.Scale < 1 || c.Window.Scale > MaxScale {
		return invalid("window.scale %d must be between 1 and %d", c.Window.Scale, MaxScale)
	}
	if c.Window.Backend == BackendFbdev && c.Window.FbdevPath == "" {
		return invalid("window.fbdev_path is required for the fbdev backend")
	}
	if c.Presenter.Interval <= 0 || c.Presenter.Interval > presenter.MaxInterval {
		return invalid("presenter.interval %v must be in (0, %v]", c.Presenter.Interval, presenter.MaxInterval)
	}
	if c.Presenter.JoinTimeout <= 0 {
		return invalid("presenter.join_timeout %v must be positive", c.Presenter.JoinTimeout)
	}
	if c.Presenter.InputQueue < 1 {
		return invalid("presenter.input_queue %d must be positive", c.Presenter.InputQueue)
	}
	if c.Runtime.MemoryLimitPages > MaxMemoryPages {
		return invalid("runtime.memory_limit_pages %d exceeds %d", c.Runtime.MemoryLimitPages, MaxMemoryPages)
	}
	if _, err := snapshot.ParseCompression(c.Snapshot.Compression); err != nil {
		return invalid("snapshot.compression: %v", err)
	}
	if _, err := c.Log.level(); err != nil {
		return invalid("log.level: %v", err)
	}
	return nil
}

// Compression returns the parsed snapshot compression.
func (c *Config) Compression() snapshot.Compression {
	comp, _ := snapshot.ParseCompression(c.Snapshot.Compression)
	return comp
}

func invalid(format string, args ...any) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).Detail(format, args...).Build()
}
