package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-iodevices/config"
	"github.com/wippyai/wasm-iodevices/device"
	"github.com/wippyai/wasm-iodevices/engine"
	"github.com/wippyai/wasm-iodevices/framebuffer"
	"github.com/wippyai/wasm-iodevices/presenter"
	"github.com/wippyai/wasm-iodevices/registry"
	"github.com/wippyai/wasm-iodevices/snapshot"
	"github.com/wippyai/wasm-iodevices/window/ebitenwin"
	"github.com/wippyai/wasm-iodevices/window/fbdev"
	"github.com/wippyai/wasm-iodevices/window/headless"
	"github.com/wippyai/wasm-iodevices/window/termwin"
)

type options struct {
	configPath  string
	backend     string
	logLevel    string
	snapshotIn  string
	snapshotOut string
	inspect     string
	size        string
	scale       int
	frames      int
	reopen      bool
	diag        bool
	interactive bool
	selftest    bool
}

func main() {
	var opts options
	flags := pflag.NewFlagSet("run", pflag.ExitOnError)
	flags.SetInterspersed(false)
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file, YAML or JSON with comments (default $"+config.EnvVar+")")
	flags.StringVarP(&opts.backend, "backend", "b", "", "window backend: ebiten, terminal, fbdev or headless")
	flags.IntVar(&opts.scale, "scale", 0, "window scale factor")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&opts.snapshotIn, "snapshot-in", "", "restore device descriptors from a snapshot file")
	flags.BoolVar(&opts.reopen, "reopen", false, "reopen the open device restored by --snapshot-in")
	flags.StringVar(&opts.snapshotOut, "snapshot-out", "", "write device descriptors to a snapshot file on exit")
	flags.StringVar(&opts.inspect, "inspect", "", "print a snapshot file and exit")
	flags.BoolVar(&opts.diag, "diag", false, "with --inspect, print the CBOR payload in diagnostic notation")
	flags.BoolVarP(&opts.interactive, "interactive", "i", false, "with --inspect, browse the snapshot interactively")
	flags.BoolVar(&opts.selftest, "selftest", false, "animate a test pattern through the device ABI instead of running a guest")
	flags.StringVar(&opts.size, "size", "64x48", "self-test device size as WIDTHxHEIGHT")
	flags.IntVar(&opts.frames, "frames", 120, "self-test frame count, 0 runs until the window is closed")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: run [flags] <guest.wasm> [guest args...]")
		fmt.Fprintln(os.Stderr, "       run [flags] --selftest")
		fmt.Fprintln(os.Stderr, "       run --inspect <snapshot> [--diag | -i]")
		fmt.Fprintln(os.Stderr)
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	if opts.inspect != "" {
		var err error
		if opts.interactive {
			err = runInteractive(opts.inspect)
		} else {
			err = inspect(os.Stdout, opts.inspect, opts.diag)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if !opts.selftest && flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}

	var code uint32
	err := ebitenwin.Run(func() error {
		var err error
		code, err = run(opts, flags.Args())
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(int(code))
}

func run(opts options, args []string) (uint32, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return 0, err
	}

	log, err := cfg.Log.Build()
	if err != nil {
		return 0, err
	}
	defer func() { _ = log.Sync() }()
	device.SetLogger(log.Named("device"))
	registry.SetLogger(log.Named("registry"))
	presenter.SetLogger(log.Named("presenter"))
	engine.SetLogger(log.Named("engine"))

	opener, err := newOpener(cfg.Window)
	if err != nil {
		return 0, err
	}

	reg := registry.New(registry.Options{
		Opener:         opener,
		Title:          cfg.Window.Title,
		Scale:          cfg.Window.Scale,
		Interval:       cfg.Presenter.Interval,
		InputQueueSize: cfg.Presenter.InputQueue,
	})
	reg.Subscribe(registry.ObserverFunc(func(e registry.Event) {
		log.Info("device "+e.Type.String(), zap.Uint32("handle", uint32(e.Handle)))
	}))
	surface := device.NewSurface(reg, device.Options{JoinTimeout: cfg.Presenter.JoinTimeout})
	defer func() {
		if err := surface.Shutdown(); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	if opts.snapshotIn != "" {
		if err := restore(surface, opts.snapshotIn, opts.reopen, log); err != nil {
			return 0, err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng, err := engine.New(ctx, surface, &engine.Config{MemoryLimitPages: cfg.Runtime.MemoryLimitPages})
	if err != nil {
		return 0, err
	}
	defer eng.Close(context.Background())

	var code uint32
	if opts.selftest {
		width, height, err := parseSize(opts.size)
		if err != nil {
			return 0, err
		}
		err = selftest(ctx, eng, width, height, opts.frames, cfg.Presenter.Interval, log)
		if err != nil {
			return 0, err
		}
	} else {
		code, err = runGuest(ctx, eng, args)
		if err != nil {
			return 0, err
		}
	}

	if opts.snapshotOut != "" {
		rec := surface.Snapshot()
		if err := snapshot.WriteFile(opts.snapshotOut, rec, cfg.Compression()); err != nil {
			return 0, err
		}
		log.Info("snapshot written",
			zap.String("path", opts.snapshotOut),
			zap.Int("devices", len(rec.Devices)),
			zap.Stringer("compression", cfg.Compression()))
	}
	return code, nil
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(config.Path(opts.configPath))
	if err != nil {
		return nil, err
	}
	if opts.backend != "" {
		cfg.Window.Backend = opts.backend
	}
	if opts.scale != 0 {
		cfg.Window.Scale = opts.scale
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newOpener(cfg config.WindowConfig) (presenter.Opener, error) {
	switch cfg.Backend {
	case config.BackendEbiten:
		return ebitenwin.NewOpener(), nil
	case config.BackendTerminal:
		return termwin.NewOpener(), nil
	case config.BackendFbdev:
		return fbdev.NewOpener(cfg.FbdevPath), nil
	case config.BackendHeadless:
		return headless.NewOpener(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func restore(surface *device.Surface, path string, reopen bool, log *zap.Logger) error {
	rec, err := snapshot.ReadFile(path)
	if err != nil {
		return err
	}
	handles, err := surface.Restore(rec)
	if err != nil {
		return err
	}
	log.Info("snapshot restored", zap.String("path", path), zap.Int("devices", len(handles)))
	if !reopen {
		return nil
	}

	for _, h := range handles {
		d, ok := surface.Restored(h)
		if !ok || d.State != framebuffer.Open {
			continue
		}
		live, err := surface.Reopen(context.Background(), h)
		if err != nil {
			return err
		}
		log.Info("device reopened from snapshot",
			zap.Uint32("restored", uint32(h)),
			zap.Uint32("handle", uint32(live)))
		break
	}
	return nil
}

func parseSize(s string) (uint32, uint32, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q is not WIDTHxHEIGHT", s)
	}
	w, err := strconv.ParseUint(ws, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	h, err := strconv.ParseUint(hs, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	return uint32(w), uint32(h), nil
}
