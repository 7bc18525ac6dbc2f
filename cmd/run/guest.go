package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-iodevices/engine"
)

// runGuest runs a guest module to completion and returns its exit code.
func runGuest(ctx context.Context, eng *engine.Engine, args []string) (uint32, error) {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read guest: %w", err)
	}

	mod, err := eng.Load(ctx, data)
	if err != nil {
		return 0, err
	}
	defer mod.Close(context.Background())

	if len(mod.DeviceImports()) == 0 {
		engine.Logger().Warn("guest imports no device functions", zap.String("path", path))
	}

	start := time.Now()
	code, err := mod.Run(ctx, &engine.RunConfig{
		Name:   filepath.Base(path),
		Args:   append([]string{filepath.Base(path)}, args[1:]...),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return 0, err
	}
	engine.Logger().Info("guest finished",
		zap.String("path", path),
		zap.Uint32("exit_code", code),
		zap.Duration("elapsed", time.Since(start)))
	return code, nil
}
