//go:build !windows

// Package service provides a stub implementation for non-Windows platforms.
// On macOS and Linux the engine runs as a foreground process; the Windows
// service wrapper is not needed.
package service

import (
	"context"

	"go.uber.org/zap"
)

// EngineService is a no-op service wrapper for non-Windows platforms.
type EngineService struct {
	logger  *zap.Logger
	startFn func(ctx context.Context)
}

// New creates a stub service wrapper for non-Windows platforms.
func New(logger *zap.Logger, startFn func(ctx context.Context)) *EngineService {
	return &EngineService{
		logger:  logger,
		startFn: startFn,
	}
}

// IsWindowsService always returns false on non-Windows platforms.
func IsWindowsService() bool {
	return false
}

// Run executes the engine directly (no service wrapper needed on non-Windows).
func (s *EngineService) Run() error {
	ctx := context.Background()
	s.startFn(ctx)
	return nil
}

// Install is only supported on Windows.
func Install(string, ...string) error {
	return ErrUnsupported
}
