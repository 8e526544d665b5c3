//go:build !windows

package service

import "errors"

// ErrUnsupported is returned by IsRunning on platforms without a Windows
// service manager.
var ErrUnsupported = errors.New("windows services are not available on this platform")

// IsRunning always fails on non-Windows platforms.
func IsRunning(string) (bool, error) {
	return false, ErrUnsupported
}
