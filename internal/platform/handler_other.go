//go:build !windows

package platform

import (
	"fmt"
	"runtime"
)

func registerURLSchemes(string) error {
	return fmt.Errorf("url scheme registration on %s: %w", runtime.GOOS, ErrUnsupportedOS)
}

func unregisterURLSchemes() error {
	return fmt.Errorf("url scheme registration on %s: %w", runtime.GOOS, ErrUnsupportedOS)
}
