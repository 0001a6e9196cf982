package main

import (
	"errors"
	"fmt"
	"runtime"
)

// Sentinel errors a RunE can return to select spec.md §6's nonzero
// exit codes; anything else maps to the generic user-facing code 1.
var (
	errInvalidInput        = errors.New("invalid input")
	errUnsupportedPlatform = errors.New("unsupported platform")
)

// requireUnixSocketSupport guards every command that dials or binds
// the local control socket: directord's socket transport is a UNIX
// domain socket, which Windows does not support.
func requireUnixSocketSupport() error {
	if runtime.GOOS == "windows" {
		return fmt.Errorf("%w: local control socket requires a UNIX-like OS, got %s", errUnsupportedPlatform, runtime.GOOS)
	}
	return nil
}
