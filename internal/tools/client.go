package tools

import (
	"context"
	"errors"
)

// Client is the unified interface for invoking tools, implemented locally or
// over a subprocess.
type Client interface {
	// Call runs the named tool. Tool-level failures come back as an "Error: ..."
	// result; a non-nil error means the tool could not be reached at all.
	Call(ctx context.Context, name string, args Arguments) (string, error)

	// List returns the definitions of all available tools.
	List() ([]Definition, error)

	// Close releases resources such as subprocesses.
	Close() error
}

// ErrToolNotFound means the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")
