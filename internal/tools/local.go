package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// LocalClient runs tools from a registry in-process.
type LocalClient struct {
	registry *Registry
	logger   *slog.Logger
}

func NewLocalClient(r *Registry, logger *slog.Logger) *LocalClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalClient{registry: r, logger: logger}
}

// Call never returns an error: every failure is rendered as an "Error: ..."
// result the model and the confirmation step can work with.
func (c *LocalClient) Call(ctx context.Context, name string, args Arguments) (string, error) {
	return Dispatch(ctx, c.registry, c.logger, name, args), nil
}

func (c *LocalClient) List() ([]Definition, error) {
	return c.registry.ListAll(), nil
}

func (c *LocalClient) Close() error {
	return nil
}

// Dispatch looks up, validates and runs one tool call, converting every
// failure into an "Error: ..." string.
func Dispatch(ctx context.Context, r *Registry, logger *slog.Logger, name string, args Arguments) (result string) {
	start := time.Now()
	def, ok := r.Get(name)
	if !ok || def.Handler == nil {
		logger.Warn("unknown tool requested", "tool", name)
		return fmt.Sprintf("Error: Unknown tool %s", name)
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("tool panicked", "tool", name, "panic", p)
			result = fmt.Sprintf("Error: %s failed: %v", name, p)
		}
	}()

	coerced, err := def.Coerce(args)
	if err != nil {
		var argErr *ArgumentError
		if errors.As(err, &argErr) && len(argErr.Missing) > 0 && def.RequiredHint != "" {
			logger.Warn("tool arguments rejected", "tool", name, "missing", argErr.Missing)
			return "Error: " + def.RequiredHint
		}
		logger.Warn("tool arguments rejected", "tool", name, "error", err)
		return fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)
	}

	out, err := def.Handler(ctx, coerced)
	if err != nil {
		var argErr *ArgumentError
		if errors.As(err, &argErr) {
			logger.Warn("tool arguments rejected", "tool", name, "error", err)
			return fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)
		}
		logger.Error("tool failed", "tool", name, "duration", time.Since(start), "error", err)
		return "Error: " + err.Error()
	}
	logger.Info("tool completed", "tool", name, "duration", time.Since(start), "result_length", len(out))
	return out
}
