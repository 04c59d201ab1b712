package resolver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// CacheFlusher clears a system-wide resolver cache. Failures are reported but
// callers treat them as best effort.
type CacheFlusher interface {
	Flush(ctx context.Context) error
}

type NoopFlusher struct{}

func (NoopFlusher) Flush(context.Context) error { return nil }

type commandFlusher struct {
	name string
	args []string
}

func (f commandFlusher) Flush(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, f.name, f.args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", f.name, err, bytes.TrimSpace(out))
	}
	return nil
}
