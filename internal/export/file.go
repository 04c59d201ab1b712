package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/facebookgo/atomicfile"
)

var ErrNoDestination = errors.New("destination is required")

// WriteFile replaces path with the output of write. Readers see either the old
// or the new file, never a partial one.
func WriteFile(path string, write func(io.Writer) error) error {
	if path == "" {
		return ErrNoDestination
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := atomicfile.New(path, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Abort()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}
	return nil
}
