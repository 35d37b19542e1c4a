package supervisor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// prepareFrames empties dir of files, or creates it if it does not exist
func prepareFrames(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create frames directory: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read frames directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove frame %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// countFrames returns the number of files in dir
func countFrames(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			count++
		}
	}
	return count, nil
}

// loadFrames reads every non-empty file in dir in name order. Files that
// cannot be read are skipped.
func loadFrames(dir string, logger zerolog.Logger) [][]byte {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn().Err(err).Str("directory", dir).Msg("Failed to load frames")
		return nil
	}

	frames := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil || len(data) == 0 {
			continue
		}
		frames = append(frames, data)
	}
	return frames
}
