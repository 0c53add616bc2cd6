package artifact

import (
	"fmt"
	"os"
	"path/filepath"
)

// FallbackWriter persists artifact bytes to local disk under a
// deterministic path when the durable store is unavailable. An artifact is
// never silently dropped.
type FallbackWriter struct {
	dir string
}

func NewFallbackWriter(dir string) *FallbackWriter {
	return &FallbackWriter{dir: dir}
}

// Write stores data under the worker-relative artifact path inside the
// fallback directory, creating parent directories as needed. It returns
// the full local path.
func (f *FallbackWriter) Write(artifactPath string, data []byte) (string, error) {
	full := filepath.Join(f.dir, filepath.FromSlash(artifactPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create fallback directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write fallback artifact: %w", err)
	}
	return full, nil
}
