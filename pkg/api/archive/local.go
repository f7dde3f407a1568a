package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethpandaops/pagespeedoor/pkg/config"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Writer = (*localWriter)(nil)

type localWriter struct {
	log logrus.FieldLogger
	dir string
}

// NewLocalWriter creates a Writer backed by a local directory.
func NewLocalWriter(
	log logrus.FieldLogger,
	cfg *config.LocalArchiveConfig,
) Writer {
	return &localWriter{
		log: log.WithField("component", "archive"),
		dir: cfg.Dir,
	}
}

// Put writes data to {dir}/{key}, creating parent directories.
func (w *localWriter) Put(
	_ context.Context, key string, data []byte,
) error {
	p := filepath.Join(w.dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("writing archive file %s: %w", p, err)
	}

	w.log.WithField("path", p).Debug("Archived raw response")

	return nil
}
