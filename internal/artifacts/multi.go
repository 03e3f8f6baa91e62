package artifacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/aperture/internal/logger"
)

// MultiWriter fans an artifact out to several writers. The first writer is
// authoritative: its error fails the write and stops the fan-out. Failures
// of the other writers are logged and otherwise ignored.
type MultiWriter struct {
	primary   Writer
	secondary []Writer
}

// NewMultiWriter returns a writer over primary and any mirrors.
func NewMultiWriter(primary Writer, mirrors ...Writer) *MultiWriter {
	return &MultiWriter{primary: primary, secondary: mirrors}
}

func (m *MultiWriter) WriteArtifact(ctx context.Context, name string, payload []byte) error {
	if err := m.primary.WriteArtifact(ctx, name, payload); err != nil {
		return err
	}
	for i, w := range m.secondary {
		if err := w.WriteArtifact(ctx, name, payload); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().
				Err(err).
				Str("artifact", name).
				Int("mirror", i+1).
				Msg("Mirror write failed")
		}
	}
	return nil
}

// ChainReader reads from the first reader that has the artifact. Only
// ErrNotFound moves on to the next reader; any other error is returned.
type ChainReader struct {
	readers []Reader
}

func NewChainReader(readers ...Reader) *ChainReader {
	return &ChainReader{readers: readers}
}

func (c *ChainReader) ReadArtifact(ctx context.Context, name string) ([]byte, error) {
	for _, r := range c.readers {
		data, err := r.ReadArtifact(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return data, err
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}
