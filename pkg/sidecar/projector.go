package sidecar

import (
	"crypto/sha256"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ContentKind tags a projection entry's payload so binary bytes are never round-tripped through
// a text encoding (spec §9, "binary vs text content").
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentBinary
)

// Projector is the file projector (C1, §4.1): it turns (folder, filename, bytes) into an
// idempotent filesystem write or removal.
type Projector struct {
	logger   log.Logger
	fileMode *int
	metrics  *metrics
}

// NewProjector constructs a Projector. defaultFileMode, if non-nil, is chmod'd onto every file
// after a changed write, matching DEFAULT_FILE_MODE (§6).
func NewProjector(logger log.Logger, defaultFileMode *int, m *metrics) *Projector {
	return &Projector{logger: logger, fileMode: defaultFileMode, metrics: m}
}

// Write ensures folder exists and writes filename under it with payload, unless a file with
// byte-identical content is already present there. It returns changed=true only when the
// filesystem was actually mutated.
func (p *Projector) Write(folder, filename string, payload []byte, kind ContentKind) (changed bool) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		if os.IsPermission(err) {
			level.Error(p.logger).Log("msg", "permission denied creating destination folder, skipping file",
				"folder", folder, "filename", filename, "err", err)
			return false
		}
		level.Error(p.logger).Log("msg", "failed to create destination folder", "folder", folder, "err", err)
		return false
	}

	dest := filepath.Join(folder, filename)

	if existing, err := os.ReadFile(dest); err == nil {
		if sha256.Sum256(existing) == sha256.Sum256(payload) {
			return false
		}
	} else if !os.IsNotExist(err) {
		level.Error(p.logger).Log("msg", "failed to read existing file for comparison", "path", dest, "err", err)
	}

	if err := os.WriteFile(dest, payload, 0o644); err != nil {
		level.Error(p.logger).Log("msg", "failed to write file", "path", dest, "err", err)
		return false
	}
	if p.fileMode != nil {
		if err := os.Chmod(dest, os.FileMode(*p.fileMode)); err != nil {
			level.Error(p.logger).Log("msg", "failed to chmod file", "path", dest, "err", err)
		}
	}

	kindLabel := "text"
	if kind == ContentBinary {
		kindLabel = "binary"
	}
	level.Info(p.logger).Log("msg", "wrote file", "path", dest, "kind", kindLabel, "bytes", len(payload))
	if p.metrics != nil {
		p.metrics.filesWritten.Inc()
	}
	return true
}

// Remove deletes filename under folder if present. A missing file is a warning, not an error
// (§4.1).
func (p *Projector) Remove(folder, filename string) (removed bool) {
	dest := filepath.Join(folder, filename)
	err := os.Remove(dest)
	switch {
	case err == nil:
		level.Info(p.logger).Log("msg", "removed file", "path", dest)
		if p.metrics != nil {
			p.metrics.filesRemoved.Inc()
		}
		return true
	case os.IsNotExist(err):
		level.Warn(p.logger).Log("msg", "file already absent, nothing to remove", "path", dest)
		return false
	default:
		level.Error(p.logger).Log("msg", "failed to remove file", "path", dest, "err", err)
		return false
	}
}
