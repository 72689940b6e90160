package sync

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"gallery-sync/internal/media"
	"gallery-sync/pkg/logger"
)

// FileRegistrar writes downloads to a temporary file next to the target and
// renames it into place, so a failed transfer never leaves a partial file.
type FileRegistrar struct {
	fs  afero.Fs
	log *logger.Logger
}

// NewFileRegistrar creates a registrar writing to fs. A nil log uses the
// process logger.
func NewFileRegistrar(fs afero.Fs, log *logger.Logger) *FileRegistrar {
	if log == nil {
		log = logger.GetInstance()
	}
	return &FileRegistrar{fs: fs, log: log}
}

// Register implements Registrar. The final path is always target.
func (fr *FileRegistrar) Register(ctx context.Context, r io.Reader, target string) (string, error) {
	dir := filepath.Dir(target)
	if err := fr.fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fr.fs, dir, "."+filepath.Base(target)+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		fr.fs.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		cleanup()
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	if err := ctx.Err(); err != nil {
		cleanup()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		fr.fs.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := fr.fs.Rename(tmpName, target); err != nil {
		fr.fs.Remove(tmpName)
		return "", fmt.Errorf("rename into %s: %w", target, err)
	}

	fr.log.Debug("registered media file",
		zap.String("path", target),
		zap.String("mime", media.MimeType(target)),
		zap.String("kind", media.Classify(target).String()))
	return target, nil
}
