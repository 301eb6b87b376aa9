package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"FinSight/internal/domain/models"
	applogger "FinSight/pkg/logger"

	"github.com/dustin/go-humanize"
)

// FileModelStore keeps artifacts as {dir}/{key}_model.json and {key}_scaler.json.
type FileModelStore struct {
	dir string
	l   *applogger.Logger
}

// NewFileModelStore creates the directory if needed.
func NewFileModelStore(dir string) (*FileModelStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("model dir %s: %w", dir, err)
	}
	return &FileModelStore{dir: dir}, nil
}

// SetLogger injects a structured logger.
func (s *FileModelStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *FileModelStore) paths(key string) (string, string) {
	base := filepath.Join(s.dir, sanitizeKey(key))
	return base + "_model.json", base + "_scaler.json"
}

// Save writes both files through a temp file and rename so a crash never
// leaves a truncated artifact behind.
func (s *FileModelStore) Save(ctx context.Context, key string, a *models.ModelArtifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	modelPath, scalerPath := s.paths(key)
	if err := writeAtomic(modelPath, a.Model); err != nil {
		return err
	}
	if err := writeAtomic(scalerPath, a.Scaler); err != nil {
		return err
	}
	if s.l != nil {
		s.l.Info("model artifact saved",
			applogger.String("key", key),
			applogger.String("model_size", humanize.Bytes(uint64(len(a.Model)))),
			applogger.String("scaler_size", humanize.Bytes(uint64(len(a.Scaler)))),
		)
	}
	return nil
}

func (s *FileModelStore) Load(ctx context.Context, key string) (*models.ModelArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	modelPath, scalerPath := s.paths(key)
	model, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, notFound(err)
	}
	scaler, err := os.ReadFile(scalerPath)
	if err != nil {
		return nil, notFound(err)
	}
	return &models.ModelArtifact{Model: model, Scaler: scaler}, nil
}

func (s *FileModelStore) Delete(_ context.Context, key string) error {
	modelPath, scalerPath := s.paths(key)
	for _, p := range []string{modelPath, scalerPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return models.ErrArtifactNotFound
	}
	return err
}

// sanitizeKey keeps symbol keys such as ^NSEI usable as file names.
func sanitizeKey(key string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "^", "IDX_", "..", "_").Replace(key)
}
