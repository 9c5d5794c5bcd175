package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileBlobs keeps every artifact as a JSON file in a directory.
type FileBlobs struct {
	dir string
}

func NewFileBlobs(dir string) (*FileBlobs, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileBlobs{dir: dir}, nil
}

func (f *FileBlobs) Dir() string {
	return f.dir
}

func (f *FileBlobs) GetArtifact(_ context.Context, name string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, true, nil
}

// SaveArtifact replaces the file atomically, a crash leaves either the old
// or the new content.
func (f *FileBlobs) SaveArtifact(_ context.Context, name string, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(f.dir, name)); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

// MigrateLegacy moves the artifacts found in legacyDir to dir. When an
// artifact exists in both places the legacy copy is removed.
func MigrateLegacy(logger *slog.Logger, legacyDir, dir string, names []string) error {
	if legacyDir == "" || filepath.Clean(legacyDir) == filepath.Clean(dir) {
		return nil
	}
	logger = logger.With(slog.String("module", "store"))

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	var errs []error
	for _, name := range names {
		oldPath := filepath.Join(legacyDir, name)
		newPath := filepath.Join(dir, name)

		if _, err := os.Stat(oldPath); errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			errs = append(errs, err)
			continue
		}

		if _, err := os.Stat(newPath); err == nil {
			logger.Info("removing legacy artifact, newer copy exists", slog.String("path", oldPath))
			if err := os.Remove(oldPath); err != nil {
				errs = append(errs, fmt.Errorf("removing %s: %w", oldPath, err))
			}
			continue
		}

		logger.Info("migrating legacy artifact", slog.String("from", oldPath), slog.String("to", newPath))
		if err := moveFile(oldPath, newPath); err != nil {
			errs = append(errs, fmt.Errorf("moving %s: %w", oldPath, err))
		}
	}
	return errors.Join(errs...)
}

func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	// rename fails across file systems
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
