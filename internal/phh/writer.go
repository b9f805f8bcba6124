package phh

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Writer stores one PHH file per hand in a directory.
type Writer struct {
	dir string
}

// NewWriter creates dir if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create hand history dir %s", dir)
	}
	return &Writer{dir: dir}, nil
}

// Write encodes the hand and stores it as <table>/<hand number>-<hand id>.phh.
// It returns the file path.
func (w *Writer) Write(h *HandHistory) (string, error) {
	data, err := EncodeToBytes(h)
	if err != nil {
		return "", err
	}
	table := strings.Map(func(r rune) rune {
		if r == '/' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, h.Table)
	dir := filepath.Join(w.dir, table)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}

	number, _ := h.Metadata["hand_number"].(int)
	path := filepath.Join(dir, fmt.Sprintf("%06d-%s.phh", number, h.HandID))
	return path, writeFileAtomic(path, data, 0o644)
}

// writeFileAtomic writes to a temporary file in the same directory and
// renames it over filename, so readers see the whole file or none of it.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	tmp = nil

	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "chmod temp file")
	}
	if err := os.Rename(tmpPath, filename); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}
