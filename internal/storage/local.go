package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

const lockFileName = ".podsplit.lock"

// ErrLocked is returned when another run holds the output directory.
var ErrLocked = errors.New("output directory is in use by another run")

// LocalFileStorage implements the Storage interface for local filesystem
type LocalFileStorage struct {
	outputDir string
	workDir   string
}

// NewLocalFileStorage creates a new local file storage instance
func NewLocalFileStorage(outputDir, workDir string) (*LocalFileStorage, error) {
	for _, dir := range []string{outputDir, workDir} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &LocalFileStorage{
		outputDir: outputDir,
		workDir:   workDir,
	}, nil
}

func (s *LocalFileStorage) OutputDir() string {
	return s.outputDir
}

func (s *LocalFileStorage) WorkDir() string {
	return s.workDir
}

func (s *LocalFileStorage) Lock() (func() error, error) {
	lock := flock.New(filepath.Join(s.outputDir, lockFileName))

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, s.outputDir)
	}

	return lock.Unlock, nil
}

// FileExists reports whether a non-empty regular file exists at path.
func (s *LocalFileStorage) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// WriteCaptions writes one caption line per text line.
func (s *LocalFileStorage) WriteCaptions(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create caption directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return fmt.Errorf("failed to write captions: %w", err)
	}
	return nil
}

func (s *LocalFileStorage) CopyToOutput(src string) (string, error) {
	dst := filepath.Join(s.outputDir, filepath.Base(src))
	if sameFile(src, dst) {
		return dst, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return dst, nil
}

// GetReader returns a reader for the specified file
func (s *LocalFileStorage) GetReader(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
