package storage

import "io"

// Storage defines the file operations the pipeline performs on its output
// and working directories.
type Storage interface {
	OutputDir() string

	WorkDir() string

	// Lock claims the output directory for one run. The returned function
	// releases it.
	Lock() (func() error, error)

	FileExists(path string) bool

	WriteCaptions(path string, lines []string) error

	// CopyToOutput copies src into the output directory and returns the new path.
	CopyToOutput(src string) (string, error)

	GetReader(path string) (io.ReadCloser, error)
}
