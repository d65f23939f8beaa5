// Package tools locates the external executables the pipeline drives.
package tools

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrToolMissing is wrapped by every MissingToolError.
var ErrToolMissing = errors.New("required tool not found")

// MissingToolError reports an executable that could not be located, with a
// hint telling the user how to install it.
type MissingToolError struct {
	Name    string
	Command string
	Hint    string
	Err     error
}

func (e *MissingToolError) Error() string {
	msg := fmt.Sprintf("%s (%q) not found", e.Name, e.Command)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += "\n" + e.Hint
	}
	return msg
}

func (e *MissingToolError) Unwrap() error {
	return ErrToolMissing
}

// Spec names one external tool.
type Spec struct {
	Name    string
	Command string // executable name or path
	Hint    string
}

// Downloader returns the spec for the media fetcher executable.
func Downloader(command string) Spec {
	if command == "" {
		command = "yt-dlp"
	}
	return Spec{
		Name:    "downloader",
		Command: command,
		Hint:    "install yt-dlp (https://github.com/yt-dlp/yt-dlp#installation) or set downloader_path in the config",
	}
}

// FFmpeg returns the spec for the segment extractor executable.
func FFmpeg(command string) Spec {
	if command == "" {
		command = "ffmpeg"
	}
	return Spec{
		Name:    "ffmpeg",
		Command: command,
		Hint:    "download ffmpeg from https://ffmpeg.org/download.html or set ffmpeg_path in the config",
	}
}

// Locator resolves tool specs to executable paths.
type Locator struct {
	LookPath func(file string) (string, error)
	Stat     func(name string) (os.FileInfo, error)
}

func NewLocator() Locator {
	return Locator{
		LookPath: exec.LookPath,
		Stat:     os.Stat,
	}
}

// Resolve returns the absolute path of the executable, or a
// *MissingToolError.
func (l Locator) Resolve(spec Spec) (string, error) {
	command := strings.TrimSpace(spec.Command)
	if command == "" {
		return "", &MissingToolError{Name: spec.Name, Hint: spec.Hint, Err: errors.New("no command configured")}
	}

	path, err := l.LookPath(command)
	if err == nil {
		if abs, absErr := filepath.Abs(path); absErr == nil {
			path = abs
		}
		return path, nil
	}

	// LookPath rejects relative paths with separators on some platforms.
	if strings.ContainsRune(command, os.PathSeparator) || strings.Contains(command, "/") {
		info, statErr := l.Stat(command)
		if statErr == nil && !info.IsDir() {
			if abs, absErr := filepath.Abs(command); absErr == nil {
				return abs, nil
			}
			return command, nil
		}
	}

	return "", &MissingToolError{Name: spec.Name, Command: command, Hint: spec.Hint, Err: err}
}

// ResolveAll resolves every spec and reports all missing tools at once.
func (l Locator) ResolveAll(specs ...Spec) (map[string]string, error) {
	paths := make(map[string]string, len(specs))
	var errs []error
	for _, spec := range specs {
		path, err := l.Resolve(spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		paths[spec.Name] = path
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return paths, nil
}
