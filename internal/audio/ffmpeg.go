// Package audio builds segment extraction requests and runs them with FFmpeg.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Output formats that are re-encoded. Anything else is stream-copied, which
// keeps the source codec and requires a matching container extension.
var supportedExtensions = map[string]struct {
	codec  string
	format string
}{
	"mp3":  {"libmp3lame", "mp3"},
	"m4a":  {"aac", "mp4"},
	"wav":  {"pcm_s16le", "wav"},
	"flac": {"flac", "flac"},
}

const (
	defaultAudioBitrate = "192k"
	defaultID3Version   = "3"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrFileEmpty    = errors.New("file is empty")
	ErrInvalidPath  = errors.New("invalid path")
)

// ffmpegError wraps FFmpeg command errors with additional context
type ffmpegError struct {
	cmd     string
	output  string
	wrapped error
}

func (e *ffmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %s\nCommand: %s\nOutput: %s", e.wrapped, e.cmd, e.output)
}

func (e *ffmpegError) Unwrap() error {
	return e.wrapped
}

// newFFmpegError creates a new ffmpegError with truncated command output
func newFFmpegError(cmd *exec.Cmd, output []byte, err error) error {
	cmdStr := cmd.String()
	if len(cmdStr) > 200 {
		cmdStr = cmdStr[:200] + "..."
	}
	return &ffmpegError{
		cmd:     cmdStr,
		output:  strings.TrimSpace(string(output)),
		wrapped: err,
	}
}

type ffmpeg struct {
	path string
}

// NewFFMPEGEngine returns an Extractor that runs the ffmpeg executable at path.
func NewFFMPEGEngine(path string) *ffmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &ffmpeg{path: path}
}

func (f *ffmpeg) validateFile(path string) error {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("unable to access file: %s: %w", path, err)
	}

	if fileInfo.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidPath, path)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrFileEmpty, path)
	}

	return nil
}

// Extract writes the segment described by req to req.OutputPath.
func (f *ffmpeg) Extract(ctx context.Context, req Request) error {
	if err := f.validateFile(req.SourcePath); err != nil {
		return fmt.Errorf("track %d extraction failed: %w", req.Tags.TrackNumber, err)
	}

	if req.OutputPath == "" {
		return fmt.Errorf("%w: empty output path for track %d", ErrInvalidPath, req.Tags.TrackNumber)
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	args := Args(req)
	slog.Debug("Extracting audio segment",
		"track", req.Tags.TrackNumber,
		"start", req.Start.String(),
		"output", req.OutputPath,
	)

	cmd := exec.CommandContext(ctx, f.path, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newFFmpegError(cmd, output, err)
	}

	return nil
}

// Args returns the ffmpeg arguments for req, without the executable.
func Args(req Request) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", req.SourcePath,
		"-ss", req.Start.String(),
	}

	if req.End != nil {
		args = append(args, "-to", req.End.String())
	}

	args = append(args, "-map", "0:a")

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(req.OutputPath), "."))
	if codecInfo, ok := supportedExtensions[ext]; ok {
		args = append(args,
			"-c:a", codecInfo.codec,
			"-f", codecInfo.format,
		)
		if ext == "mp3" || ext == "m4a" {
			args = append(args, "-b:a", defaultAudioBitrate)
		}
		if ext == "mp3" {
			args = append(args, "-id3v2_version", defaultID3Version)
		}
	} else {
		args = append(args, "-c", "copy")
	}

	track := fmt.Sprint(req.Tags.TrackNumber)
	if req.Tags.TrackCount > 0 {
		track = fmt.Sprintf("%d/%d", req.Tags.TrackNumber, req.Tags.TrackCount)
	}

	// Fixed order keeps the command line reproducible.
	metadata := [][2]string{
		{"track", track},
		{"artist", req.Tags.Artist},
		{"album_artist", req.Tags.Artist},
		{"album", req.Tags.Album},
		{"title", req.Tags.Title},
	}
	for _, kv := range metadata {
		args = append(args, "-metadata", fmt.Sprintf("%s=%s", kv[0], kv[1]))
	}

	return append(args, req.OutputPath)
}
