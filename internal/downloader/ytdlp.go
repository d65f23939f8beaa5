package downloader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jaki95/podsplit/internal/domain"
)

const (
	// Output template shared by media and captions so both land side by side.
	outputTemplate = "%(title)s [%(id)s].%(ext)s"

	progressLogInterval = 10 * time.Second
)

var (
	ErrDownloadFailed = errors.New("download failed")
	ErrNoCaptions     = errors.New("no captions available")
)

var (
	progressLine  = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)
	subtitlesLine = regexp.MustCompile(`Writing video subtitles to:\s*(.+)$`)
)

// YTDLP fetches media with a yt-dlp compatible executable.
type YTDLP struct {
	path         string
	autoCaptions bool
}

// NewYTDLP returns a Fetcher running the executable at path. With
// autoCaptions set, generated captions are accepted when no uploaded
// captions exist.
func NewYTDLP(path string, autoCaptions bool) *YTDLP {
	if path == "" {
		path = "yt-dlp"
	}
	return &YTDLP{path: path, autoCaptions: autoCaptions}
}

func (d *YTDLP) Metadata(ctx context.Context, source string) (*domain.Metadata, error) {
	slog.Info("Fetching metadata", "source", source)

	stdout, err := d.run(ctx, nil, "--dump-json", "--skip-download", "--no-playlist", source)
	if err != nil {
		return nil, err
	}

	var meta domain.Metadata
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &meta, nil
}

func (d *YTDLP) MediaPath(ctx context.Context, source, formatID, dir string) (string, error) {
	stdout, err := d.run(ctx, nil,
		"-f", formatID,
		"-o", filepath.Join(dir, outputTemplate),
		"--get-filename",
		"--no-playlist",
		source,
	)
	if err != nil {
		return "", err
	}

	path := lastLine(string(stdout))
	if path == "" {
		return "", fmt.Errorf("%w: downloader reported no filename", ErrDownloadFailed)
	}
	return path, nil
}

func (d *YTDLP) Download(ctx context.Context, source, formatID, dir string, progressCallback ProgressCallback) (string, error) {
	slog.Info("Downloading media", "source", source, "format", formatID, "dir", dir)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	path, err := d.MediaPath(ctx, source, formatID, dir)
	if err != nil {
		return "", err
	}

	onLine := func(line string) {
		if progressCallback == nil {
			return
		}
		if m := progressLine.FindStringSubmatch(line); m != nil {
			percent, _ := strconv.ParseFloat(m[1], 64)
			progressCallback(int(percent), line)
		}
	}

	if _, err := d.run(ctx, onLine,
		"-f", formatID,
		"-o", filepath.Join(dir, outputTemplate),
		"--newline",
		"--no-playlist",
		source,
	); err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: expected file %s: %v", ErrDownloadFailed, path, err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrDownloadFailed, path)
	}

	if progressCallback != nil {
		progressCallback(100, "Download complete")
	}
	slog.Info("Downloaded media", "path", path, "size", info.Size())
	return path, nil
}

func (d *YTDLP) Captions(ctx context.Context, source, videoID, lang, format, dir string) (string, error) {
	slog.Info("Fetching captions", "source", source, "id", videoID, "lang", lang, "format", format)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create caption directory: %w", err)
	}

	args := []string{"--skip-download", "--write-sub"}
	if d.autoCaptions {
		args = append(args, "--write-auto-sub")
	}
	args = append(args,
		"--sub-lang", lang,
		"--sub-format", format,
		"-o", filepath.Join(dir, outputTemplate),
		"--no-playlist",
		source,
	)

	stdout, err := d.run(ctx, nil, args...)
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(string(stdout), "\n") {
		if m := subtitlesLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return strings.TrimSpace(m[1]), nil
		}
	}

	// An existing file is reported as "already present" without its path,
	// and older tools do not announce the file at all.
	if path := newest(captionFiles(dir, videoID, lang, format)); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("%w for language %q", ErrNoCaptions, lang)
}

// captionFiles lists the files in dir that outputTemplate produces for the
// captions of videoID, e.g. "Title [id].en.vtt" or "Title [id].en-GB.vtt".
func captionFiles(dir, videoID, lang, format string) []string {
	if videoID == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	marker := "[" + videoID + "]." + lang
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, "."+format) {
			continue
		}
		if strings.Contains(name, marker) {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths
}

// run executes the downloader, returning its stdout. onLine, when set,
// receives every stdout line as it is produced.
func (d *YTDLP) run(ctx context.Context, onLine func(string), args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, d.path, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open downloader output: %w", err)
	}

	slog.Debug("Executing downloader", "path", d.path, "args", args)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start downloader: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(io.TeeReader(pipe, &stdoutBuf))
		scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
		// Drain whatever the scanner left so Wait does not block.
		_, _ = io.Copy(io.Discard, io.TeeReader(pipe, &stdoutBuf))
	}()

	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- cmd.Wait()
	}()

	ticker := time.NewTicker(progressLogInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				slog.Error("Downloader command failed",
					"error", err,
					"stderr", tail(stderrBuf.String(), 500),
				)
				return nil, fmt.Errorf("%w: %v\nstderr: %s", ErrDownloadFailed, err, tail(stderrBuf.String(), 500))
			}
			return stdoutBuf.Bytes(), nil
		case <-ticker.C:
			slog.Info("Downloader still running...", "pid", cmd.Process.Pid)
		}
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func tail(s string, n int) string {
	if len(s) > n {
		return "..." + s[len(s)-n:]
	}
	return s
}

func newest(paths []string) string {
	var (
		best     string
		bestTime time.Time
	)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best, bestTime = p, info.ModTime()
		}
	}
	return best
}
