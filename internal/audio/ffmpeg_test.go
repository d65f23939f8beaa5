package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaki95/podsplit/internal/tracklist"
)

func TestNewFFMPEGEngine(t *testing.T) {
	engine := NewFFMPEGEngine("")
	assert.NotNil(t, engine)
	assert.Equal(t, "ffmpeg", engine.path)
}

func TestArgs(t *testing.T) {
	tracks := tracklist.Parse("1:05 - Intro\n3:40 - Main Topic\n")
	reqs := BuildRequests(tracks, "in.webm", "Host", "Show", "out", "opus")

	args := Args(reqs[0])
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", "in.webm",
		"-ss", "00:01:05",
		"-to", "00:03:40",
		"-map", "0:a",
		"-c", "copy",
		"-metadata", "track=1/2",
		"-metadata", "artist=Host",
		"-metadata", "album_artist=Host",
		"-metadata", "album=Show",
		"-metadata", "title=Intro",
		reqs[0].OutputPath,
	}, args)

	args = Args(reqs[1])
	assert.NotContains(t, args, "-to", "last track runs to the end of the source")
}

func TestArgsReencode(t *testing.T) {
	testCases := []struct {
		ext           string
		expectedCodec string
		expectedFmt   string
	}{
		{"mp3", "libmp3lame", "mp3"},
		{"m4a", "aac", "mp4"},
		{"wav", "pcm_s16le", "wav"},
		{"flac", "flac", "flac"},
	}

	track := tracklist.Parse("0:00 A")[0]
	for _, tc := range testCases {
		t.Run(tc.ext, func(t *testing.T) {
			args := strings.Join(Args(BuildRequest(track, "in", "x", "y", "out", tc.ext)), " ")
			assert.Contains(t, args, "-c:a "+tc.expectedCodec)
			assert.Contains(t, args, "-f "+tc.expectedFmt)
			assert.NotContains(t, args, "-c copy")
		})
	}
}

// writeFakeFFmpeg installs a script that records its arguments and creates
// the output file named by its last argument.
func writeFakeFFmpeg(t *testing.T, exitCode int) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake executables need a POSIX shell")
	}

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	script := "#!/bin/sh\n" +
		"for a in \"$@\"; do echo \"$a\" >> '" + argsFile + "'; done\n" +
		"for last; do :; done\n"
	if exitCode != 0 {
		script += fmt.Sprintf("echo boom >&2\nexit %d\n", exitCode)
	}
	script += "echo data > \"$last\"\n"
	path := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path, argsFile
}

func TestExtract(t *testing.T) {
	bin, argsFile := writeFakeFFmpeg(t, 0)

	dir := t.TempDir()
	source := filepath.Join(dir, "source.webm")
	require.NoError(t, os.WriteFile(source, []byte("audio"), 0644))

	track := tracklist.Parse("0:30 Intro")[0]
	req := BuildRequest(track, source, "Host", "Show", filepath.Join(dir, "out"), "opus")

	err := NewFFMPEGEngine(bin).Extract(context.Background(), req)
	require.NoError(t, err)

	assert.FileExists(t, req.OutputPath)
	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(recorded), "00:00:30")
	assert.Contains(t, string(recorded), "title=Intro")
}

func TestExtractFailure(t *testing.T) {
	bin, _ := writeFakeFFmpeg(t, 1)

	dir := t.TempDir()
	source := filepath.Join(dir, "source.webm")
	require.NoError(t, os.WriteFile(source, []byte("audio"), 0644))

	req := BuildRequest(tracklist.Parse("0:00 A")[0], source, "x", "y", dir, "opus")
	err := NewFFMPEGEngine(bin).Extract(context.Background(), req)

	var ffErr *ffmpegError
	require.ErrorAs(t, err, &ffErr)
	assert.Contains(t, ffErr.output, "boom")
}

func TestExtractValidatesSource(t *testing.T) {
	dir := t.TempDir()
	engine := NewFFMPEGEngine("ffmpeg")
	track := tracklist.Parse("0:00 A")[0]

	err := engine.Extract(context.Background(), BuildRequest(track, filepath.Join(dir, "missing.webm"), "x", "y", dir, "opus"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	empty := filepath.Join(dir, "empty.webm")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	err = engine.Extract(context.Background(), BuildRequest(track, empty, "x", "y", dir, "opus"))
	assert.ErrorIs(t, err, ErrFileEmpty)

	err = engine.Extract(context.Background(), BuildRequest(track, dir, "x", "y", dir, "opus"))
	assert.ErrorIs(t, err, ErrInvalidPath)
}
