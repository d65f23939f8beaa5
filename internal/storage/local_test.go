package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *LocalFileStorage {
	t.Helper()
	root := t.TempDir()
	s, err := NewLocalFileStorage(filepath.Join(root, "out"), filepath.Join(root, "work"))
	require.NoError(t, err)
	return s
}

func TestNewLocalFileStorageCreatesDirectories(t *testing.T) {
	s := newTestStorage(t)
	assert.DirExists(t, s.OutputDir())
	assert.DirExists(t, s.WorkDir())
}

func TestLock(t *testing.T) {
	s := newTestStorage(t)

	unlock, err := s.Lock()
	require.NoError(t, err)

	_, err = s.Lock()
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, unlock())

	unlock, err = s.Lock()
	require.NoError(t, err)
	assert.NoError(t, unlock())
}

func TestWriteCaptions(t *testing.T) {
	s := newTestStorage(t)
	path := filepath.Join(s.OutputDir(), "1 - Intro - Host - Show.subs")

	require.NoError(t, s.WriteCaptions(path, []string{"Hello.", "World."}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Hello.\nWorld.", string(data))
}

func TestFileExists(t *testing.T) {
	s := newTestStorage(t)

	path := filepath.Join(s.WorkDir(), "media.webm")
	assert.False(t, s.FileExists(path))

	require.NoError(t, os.WriteFile(path, nil, 0644))
	assert.False(t, s.FileExists(path), "empty files do not count")

	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	assert.True(t, s.FileExists(path))
	assert.False(t, s.FileExists(s.WorkDir()))
}

func TestCopyToOutput(t *testing.T) {
	s := newTestStorage(t)
	src := filepath.Join(s.WorkDir(), "episode.en.vtt")
	require.NoError(t, os.WriteFile(src, []byte("WEBVTT\n"), 0644))

	dst, err := s.CopyToOutput(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.OutputDir(), "episode.en.vtt"), dst)

	r, err := s.GetReader(dst)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "WEBVTT\n", string(data))

	again, err := s.CopyToOutput(dst)
	require.NoError(t, err, "copying a file onto itself is a no-op")
	assert.Equal(t, dst, again)
}
