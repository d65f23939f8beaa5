package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jaki95/podsplit/config"
	"github.com/jaki95/podsplit/internal/audio"
	"github.com/jaki95/podsplit/internal/domain"
	"github.com/jaki95/podsplit/internal/downloader"
	"github.com/jaki95/podsplit/internal/progress"
	"github.com/jaki95/podsplit/internal/storage"
)

// Mock dependencies
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Metadata(ctx context.Context, source string) (*domain.Metadata, error) {
	args := m.Called(ctx, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Metadata), args.Error(1)
}

func (m *MockFetcher) MediaPath(ctx context.Context, source, formatID, dir string) (string, error) {
	args := m.Called(ctx, source, formatID, dir)
	return args.String(0), args.Error(1)
}

func (m *MockFetcher) Download(ctx context.Context, source, formatID, dir string, progressCallback downloader.ProgressCallback) (string, error) {
	args := m.Called(ctx, source, formatID, dir, progressCallback)

	if progressCallback != nil {
		progressCallback(50, "Testing download progress")
		progressCallback(100, "Testing download complete")
	}

	return args.String(0), args.Error(1)
}

func (m *MockFetcher) Captions(ctx context.Context, source, videoID, lang, format, dir string) (string, error) {
	args := m.Called(ctx, source, videoID, lang, format, dir)
	return args.String(0), args.Error(1)
}

type MockExtractor struct {
	mock.Mock

	mu   sync.Mutex
	reqs []audio.Request
}

func (m *MockExtractor) Extract(ctx context.Context, req audio.Request) error {
	args := m.Called(ctx, req)

	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()

	if args.Error(0) == nil {
		_ = os.WriteFile(req.OutputPath, []byte("test audio content"), 0644)
	}
	return args.Error(0)
}

const (
	testSource = "https://www.youtube.com/watch?v=abc123"

	testDescription = `Thanks for listening!

Chapters
0:00 Intro
1:30 Topic one
3:00 Topic two / wrap up`

	testCaptions = `WEBVTT

00:00:01.000 --> 00:00:04.000
Welcome to the show.

00:00:04.000 --> 00:00:06.000

00:01:35.000 --> 00:01:40.000
First topic starts here. More to say
`
)

type testEnv struct {
	cfg       *config.Config
	store     *storage.LocalFileStorage
	fetcher   *MockFetcher
	extractor *MockExtractor
	tracker   *progress.ProgressTracker
	outputDir string
	workDir   string
	mediaPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	outputDir := filepath.Join(root, "output")
	workDir := filepath.Join(root, "work")

	store, err := storage.NewLocalFileStorage(outputDir, workDir)
	require.NoError(t, err)

	return &testEnv{
		cfg:       config.Default(),
		store:     store,
		fetcher:   new(MockFetcher),
		extractor: new(MockExtractor),
		tracker:   progress.NewProgressTracker(),
		outputDir: outputDir,
		workDir:   workDir,
		mediaPath: filepath.Join(workDir, "Episode 12 [abc123].webm"),
	}
}

func (e *testEnv) processor() *Processor {
	return New(e.cfg, e.fetcher, e.extractor, e.store, e.tracker, nil)
}

func testMetadata(description string) *domain.Metadata {
	return &domain.Metadata{
		ID:          "abc123",
		Title:       "Episode 12 | The Show",
		Channel:     "Host: Name",
		Description: description,
		Formats: []domain.Encoding{
			{ID: "18", Codec: "mp4a.40.2", VideoCodec: "avc1", Ext: "mp4", Note: "360p", Bitrate: 500},
			{ID: "249", Codec: "opus", VideoCodec: "none", Ext: "webm", Note: "tiny", Bitrate: 50},
			{ID: "251", Codec: "opus", VideoCodec: "none", Ext: "webm", Note: "tiny", Bitrate: 130},
		},
	}
}

// expectFetch sets up metadata, a fresh download and a caption file.
func (e *testEnv) expectFetch(t *testing.T, description string) {
	t.Helper()

	e.fetcher.On("Metadata", mock.Anything, testSource).Return(testMetadata(description), nil)
	e.fetcher.On("MediaPath", mock.Anything, testSource, "251", e.workDir).Return(e.mediaPath, nil)
	e.fetcher.On("Download", mock.Anything, testSource, "251", e.workDir, mock.Anything).
		Run(func(args mock.Arguments) {
			_ = os.WriteFile(e.mediaPath, []byte("media"), 0644)
		}).
		Return(e.mediaPath, nil)

	captionPath := filepath.Join(e.workDir, "Episode 12 [abc123].en.vtt")
	require.NoError(t, os.WriteFile(captionPath, []byte(testCaptions), 0644))
	e.fetcher.On("Captions", mock.Anything, testSource, "abc123", "en", "vtt", e.workDir).Return(captionPath, nil)
}

func TestRun(t *testing.T) {
	env := newTestEnv(t)
	env.expectFetch(t, testDescription)
	env.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil)

	report, err := env.processor().Run(context.Background(), Options{Source: testSource})
	require.NoError(t, err)

	assert.Equal(t, "Episode 12 | The Show", report.Title)
	assert.Equal(t, "Episode 12", report.Album)
	assert.Equal(t, "Host: Name", report.Artist)
	assert.Equal(t, env.mediaPath, report.MediaPath)
	assert.Equal(t, filepath.Join(env.outputDir, "Episode 12 [abc123].en.vtt"), report.CaptionsPath)
	assert.FileExists(t, report.CaptionsPath)
	assert.Equal(t, []int{3}, report.MissingCaptions)

	require.Len(t, report.Tracks, 3)
	wantNames := []string{
		"1 - Intro - Host- Name - Episode 12.opus",
		"2 - Topic one - Host- Name - Episode 12.opus",
		"3 - Topic two - wrap up - Host- Name - Episode 12.opus",
	}
	for i, res := range report.Tracks {
		assert.Equal(t, i+1, res.Number)
		assert.Equal(t, filepath.Join(env.outputDir, wantNames[i]), res.OutputPath)
		assert.True(t, res.Extracted)
		assert.FileExists(t, res.OutputPath)
	}

	first, err := os.ReadFile(report.Tracks[0].CaptionPath)
	require.NoError(t, err)
	assert.Equal(t, "Welcome to the show.", string(first))

	second, err := os.ReadFile(report.Tracks[1].CaptionPath)
	require.NoError(t, err)
	assert.Equal(t, "First topic starts here.\nMore to say", string(second))
	assert.Equal(t, 2, report.Tracks[1].Lines)

	assert.Empty(t, report.Tracks[2].CaptionPath)
	assert.NoFileExists(t, audio.CaptionPath(report.Tracks[2].OutputPath))

	require.Len(t, env.extractor.reqs, 3)
	for _, req := range env.extractor.reqs {
		assert.Equal(t, env.mediaPath, req.SourcePath)
		assert.Equal(t, 3, req.Tags.TrackCount)
		assert.Equal(t, "Host: Name", req.Tags.Artist)
		assert.Equal(t, "Episode 12", req.Tags.Album)
		if req.Tags.TrackNumber == 3 {
			assert.Nil(t, req.End)
		} else {
			assert.NotNil(t, req.End)
		}
	}

	state := env.tracker.State()
	assert.Equal(t, progress.StageComplete, state.Stage)
	assert.Equal(t, 100.0, state.Progress)

	env.fetcher.AssertExpectations(t)
	env.extractor.AssertNumberOfCalls(t, "Extract", 3)
}

func TestRunSkipsDownloadWhenMediaPresent(t *testing.T) {
	env := newTestEnv(t)
	env.expectFetch(t, testDescription)
	env.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil)
	require.NoError(t, os.WriteFile(env.mediaPath, []byte("already here"), 0644))

	report, err := env.processor().Run(context.Background(), Options{Source: testSource})
	require.NoError(t, err)

	assert.Equal(t, env.mediaPath, report.MediaPath)
	env.fetcher.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCaptionsOnly(t *testing.T) {
	env := newTestEnv(t)
	env.expectFetch(t, testDescription)

	report, err := env.processor().Run(context.Background(), Options{Source: testSource, CaptionsOnly: true})
	require.NoError(t, err)

	require.Len(t, report.Tracks, 3)
	for _, res := range report.Tracks {
		assert.False(t, res.Extracted)
		assert.NoFileExists(t, res.OutputPath)
	}
	assert.FileExists(t, report.Tracks[0].CaptionPath)
	assert.FileExists(t, report.Tracks[1].CaptionPath)
	assert.Equal(t, []int{3}, report.MissingCaptions)

	env.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestRunWithoutCaptions(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.On("Metadata", mock.Anything, testSource).Return(testMetadata(testDescription), nil)
	env.fetcher.On("MediaPath", mock.Anything, testSource, "251", env.workDir).Return(env.mediaPath, nil)
	require.NoError(t, os.WriteFile(env.mediaPath, []byte("media"), 0644))
	env.fetcher.On("Captions", mock.Anything, testSource, "abc123", "de", "vtt", env.workDir).
		Return("", downloader.ErrNoCaptions)
	env.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil)

	report, err := env.processor().Run(context.Background(), Options{Source: testSource, Lang: "de"})
	require.NoError(t, err)

	assert.Empty(t, report.CaptionsPath)
	assert.Equal(t, []int{1, 2, 3}, report.MissingCaptions)
	env.extractor.AssertNumberOfCalls(t, "Extract", 3)
}

func TestRunWithoutTracklist(t *testing.T) {
	env := newTestEnv(t)
	env.expectFetch(t, "No chapters in this one.")
	env.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil)

	report, err := env.processor().Run(context.Background(), Options{Source: testSource})
	require.NoError(t, err)

	require.Len(t, report.Tracks, 1)
	track := report.Tracks[0]
	assert.Equal(t, 1, track.Number)
	assert.Equal(t, "Episode 12 | The Show", track.Title)
	assert.Zero(t, track.Start.Duration())
	assert.Nil(t, track.End)
	assert.Empty(t, report.MissingCaptions)

	lines, err := os.ReadFile(track.CaptionPath)
	require.NoError(t, err)
	assert.Equal(t, "Welcome to the show.\nFirst topic starts here.\nMore to say", string(lines))
}

func TestRunWithTracklistFile(t *testing.T) {
	env := newTestEnv(t)
	env.expectFetch(t, testDescription)
	env.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil)

	tracklistPath := filepath.Join(t.TempDir(), "tracks.txt")
	require.NoError(t, os.WriteFile(tracklistPath, []byte("00:00 Cold open\n01:00 Interview\n"), 0644))

	report, err := env.processor().Run(context.Background(), Options{Source: testSource, TracklistPath: tracklistPath})
	require.NoError(t, err)

	require.Len(t, report.Tracks, 2)
	assert.Equal(t, "Cold open", report.Tracks[0].Title)
	assert.Equal(t, "Interview", report.Tracks[1].Title)
	assert.Empty(t, report.MissingCaptions)
}

func TestRunMissingTracklistFile(t *testing.T) {
	env := newTestEnv(t)
	env.expectFetch(t, testDescription)

	_, err := env.processor().Run(context.Background(), Options{
		Source:        testSource,
		TracklistPath: filepath.Join(t.TempDir(), "missing.txt"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import tracks (file)")
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, env *testEnv)
		wantErr error
		wantMsg string
	}{
		{
			name: "metadata failure",
			setup: func(t *testing.T, env *testEnv) {
				env.fetcher.On("Metadata", mock.Anything, testSource).Return(nil, errors.New("video unavailable"))
			},
			wantMsg: "fetch metadata: video unavailable",
		},
		{
			name: "no audio encoding",
			setup: func(t *testing.T, env *testEnv) {
				meta := testMetadata(testDescription)
				meta.Formats = []domain.Encoding{{ID: "137", Codec: "none", VideoCodec: "avc1", Bitrate: 4000}}
				env.fetcher.On("Metadata", mock.Anything, testSource).Return(meta, nil)
			},
			wantErr: downloader.ErrNoEncoding,
			wantMsg: "select encoding",
		},
		{
			name: "download failure",
			setup: func(t *testing.T, env *testEnv) {
				env.fetcher.On("Metadata", mock.Anything, testSource).Return(testMetadata(testDescription), nil)
				env.fetcher.On("MediaPath", mock.Anything, testSource, "251", env.workDir).Return(env.mediaPath, nil)
				env.fetcher.On("Download", mock.Anything, testSource, "251", env.workDir, mock.Anything).
					Return("", downloader.ErrDownloadFailed)
			},
			wantErr: downloader.ErrDownloadFailed,
			wantMsg: "download media",
		},
		{
			name: "extraction failure",
			setup: func(t *testing.T, env *testEnv) {
				env.expectFetch(t, testDescription)
				env.extractor.On("Extract", mock.Anything, mock.Anything).Return(errors.New("ffmpeg exploded"))
			},
			wantMsg: "extract track",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(t, env)

			report, err := env.processor().Run(context.Background(), Options{Source: testSource})

			require.Error(t, err)
			assert.Nil(t, report)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Contains(t, err.Error(), tt.wantMsg)

			state := env.tracker.State()
			assert.Equal(t, progress.StageError, state.Stage)
			assert.Error(t, state.Err)
		})
	}
}

func TestRunTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Timeouts.Metadata = 20 * time.Millisecond
	env.fetcher.On("Metadata", mock.Anything, testSource).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	_, err := env.processor().Run(context.Background(), Options{Source: testSource})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "fetch metadata")
}

func TestRunParallelExtraction(t *testing.T) {
	env := newTestEnv(t)
	env.expectFetch(t, testDescription)
	env.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil)

	report, err := env.processor().Run(context.Background(), Options{Source: testSource, Workers: 3})
	require.NoError(t, err)

	require.Len(t, report.Tracks, 3)
	for i, res := range report.Tracks {
		assert.Equal(t, i+1, res.Number, "results stay in track order")
		assert.FileExists(t, res.OutputPath)
	}
	env.extractor.AssertNumberOfCalls(t, "Extract", 3)
}

func TestRunLockedOutput(t *testing.T) {
	env := newTestEnv(t)

	other, err := storage.NewLocalFileStorage(env.outputDir, env.workDir)
	require.NoError(t, err)
	unlock, err := other.Lock()
	require.NoError(t, err)
	defer unlock()

	_, err = env.processor().Run(context.Background(), Options{Source: testSource})

	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrLocked)
	env.fetcher.AssertNotCalled(t, "Metadata", mock.Anything, mock.Anything)
}
