// Package processor runs the full pipeline for one source: metadata,
// media, track list, captions, alignment and segment extraction.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jaki95/podsplit/config"
	"github.com/jaki95/podsplit/internal/align"
	"github.com/jaki95/podsplit/internal/audio"
	"github.com/jaki95/podsplit/internal/captions"
	"github.com/jaki95/podsplit/internal/domain"
	"github.com/jaki95/podsplit/internal/downloader"
	"github.com/jaki95/podsplit/internal/progress"
	"github.com/jaki95/podsplit/internal/storage"
	"github.com/jaki95/podsplit/internal/tracklist"
)

// ErrToolTimeout marks a collaborator call that exceeded its configured timeout.
var ErrToolTimeout = errors.New("tool timed out")

// Options select what a single run does.
type Options struct {
	Source string

	// TracklistPath, when set, replaces the track listing found in the
	// media description.
	TracklistPath string

	// CaptionsOnly skips extraction and writes only caption files.
	CaptionsOnly bool

	// Workers overrides the configured extraction concurrency when positive.
	Workers int

	// Lang overrides the configured caption language when set.
	Lang string
}

// TrackResult describes what a run produced for one track. Its JSON form is
// a valid track list entry, so a saved report can be edited and fed back.
type TrackResult struct {
	Number      int               `json:"track_number"`
	Title       string            `json:"title"`
	Start       domain.Timestamp  `json:"start_time"`
	End         *domain.Timestamp `json:"end_time,omitempty"`
	OutputPath  string            `json:"output_path"`
	Extracted   bool              `json:"extracted"`
	CaptionPath string            `json:"caption_path,omitempty"`
	Lines       int               `json:"caption_lines"`
}

// Report summarises a completed run.
type Report struct {
	Title           string        `json:"title"`
	Album           string        `json:"album"`
	Artist          string        `json:"artist"`
	MediaPath       string        `json:"media_path"`
	CaptionsPath    string        `json:"captions_path,omitempty"`
	Tracks          []TrackResult `json:"tracks"`
	MissingCaptions []int         `json:"missing_captions,omitempty"`
}

type Processor struct {
	cfg          *config.Config
	fetcher      downloader.Fetcher
	extractor    audio.Extractor
	storage      storage.Storage
	tracker      progress.Tracker
	descriptions tracklist.Importer
	files        tracklist.Importer
	logger       *slog.Logger
}

func New(
	cfg *config.Config,
	fetcher downloader.Fetcher,
	extractor audio.Extractor,
	store storage.Storage,
	tracker progress.Tracker,
	logger *slog.Logger,
) *Processor {
	if tracker == nil {
		tracker = progress.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:          cfg,
		fetcher:      fetcher,
		extractor:    extractor,
		storage:      store,
		tracker:      tracker,
		descriptions: tracklist.NewDescriptionImporter(),
		files:        tracklist.NewFileImporter(),
		logger:       logger,
	}
}

// Run processes one source. Missing captions for the whole source or for
// individual tracks are reported, not returned as errors.
func (p *Processor) Run(ctx context.Context, opts Options) (*Report, error) {
	report, err := p.run(ctx, opts)
	if err != nil {
		p.tracker.SetError(err)
		return nil, err
	}
	p.tracker.UpdateProgress(progress.StageComplete, 100, "Processing completed")
	return report, nil
}

func (p *Processor) run(ctx context.Context, opts Options) (*Report, error) {
	unlock, err := p.storage.Lock()
	if err != nil {
		return nil, fmt.Errorf("lock output directory: %w", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			p.logger.Warn("failed to release output lock", "error", err)
		}
	}()

	p.tracker.UpdateProgress(progress.StageMetadata, 0, "Fetching metadata")
	meta, err := withTimeout(ctx, p.cfg.Timeouts.Metadata, func(ctx context.Context) (*domain.Metadata, error) {
		return p.fetcher.Metadata(ctx, opts.Source)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	p.logger.Info("fetched metadata", "title", meta.Title, "artist", meta.Artist(), "formats", len(meta.Formats))

	enc, err := downloader.SelectEncoding(meta.Formats, p.cfg.PreferredFormat)
	if err != nil {
		return nil, fmt.Errorf("select encoding: %w", err)
	}
	p.logger.Debug("selected encoding", "format_id", enc.ID, "codec", enc.Codec, "bitrate", enc.Bitrate)

	mediaPath, err := p.ensureMedia(ctx, opts.Source, enc)
	if err != nil {
		return nil, err
	}

	tracks, err := p.importTracks(ctx, meta, opts.TracklistPath)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Title:     meta.Title,
		Album:     audio.AlbumFromTitle(meta.Title),
		Artist:    meta.Artist(),
		MediaPath: mediaPath,
	}

	lang := p.cfg.CaptionLang
	if opts.Lang != "" {
		lang = opts.Lang
	}
	var assignment domain.Assignment
	report.CaptionsPath, assignment = p.alignCaptions(ctx, opts.Source, meta.ID, lang, tracks)

	ext := p.cfg.OutputFormat
	if ext == "" {
		ext = downloader.OutputExt(enc)
	}
	reqs := audio.BuildRequests(tracks, mediaPath, report.Artist, report.Album, p.storage.OutputDir(), ext)

	workers := p.cfg.MaxWorkers
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	report.Tracks, err = p.processTracks(ctx, reqs, assignment, opts.CaptionsOnly, workers)
	if err != nil {
		return nil, err
	}

	for _, res := range report.Tracks {
		if res.CaptionPath == "" {
			report.MissingCaptions = append(report.MissingCaptions, res.Number)
		}
	}

	return report, nil
}

// ensureMedia downloads the selected encoding into the working directory
// unless a previous run already left it there.
func (p *Processor) ensureMedia(ctx context.Context, source string, enc domain.Encoding) (string, error) {
	dir := p.storage.WorkDir()

	mediaPath, err := withTimeout(ctx, p.cfg.Timeouts.Metadata, func(ctx context.Context) (string, error) {
		return p.fetcher.MediaPath(ctx, source, enc.ID, dir)
	})
	if err != nil {
		return "", fmt.Errorf("resolve media path: %w", err)
	}

	if p.storage.FileExists(mediaPath) {
		p.logger.Info("media already present, skipping download", "path", mediaPath)
		p.tracker.UpdateProgress(progress.StageDownloading, 40, "Media already downloaded")
		return mediaPath, nil
	}

	p.tracker.UpdateProgress(progress.StageDownloading, 10, "Downloading media")
	downloaded, err := withTimeout(ctx, p.cfg.Timeouts.Download, func(ctx context.Context) (string, error) {
		return p.fetcher.Download(ctx, source, enc.ID, dir, func(percent int, message string) {
			// Download covers 10-40% of the run.
			p.tracker.UpdateProgress(progress.StageDownloading, 10+float64(percent)*0.3, message)
		})
	})
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	p.logger.Info("downloaded media", "path", downloaded)

	return downloaded, nil
}

// importTracks reads the track list from the override file when one is given,
// otherwise from the media description. An empty listing yields a single
// track spanning the whole media.
func (p *Processor) importTracks(ctx context.Context, meta *domain.Metadata, tracklistPath string) ([]domain.Track, error) {
	importer, source := p.descriptions, meta.Description
	if tracklistPath != "" {
		importer, source = p.files, tracklistPath
	}

	tracks, err := importer.Import(ctx, source)
	switch {
	case errors.Is(err, tracklist.ErrNoTracks):
		p.logger.Warn("no track list found, treating media as a single track", "importer", importer.Name())
		return []domain.Track{{Number: 1, Title: meta.Title}}, nil
	case err != nil:
		return nil, fmt.Errorf("import tracks (%s): %w", importer.Name(), err)
	}

	p.logger.Info("imported tracks", "importer", importer.Name(), "count", len(tracks))
	return tracks, nil
}

// alignCaptions fetches, copies, parses and aligns the captions. Any failure
// is logged and yields an empty assignment.
func (p *Processor) alignCaptions(ctx context.Context, source, videoID, lang string, tracks []domain.Track) (string, domain.Assignment) {
	p.tracker.UpdateProgress(progress.StageCaptions, 40, "Fetching captions")

	path, err := withTimeout(ctx, p.cfg.Timeouts.Captions, func(ctx context.Context) (string, error) {
		return p.fetcher.Captions(ctx, source, videoID, lang, p.cfg.CaptionFormat, p.storage.WorkDir())
	})
	if err != nil {
		p.logger.Warn("captions unavailable, continuing without them", "lang", lang, "error", err)
		return "", domain.Assignment{}
	}

	if copied, err := p.storage.CopyToOutput(path); err != nil {
		p.logger.Warn("failed to copy captions to output directory", "path", path, "error", err)
	} else {
		path = copied
	}

	cues, err := p.parseCaptions(path)
	switch {
	case errors.Is(err, captions.ErrMalformedBlock):
		var blocks interface{ Unwrap() []error }
		skipped := 1
		if errors.As(err, &blocks) {
			skipped = len(blocks.Unwrap())
		}
		p.logger.Warn("skipped malformed caption blocks", "path", path, "skipped", skipped, "error", err)
	case err != nil:
		p.logger.Warn("failed to parse captions", "path", path, "error", err)
		return path, domain.Assignment{}
	}

	assignment := align.Align(cues, tracks)
	p.logger.Info("aligned captions", "cues", len(cues), "tracks", len(tracks), "with_captions", len(assignment))
	p.tracker.UpdateProgress(progress.StageCaptions, 50, fmt.Sprintf("Aligned %d captions", len(cues)))

	return path, assignment
}

func (p *Processor) parseCaptions(path string) ([]domain.Cue, error) {
	r, err := p.storage.GetReader(path)
	if err != nil {
		return nil, fmt.Errorf("open captions: %w", err)
	}
	defer r.Close()
	return captions.ParseReader(r)
}

// processTracks extracts every segment on a bounded worker pool and writes
// the caption file next to each output. The first failure cancels the
// remaining work.
func (p *Processor) processTracks(ctx context.Context, reqs []audio.Request, assignment domain.Assignment, captionsOnly bool, workers int) ([]TrackResult, error) {
	results := make([]TrackResult, len(reqs))
	total := len(reqs)
	var processed atomic.Int32

	p.tracker.UpdateProgress(progress.StageSplitting, 50, fmt.Sprintf("Processing %d tracks", total))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res := TrackResult{
				Number:     req.Tags.TrackNumber,
				Title:      req.Tags.Title,
				Start:      req.Start,
				End:        req.End,
				OutputPath: req.OutputPath,
			}

			if !captionsOnly {
				_, err := withTimeout(gctx, p.cfg.Timeouts.Extract, func(ctx context.Context) (struct{}, error) {
					return struct{}{}, p.extractor.Extract(ctx, req)
				})
				if err != nil {
					return fmt.Errorf("extract track %d (%s): %w", req.Tags.TrackNumber, req.Tags.Title, err)
				}
				res.Extracted = true
			}

			if lines := assignment[req.Tags.TrackNumber]; len(lines) > 0 {
				captionPath := audio.CaptionPath(req.OutputPath)
				if err := p.storage.WriteCaptions(captionPath, lines); err != nil {
					return fmt.Errorf("write captions for track %d: %w", req.Tags.TrackNumber, err)
				}
				res.CaptionPath = captionPath
				res.Lines = len(lines)
			} else {
				p.logger.Warn("no captions for track", "track", req.Tags.TrackNumber, "title", req.Tags.Title)
			}

			results[i] = res

			done := int(processed.Add(1))
			p.tracker.UpdateTrackProgress(req.Tags.TrackNumber, total, done, req.Tags.Title)
			p.logger.Debug("processed track", "track", req.Tags.TrackNumber, "output", req.OutputPath)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// withTimeout bounds fn by d. A zero duration leaves ctx untouched.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return v, fmt.Errorf("%w after %s: %w", ErrToolTimeout, d, err)
	}
	return v, err
}
