package tracklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jaki95/podsplit/internal/domain"
)

// ErrNoTracks is returned by importers when the source holds no track listing.
var ErrNoTracks = errors.New("no tracks found")

// Importer produces a track list from a given source.
type Importer interface {
	Import(ctx context.Context, source string) ([]domain.Track, error)
	Name() string
}

// DescriptionImporter parses a track listing embedded in free text, typically
// the description field of the media metadata.
type DescriptionImporter struct{}

func NewDescriptionImporter() *DescriptionImporter {
	return &DescriptionImporter{}
}

func (d *DescriptionImporter) Name() string {
	return "description"
}

func (d *DescriptionImporter) Import(ctx context.Context, description string) ([]domain.Track, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	tracks := Parse(description)
	if len(tracks) == 0 {
		return nil, ErrNoTracks
	}
	return tracks, nil
}

// FileImporter reads a track listing from a local file. HTML files (for
// example a saved tracklist page) are flattened to text first and JSON files
// hold an array of tracks.
type FileImporter struct{}

func NewFileImporter() *FileImporter {
	return &FileImporter{}
}

func (f *FileImporter) Name() string {
	return "file"
}

func (f *FileImporter) Import(ctx context.Context, path string) ([]domain.Track, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracklist file: %w", err)
	}

	text := string(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		tracks, err := decodeTracks(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse tracklist JSON: %w", err)
		}
		if len(tracks) == 0 {
			return nil, fmt.Errorf("%w in %s", ErrNoTracks, path)
		}
		return tracks, nil
	case ".html", ".htm":
		text, err = htmlToText(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse tracklist HTML: %w", err)
		}
	}

	slog.Debug("Parsing tracklist file", "path", path, "bytes", len(data))

	tracks := Parse(text)
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoTracks, path)
	}
	return tracks, nil
}

// decodeTracks reads a JSON array of tracks such as the "tracks" of a run
// report. Tracks are ordered by start time and renumbered from 1.
func decodeTracks(data []byte) ([]domain.Track, error) {
	var tracks []domain.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, err
	}

	sort.SliceStable(tracks, func(i, j int) bool {
		return tracks[i].Start.Before(tracks[j].Start)
	})
	for i := range tracks {
		tracks[i].Number = i + 1
		tracks[i].Title = titleReplacer.Replace(strings.TrimSpace(tracks[i].Title))
	}
	linkEnds(tracks)
	return tracks, nil
}

// blockElements each become their own line of text.
const blockElements = "p, li, div, tr, h1, h2, h3, h4, h5, h6, pre"

// htmlToText renders the text of the leaf block elements of an HTML document,
// one per line. <br> is treated as a line break.
func htmlToText(document string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return "", err
	}

	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")

	var lines []string
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		if s.Find(blockElements).Length() > 0 {
			return
		}
		for _, line := range strings.Split(s.Text(), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	})

	if len(lines) == 0 {
		return doc.Text(), nil
	}
	return strings.Join(lines, "\n"), nil
}
