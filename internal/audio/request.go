package audio

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jaki95/podsplit/internal/domain"
)

// CaptionExt is the extension of the per-track caption text files.
const CaptionExt = ".subs"

var filenameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"|", "-",
	"?", "",
	"\"", "'",
)

// SanitizeFilename makes one filename component safe on common filesystems.
// The same substitutions are used for every component of an output name.
func SanitizeFilename(name string) string {
	return strings.TrimSpace(filenameReplacer.Replace(norm.NFC.String(name)))
}

// AlbumFromTitle derives an album name from a video title: only the part
// before the first "|" is kept.
func AlbumFromTitle(title string) string {
	head, _, _ := strings.Cut(title, "|")
	return strings.TrimSpace(head)
}

// OutputName returns "{n} - {title} - {artist} - {album}.{ext}" with every
// component sanitized.
func OutputName(number int, title, artist, album, ext string) string {
	parts := []string{
		fmt.Sprint(number),
		SanitizeFilename(title),
		SanitizeFilename(artist),
		SanitizeFilename(album),
	}
	return strings.Join(parts, " - ") + "." + SanitizeFilename(strings.TrimPrefix(ext, "."))
}

// BuildRequest assembles the extraction request for one track. It performs no
// I/O and always yields the same request for the same inputs.
func BuildRequest(track domain.Track, mediaPath, artist, album, outputDir, ext string) Request {
	req := Request{
		SourcePath: mediaPath,
		Start:      track.Start,
		OutputPath: filepath.Join(outputDir, OutputName(track.Number, track.Title, artist, album, ext)),
		Tags: Tags{
			TrackNumber: track.Number,
			Artist:      artist,
			Album:       album,
			Title:       track.Title,
		},
	}
	if track.End != nil {
		end := *track.End
		req.End = &end
	}
	return req
}

// BuildRequests builds one request per track, in track order.
func BuildRequests(tracks []domain.Track, mediaPath, artist, album, outputDir, ext string) []Request {
	reqs := make([]Request, 0, len(tracks))
	for _, track := range tracks {
		req := BuildRequest(track, mediaPath, artist, album, outputDir, ext)
		req.Tags.TrackCount = len(tracks)
		reqs = append(reqs, req)
	}
	return reqs
}

// CaptionPath returns the caption file that sits next to an output file.
func CaptionPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + CaptionExt
}
