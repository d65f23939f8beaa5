// Package downloader drives the external media fetcher (yt-dlp or a
// youtube-dl compatible tool).
package downloader

import (
	"context"

	"github.com/jaki95/podsplit/internal/domain"
)

// ProgressCallback receives download progress in percent (0-100) and a
// human readable message.
type ProgressCallback func(int, string)

// Fetcher obtains metadata, media and captions for a remote identifier.
type Fetcher interface {
	// Metadata returns the title, author, description and encodings.
	Metadata(ctx context.Context, source string) (*domain.Metadata, error)

	// MediaPath returns the local path the given encoding downloads to,
	// without downloading it.
	MediaPath(ctx context.Context, source, formatID, dir string) (string, error)

	// Download fetches the given encoding into dir and returns its path.
	// progressCallback can be nil.
	Download(ctx context.Context, source, formatID, dir string, progressCallback ProgressCallback) (string, error)

	// Captions writes the caption file for lang into dir and returns its path.
	// videoID is the Metadata ID of source; only files named after it are
	// accepted.
	Captions(ctx context.Context, source, videoID, lang, format, dir string) (string, error)
}
