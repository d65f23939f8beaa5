package audio

import (
	"context"

	"github.com/jaki95/podsplit/internal/domain"
)

// Extractor cuts one segment out of a source media file.
type Extractor interface {
	Extract(ctx context.Context, req Request) error
}

// Tags are the metadata fields embedded into an extracted segment.
type Tags struct {
	TrackNumber int
	TrackCount  int
	Artist      string
	Album       string
	Title       string
}

// Request fully describes one segment extraction. End is nil when the
// segment runs to the end of the source.
type Request struct {
	SourcePath string
	Start      domain.Timestamp
	End        *domain.Timestamp
	OutputPath string
	Tags       Tags
}
