package tracklist

import (
	"bufio"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/jaki95/podsplit/internal/domain"
)

// trackLine matches "[[H]H:]M[M]:SS<sep>title" where sep is whitespace or a hyphen.
var trackLine = regexp.MustCompile(`^(?:(\d{1,2}):)?(\d{1,2}):(\d{2})[\s\-]+(.+)$`)

var titleReplacer = strings.NewReplacer(`"`, "'", "/", "-")

// Parse extracts an ordered track list from free text such as a video
// description. Lines that do not start with a timestamp are ignored, so the
// result is empty (never an error) when the text carries no listing.
//
// Tracks are numbered sequentially from 1 in the order they appear; any
// numbering inside the text itself is left in the title. Each track ends where
// the next one starts and the last track has no end.
func Parse(text string) []domain.Track {
	var tracks []domain.Track

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		m := trackLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		start, err := lineTimestamp(m[1], m[2], m[3])
		if err != nil {
			slog.Debug("Skipping track line with invalid timestamp", "line", line, "error", err)
			continue
		}

		title := titleReplacer.Replace(strings.TrimSpace(m[4]))
		if title == "" {
			continue
		}

		tracks = append(tracks, domain.Track{
			Number: len(tracks) + 1,
			Title:  title,
			Start:  start,
		})
	}

	linkEnds(tracks)
	return tracks
}

// linkEnds makes every track end where the next one starts. The last track
// keeps its own end.
func linkEnds(tracks []domain.Track) {
	for i := 0; i < len(tracks)-1; i++ {
		end := tracks[i+1].Start
		tracks[i].End = &end
	}
}

func lineTimestamp(hr, min, sec string) (domain.Timestamp, error) {
	h := 0
	if hr != "" {
		h, _ = strconv.Atoi(hr)
	}
	m, _ := strconv.Atoi(min)
	s, _ := strconv.Atoi(sec)
	if hr == "" {
		// "75:00" is a valid listing entry for long recordings.
		h, m = m/60, m%60
	}
	return domain.NewTimestamp(h, m, s, 0)
}
