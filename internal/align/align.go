// Package align attributes caption cues to the tracks they were spoken in.
package align

import (
	"strings"

	"github.com/jaki95/podsplit/internal/domain"
)

// Align assigns every cue to exactly one track and returns the caption lines
// of each track that received at least one cue.
//
// Both inputs must already be sorted by start time and the tracks must be
// contiguous, as produced by tracklist.Parse. The assignment is a single
// forward pass: the track cursor only moves forward while the cue starts after
// the current track's end, so out-of-order input is silently misassigned.
// Cues before the first track go to the first track and cues past the last
// track's start go to the last track.
func Align(cues []domain.Cue, tracks []domain.Track) domain.Assignment {
	result := make(domain.Assignment)
	if len(tracks) == 0 {
		return result
	}

	fragments := make(map[int][]string)
	cursor := 0
	for _, cue := range cues {
		for cursor < len(tracks)-1 && endsBefore(tracks[cursor], cue.Start) {
			cursor++
		}
		number := tracks[cursor].Number
		fragments[number] = append(fragments[number], cue.Text)
	}

	for number, texts := range fragments {
		if lines := Sentences(strings.Join(texts, " ")); len(lines) > 0 {
			result[number] = lines
		}
	}
	return result
}

func endsBefore(track domain.Track, at domain.Timestamp) bool {
	return track.End != nil && at.After(*track.End)
}

// Sentences breaks text into lines after every period. The period stays on
// its line, surrounding whitespace is trimmed and empty lines are dropped.
func Sentences(text string) []string {
	var lines []string
	for _, line := range strings.SplitAfter(text, ".") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
