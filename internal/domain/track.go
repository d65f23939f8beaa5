package domain

// Track represents one named segment of the source media.
type Track struct {
	Number int        `json:"track_number"`
	Title  string     `json:"title"`
	Start  Timestamp  `json:"start_time"`
	End    *Timestamp `json:"end_time,omitempty"` // nil on the last track
}

// Cue is one timed block of caption text.
type Cue struct {
	Start Timestamp `json:"start"`
	End   Timestamp `json:"end"`
	Text  string    `json:"text"`
}

// Assignment maps a track number to its caption lines. Tracks that received
// no cues are absent.
type Assignment map[int][]string
