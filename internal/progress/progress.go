// Package progress reports how far a run has got. The processor writes to a
// Tracker; the CLI listens and draws a progress bar.
package progress

import (
	"sync"
	"time"
)

type Stage string

const (
	StageInitializing Stage = "initializing"
	StageMetadata     Stage = "metadata"
	StageDownloading  Stage = "downloading"
	StageCaptions     Stage = "captions"
	StageSplitting    Stage = "splitting"
	StageComplete     Stage = "complete"
	StageError        Stage = "error"
)

// Event is a snapshot of a run. Progress is a percentage of the whole run.
type Event struct {
	Stage    Stage
	Progress float64
	Message  string
	Time     time.Time
	Track    *TrackDetails // set once extraction has started
	Err      error
}

// TrackDetails describes the most recently finished track.
type TrackDetails struct {
	Number    int
	Total     int
	Processed int
	Title     string
}

// Tracker receives progress from the pipeline.
type Tracker interface {
	UpdateProgress(stage Stage, progress float64, message string)
	UpdateTrackProgress(trackNumber, totalTracks, processedTracks int, currentTrack string)
	SetError(err error)
}

// ProgressTracker keeps the latest Event and hands every change to its
// listeners. Listeners run on the updating goroutine, outside the lock.
type ProgressTracker struct {
	mu        sync.RWMutex
	state     Event
	listeners []func(Event)
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		state: Event{Stage: StageInitializing, Time: time.Now()},
	}
}

func (pt *ProgressTracker) AddListener(listener func(Event)) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.listeners = append(pt.listeners, listener)
}

func (pt *ProgressTracker) UpdateProgress(stage Stage, progress float64, message string) {
	pt.apply(func(e *Event) {
		e.Stage, e.Progress, e.Message = stage, progress, message
	})
}

func (pt *ProgressTracker) UpdateTrackProgress(trackNumber, totalTracks, processedTracks int, currentTrack string) {
	pt.apply(func(e *Event) {
		e.Track = &TrackDetails{
			Number:    trackNumber,
			Total:     totalTracks,
			Processed: processedTracks,
			Title:     currentTrack,
		}
	})
}

// SetError moves the run to StageError. Progress and the last message are
// kept so callers can tell where it stopped.
func (pt *ProgressTracker) SetError(err error) {
	pt.apply(func(e *Event) {
		e.Stage, e.Err = StageError, err
	})
}

// State returns the latest snapshot.
func (pt *ProgressTracker) State() Event {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.state
}

func (pt *ProgressTracker) apply(change func(*Event)) {
	pt.mu.Lock()
	change(&pt.state)
	pt.state.Time = time.Now()
	event := pt.state
	listeners := pt.listeners
	pt.mu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Discard is a Tracker that drops every update.
var Discard Tracker = discard{}

type discard struct{}

func (discard) UpdateProgress(Stage, float64, string)     {}
func (discard) UpdateTrackProgress(int, int, int, string) {}
func (discard) SetError(error)                            {}
