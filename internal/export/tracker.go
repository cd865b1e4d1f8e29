package export

import "sync"

// EscalationTracker counts outstanding cloud arbitration calls per
// video. The pipeline brackets each cloud call with Begin/End; the
// scheduler consults Active to shed render concurrency for that video
// while the call is in flight.
type EscalationTracker struct {
	mu          sync.Mutex
	outstanding map[string]int
}

// NewEscalationTracker creates an empty tracker.
func NewEscalationTracker() *EscalationTracker {
	return &EscalationTracker{outstanding: make(map[string]int)}
}

// Begin records the start of a cloud call for a video.
func (t *EscalationTracker) Begin(videoID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outstanding[videoID]++
}

// End records the completion of a cloud call.
func (t *EscalationTracker) End(videoID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outstanding[videoID] <= 1 {
		delete(t.outstanding, videoID)
		return
	}
	t.outstanding[videoID]--
}

// Active reports whether the video has a cloud call in flight.
func (t *EscalationTracker) Active(videoID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outstanding[videoID] > 0
}
