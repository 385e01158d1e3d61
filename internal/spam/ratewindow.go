package spam

import (
	"sync"
	"time"
)

// maxEventsPerSubmitter bounds the per-submitter event log. The daily
// ceiling is 200, so anything beyond that only matters for pruning.
const maxEventsPerSubmitter = 256

// rateWindow keeps per-submitter submission timestamps for the trailing
// day, supporting counts over arbitrary sub-windows. Eviction is explicit:
// events older than 24h are dropped on every touch, and the log is capped.
type rateWindow struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

func newRateWindow() *rateWindow {
	return &rateWindow{events: make(map[string][]time.Time)}
}

// Observe records one submission at t and returns counts over the last
// minute, hour, and day, including the new event.
func (w *rateWindow) Observe(submitterID string, t time.Time) (minute, hour, day int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	events := w.prune(submitterID, t)
	events = append(events, t)
	if len(events) > maxEventsPerSubmitter {
		events = events[len(events)-maxEventsPerSubmitter:]
	}
	w.events[submitterID] = events

	minuteCutoff := t.Add(-time.Minute)
	hourCutoff := t.Add(-time.Hour)
	for _, e := range events {
		day++
		if e.After(hourCutoff) {
			hour++
		}
		if e.After(minuteCutoff) {
			minute++
		}
	}
	return minute, hour, day
}

// LastSeen returns the most recent prior submission time for the
// submitter, or the zero time if none is retained.
func (w *rateWindow) LastSeen(submitterID string) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	events := w.events[submitterID]
	if len(events) == 0 {
		return time.Time{}
	}
	return events[len(events)-1]
}

// prune drops events older than 24h; callers hold the lock.
func (w *rateWindow) prune(submitterID string, now time.Time) []time.Time {
	events := w.events[submitterID]
	cutoff := now.Add(-24 * time.Hour)
	kept := events[:0]
	for _, e := range events {
		if e.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(w.events, submitterID)
		return nil
	}
	return kept
}
