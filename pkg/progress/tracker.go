// Package progress publishes the install-session progress events an
// external UI collaborator consumes. The agent itself never renders
// progress; it only produces the event stream.
package progress

import (
	"sync"
	"time"
)

// Status is the lifecycle state of one tracked item.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusInstalling  Status = "installing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
)

// Event is one progress update for one item, published to every watcher.
type Event struct {
	Item      string
	Action    string // install, update, uninstall
	Status    Status
	Phase     string
	Percent   int
	Message   string
	Timestamp time.Time
}

// Tracker fans out item lifecycle events to any number of watchers.
// Pending/Downloading/Installing/Completed/Failed/Skipped are
// called from the session/fetch/executor packages as work happens; an
// external UI reads events from the channels returned by Watch.
type Tracker struct {
	mu        sync.Mutex
	watchers  []chan Event
	sessionID string
}

// New creates a Tracker for one session run.
func New(sessionID string) *Tracker {
	return &Tracker{sessionID: sessionID}
}

// Watch registers a new subscriber. The returned channel is closed by
// Close. Callers must keep draining it to avoid blocking publication.
func (t *Tracker) Watch() <-chan Event {
	ch := make(chan Event, 64)
	t.mu.Lock()
	t.watchers = append(t.watchers, ch)
	t.mu.Unlock()
	return ch
}

// Close closes every watcher channel, signaling end of session.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.watchers {
		close(ch)
	}
	t.watchers = nil
}

func (t *Tracker) publish(e Event) {
	e.Timestamp = time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.watchers {
		select {
		case ch <- e:
		default:
			// a slow watcher drops events rather than stalling the session
		}
	}
}

// Pending announces an item has been scheduled but not yet started.
func (t *Tracker) Pending(item, action string) {
	t.publish(Event{Item: item, Action: action, Status: StatusPending})
}

// Downloading reports download progress as a 0-100 percentage.
func (t *Tracker) Downloading(item string, percent int) {
	t.publish(Event{Item: item, Status: StatusDownloading, Phase: "download", Percent: percent})
}

// Installing reports that an item has entered a named install phase
// (e.g. "preinstall_script", "installer", "postinstall_script").
func (t *Tracker) Installing(item, action, phase string) {
	t.publish(Event{Item: item, Action: action, Status: StatusInstalling, Phase: phase})
}

// Completed reports a successful install/removal.
func (t *Tracker) Completed(item, action string) {
	t.publish(Event{Item: item, Action: action, Status: StatusCompleted, Percent: 100})
}

// Failed reports a failed install/removal with an explanatory message.
func (t *Tracker) Failed(item, action, message string) {
	t.publish(Event{Item: item, Action: action, Status: StatusFailed, Message: message})
}

// Skipped reports an item that was gated out (unattended mismatch,
// blocking application running, precondition failure).
func (t *Tracker) Skipped(item, action, reason string) {
	t.publish(Event{Item: item, Action: action, Status: StatusSkipped, Message: reason})
}
