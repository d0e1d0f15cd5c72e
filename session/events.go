package session

import (
	"sync"

	"tabscope/log"
	"tabscope/session/git"
	"tabscope/stream"
)

// Subscriber receives the interpreted view of every tab. Callbacks are
// invoked synchronously in event order for a given tab; a subscriber that
// needs to do slow work must hand the event off to its own goroutine.
type Subscriber interface {
	// OnBlockEvent delivers a classifier block upsert.
	OnBlockEvent(tabID string, ev stream.BlockEvent)
	// OnStatusChange delivers a command lifecycle transition.
	OnStatusChange(tabID string, status stream.TabStatus, cmd *stream.CommandInfo)
	// OnRiskyDetection delivers a newly surfaced risky-operation detection.
	OnRiskyDetection(tabID string, det stream.RiskyDetection)
	// OnSnapshotResult delivers the outcome of a protective snapshot attempt.
	OnSnapshotResult(tabID string, snap *git.Snapshot, err error)
}

// fanout delivers events to all subscribers. A panicking subscriber is
// logged and skipped; it never takes down the pipeline.
type fanout struct {
	mu   sync.RWMutex
	subs []Subscriber
}

func (f *fanout) subscribe(s Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, s)
}

func (f *fanout) each(fn func(Subscriber)) {
	f.mu.RLock()
	subs := make([]Subscriber, len(f.subs))
	copy(subs, f.subs)
	f.mu.RUnlock()

	for _, s := range subs {
		safeCall(func() { fn(s) })
	}
}

func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.ErrorLog.Printf("subscriber panicked: %v", r)
		}
	}()
	fn()
}

func (f *fanout) blockEvent(tabID string, ev stream.BlockEvent) {
	f.each(func(s Subscriber) { s.OnBlockEvent(tabID, ev) })
}

func (f *fanout) statusChange(tabID string, status stream.TabStatus, cmd *stream.CommandInfo) {
	f.each(func(s Subscriber) { s.OnStatusChange(tabID, status, cmd) })
}

func (f *fanout) riskyDetection(tabID string, det stream.RiskyDetection) {
	f.each(func(s Subscriber) { s.OnRiskyDetection(tabID, det) })
}

func (f *fanout) snapshotResult(tabID string, snap *git.Snapshot, err error) {
	f.each(func(s Subscriber) { s.OnSnapshotResult(tabID, snap, err) })
}
