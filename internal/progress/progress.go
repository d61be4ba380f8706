// Package progress carries transfer progress from a strategy goroutine to the
// worker that owns the status message.
//
// A strategy reports into a Sink without ever blocking; the worker drains the
// Sink, filters it through a Throttle and edits the status message.
package progress

import (
	"fmt"
	"time"
)

// Phase names the transfer direction.
type Phase string

const (
	PhaseDownload Phase = "download"
	PhaseUpload   Phase = "upload"
)

// Update is a point-in-time transfer position.
type Update struct {
	Phase Phase
	Done  int64
	// Total is zero when the size is unknown.
	Total int64
}

// Percent returns the completed share in whole percent, or -1 when Total is unknown.
func (u Update) Percent() int {
	if u.Total <= 0 {
		return -1
	}
	if u.Done >= u.Total {
		return 100
	}
	return int(u.Done * 100 / u.Total)
}

// Final reports whether the update closes its phase.
func (u Update) Final() bool {
	return u.Total > 0 && u.Done >= u.Total
}

// Text renders the status line shown to the requester.
func (u Update) Text() string {
	icon, verb := "⬇️", "Downloading"
	if u.Phase == PhaseUpload {
		icon, verb = "⬆️", "Uploading"
	}
	if u.Total <= 0 {
		return fmt.Sprintf("%s %s %s", icon, verb, FormatBytes(u.Done))
	}
	return fmt.Sprintf("%s %s %d%% (%s / %s)", icon, verb, u.Percent(), FormatBytes(u.Done), FormatBytes(u.Total))
}

// Sink is a latest-value-wins mailbox. Report never blocks: an update that
// has not been drained yet is replaced by the newer one.
type Sink struct {
	ch chan Update
}

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{ch: make(chan Update, 1)}
}

// Report stores u, discarding any undrained update.
func (s *Sink) Report(u Update) {
	if s == nil {
		return
	}
	for {
		select {
		case s.ch <- u:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Func returns a callback reporting phase updates into the sink.
func (s *Sink) Func(phase Phase) func(done, total int64) {
	return func(done, total int64) {
		s.Report(Update{Phase: phase, Done: done, Total: total})
	}
}

// C exposes the mailbox to the draining worker.
func (s *Sink) C() <-chan Update {
	return s.ch
}

// Throttle decides which updates become status edits.
//
// An update passes when its percentage is strictly above the last emitted one
// for the same phase and at least interval has elapsed since the last emission
// (or since the throttle was created). The final update of a phase always passes.
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	last     time.Time
	phase    Phase
	lastPct  int
	lastDone int64
	finished bool
}

// NewThrottle creates a throttle. A nil now uses time.Now.
func NewThrottle(interval time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{interval: interval, now: now, last: now(), lastPct: -1}
}

// Allow reports whether u should be emitted and records it when it is.
func (t *Throttle) Allow(u Update) bool {
	if u.Phase != t.phase {
		t.phase = u.Phase
		t.lastPct = -1
		t.lastDone = 0
		t.finished = false
	}
	if t.finished {
		return false
	}

	now := t.now()
	if u.Final() {
		t.record(u, now)
		t.finished = true
		return true
	}

	if pct := u.Percent(); pct >= 0 {
		if pct <= t.lastPct {
			return false
		}
	} else if u.Done <= t.lastDone {
		return false
	}

	if now.Sub(t.last) < t.interval {
		return false
	}
	t.record(u, now)
	return true
}

func (t *Throttle) record(u Update, now time.Time) {
	t.last = now
	t.lastPct = u.Percent()
	t.lastDone = u.Done
}

// Drain forwards throttled updates from s to emit until done is closed, then
// flushes the last pending update.
func Drain(done <-chan struct{}, s *Sink, t *Throttle, emit func(Update)) {
	forward := func(u Update) {
		if t.Allow(u) {
			emit(u)
		}
	}
	for {
		select {
		case u := <-s.C():
			forward(u)
		case <-done:
			select {
			case u := <-s.C():
				forward(u)
			default:
			}
			return
		}
	}
}

// FormatBytes formats b with binary units ("4.2 MiB").
func FormatBytes(b int64) string {
	const (
		KiB = 1024
		MiB = KiB * 1024
		GiB = MiB * 1024
	)

	switch {
	case b >= GiB:
		return fmt.Sprintf("%.1f GiB", float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.1f MiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.1f KiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
