package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

const mib = 1 << 20

type emission struct {
	at  time.Time
	pct int
}

func TestThrottleSyntheticTransfer(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	th := NewThrottle(3*time.Second, clock.Now)

	var got []emission

	// 10 MiB at 1 MiB/s, reported every 64 KiB.
	const total = 10 * mib
	const step = 64 << 10
	for done := int64(step); done <= total; done += step {
		clock.Advance(time.Second * step / mib)
		u := Update{Phase: PhaseDownload, Done: done, Total: total}
		if th.Allow(u) {
			got = append(got, emission{at: clock.Now(), pct: u.Percent()})
		}
	}

	require.NotEmpty(t, got)
	assert.Equal(t, 100, got[len(got)-1].pct, "final update is always emitted")

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := emission{at: start, pct: -1}
	for i, e := range got {
		assert.Greater(t, e.pct, prev.pct, "emission %d percentage must increase", i)
		if i < len(got)-1 {
			assert.GreaterOrEqual(t, e.at.Sub(prev.at), 3*time.Second, "emission %d came too early", i)
		}
		prev = e
	}
	var seen []int
	for _, e := range got {
		seen = append(seen, e.pct)
	}
	assert.Equal(t, []int{30, 60, 90, 100}, seen)
}

func TestThrottleRejectsNonIncreasing(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	th := NewThrottle(time.Second, clock.Now)

	clock.Advance(2 * time.Second)
	assert.True(t, th.Allow(Update{Phase: PhaseDownload, Done: 50, Total: 100}))

	clock.Advance(2 * time.Second)
	assert.False(t, th.Allow(Update{Phase: PhaseDownload, Done: 50, Total: 100}), "same percentage")
	assert.False(t, th.Allow(Update{Phase: PhaseDownload, Done: 40, Total: 100}), "lower percentage")
	assert.True(t, th.Allow(Update{Phase: PhaseDownload, Done: 51, Total: 100}))
}

func TestThrottleFinalOncePerPhase(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	th := NewThrottle(time.Hour, clock.Now)

	assert.True(t, th.Allow(Update{Phase: PhaseDownload, Done: 10, Total: 10}))
	assert.False(t, th.Allow(Update{Phase: PhaseDownload, Done: 10, Total: 10}))

	// a new phase starts over
	assert.False(t, th.Allow(Update{Phase: PhaseUpload, Done: 5, Total: 10}), "interval not elapsed")
	assert.True(t, th.Allow(Update{Phase: PhaseUpload, Done: 10, Total: 10}))
}

func TestThrottleUnknownTotal(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	th := NewThrottle(time.Second, clock.Now)

	clock.Advance(time.Second)
	assert.True(t, th.Allow(Update{Phase: PhaseDownload, Done: 100}))
	clock.Advance(time.Second)
	assert.False(t, th.Allow(Update{Phase: PhaseDownload, Done: 100}))
	assert.True(t, th.Allow(Update{Phase: PhaseDownload, Done: 200}))
}

func TestSinkLatestValueWins(t *testing.T) {
	s := NewSink()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 1000; i++ {
			s.Report(Update{Phase: PhaseDownload, Done: i, Total: 1000})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Report blocked without a reader")
	}

	u := <-s.C()
	assert.EqualValues(t, 1000, u.Done)

	select {
	case extra := <-s.C():
		t.Fatalf("expected a single pending update, got %+v", extra)
	default:
	}
}

func TestSinkNilIsNoop(t *testing.T) {
	var s *Sink
	assert.NotPanics(t, func() { s.Report(Update{}) })
}

func TestDrainFlushesFinal(t *testing.T) {
	s := NewSink()
	th := NewThrottle(time.Hour, nil)

	report := s.Func(PhaseUpload)
	report(5, 10)
	report(10, 10)

	done := make(chan struct{})
	close(done)

	var emitted []Update
	Drain(done, s, th, func(u Update) { emitted = append(emitted, u) })

	require.Len(t, emitted, 1)
	assert.True(t, emitted[0].Final())
}

func TestUpdateText(t *testing.T) {
	u := Update{Phase: PhaseDownload, Done: 4404019, Total: 10 * mib}
	assert.Equal(t, "⬇️ Downloading 42% (4.2 MiB / 10.0 MiB)", u.Text())

	u = Update{Phase: PhaseUpload, Done: 512}
	assert.Equal(t, "⬆️ Uploading 512 B", u.Text())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{10 * mib, "10.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatBytes(tt.input))
	}
}
