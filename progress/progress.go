// Package progress renders throttled, human-readable transfer progress.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sbillxx/telegrabber/tgclient"
)

const (
	// largeFileThreshold switches to the slower refresh interval: for
	// big transfers the callback fires constantly and the display only
	// needs to move once a second.
	largeFileThreshold = 100 * 1024 * 1024

	smallFileInterval = 500 * time.Millisecond
	largeFileInterval = 1 * time.Second

	// byteDelta forces a refresh after this many new bytes even when the
	// interval has not elapsed.
	byteDelta = 5 * 1024 * 1024

	barWidth = 30
)

// Tracker throttles and renders download progress to a sink. One tracker
// serves exactly one transfer; it is not shared across downloads.
type Tracker struct {
	out       io.Writer
	interval  time.Duration
	lastBytes int64
	lastTime  time.Time
	now       func() time.Time
}

// NewTracker creates a tracker for a transfer with the given size hint
// (zero when unknown).
func NewTracker(out io.Writer, sizeHint int64) *Tracker {
	interval := smallFileInterval
	if sizeHint > largeFileThreshold {
		interval = largeFileInterval
	}
	return &Tracker{out: out, interval: interval, now: time.Now}
}

// Callback adapts the tracker to the session client's progress hook.
func (t *Tracker) Callback() tgclient.ProgressFunc {
	return t.Update
}

// Update records new byte counts and refreshes the display when the
// throttle allows: the refresh interval elapsed, enough new bytes arrived,
// or the transfer completed.
func (t *Tracker) Update(received, total int64) {
	if !t.shouldRender(received, total) {
		return
	}
	t.lastBytes = received
	t.lastTime = t.now()
	t.render(received, total)
}

func (t *Tracker) shouldRender(received, total int64) bool {
	if total > 0 && received >= total {
		return true
	}
	if t.now().Sub(t.lastTime) >= t.interval {
		return true
	}
	return received-t.lastBytes >= byteDelta
}

func (t *Tracker) render(received, total int64) {
	if total <= 0 {
		fmt.Fprintf(t.out, "\rdownloading... %s", humanize.IBytes(uint64(received)))
		return
	}

	percent := int(received * 100 / total)
	if percent > 100 {
		percent = 100
	}
	filled := barWidth * percent / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(t.out, "\r[%s] %3d%% (%s/%s)", bar, percent,
		humanize.IBytes(uint64(received)), humanize.IBytes(uint64(total)))
}

// Finish terminates the progress line.
func (t *Tracker) Finish() {
	fmt.Fprintln(t.out)
}
