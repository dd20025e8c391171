package channel

import "time"

// BeginPreview enters PREVIEW with the clock started at now. duration 0 means unlimited.
func (ch *Channel) BeginPreview(durationSec uint32, now time.Time) {
	ch.PreviewEnabled = true
	ch.PreviewDuration = durationSec
	ch.PreviewStart = now
	ch.Status = StatusPreview
}

// PreviewTimedOut reports whether a bounded preview has run for its full duration.
// Unlimited (0) or disabled previews never time out.
func (ch *Channel) PreviewTimedOut(now time.Time) bool {
	if !ch.PreviewEnabled || ch.PreviewDuration == 0 {
		return false
	}
	return now.Sub(ch.PreviewStart) >= time.Duration(ch.PreviewDuration)*time.Second
}
