package channel

import "time"

// SetHealthMonitoring switches health monitoring on or off.
// Enabling fills in unset interval, threshold and attempt limits.
// Every output's auto-reconnect flag follows the channel flag.
// A nil channel is ignored.
func (ch *Channel) SetHealthMonitoring(enabled bool) {
	if ch == nil {
		return
	}

	ch.HealthMonitoring = enabled
	if enabled {
		if ch.HealthInterval == 0 {
			ch.HealthInterval = DefaultHealthInterval
		}
		if ch.FailureThreshold == 0 {
			ch.FailureThreshold = DefaultFailureThreshold
		}
		if ch.MaxReconnectAttempts == 0 {
			ch.MaxReconnectAttempts = DefaultMaxReconnectAttempts
		}
	}

	for i := range ch.Outputs {
		ch.Outputs[i].AutoReconnect = enabled
	}
}

// RecordHealth stores the result of one health check of output i and reports the
// updated failure count.
func (ch *Channel) RecordHealth(i int, healthy bool, now time.Time) uint32 {
	o := &ch.Outputs[i]
	o.LastHealthCheck = now
	if healthy {
		o.Connected = true
		o.ConsecutiveFailures = 0
		return 0
	}
	o.Connected = false
	o.ConsecutiveFailures++
	return o.ConsecutiveFailures
}

// NeedsFailover reports whether primary i crossed the failure threshold and
// should be switched to its backup.
func (ch *Channel) NeedsFailover(i int) bool {
	o := &ch.Outputs[i]
	return !o.IsBackup && o.HasBackup() && !o.FailoverActive &&
		!o.Connected && o.ConsecutiveFailures >= ch.FailureThreshold
}

// CanRestore reports whether failed-over primary i has recovered.
func (ch *Channel) CanRestore(i int) bool {
	o := &ch.Outputs[i]
	return !o.IsBackup && o.HasBackup() && o.FailoverActive &&
		o.Connected && o.ConsecutiveFailures == 0
}
