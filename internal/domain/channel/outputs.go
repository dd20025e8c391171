package channel

import (
	"fmt"
	"sort"
	"time"
)

// OutputSpec describes an output to append to a channel.
type OutputSpec struct {
	ID          string
	Service     Service
	StreamKey   string
	CustomURL   string
	Orientation Orientation
	Encoding    *Encoding // nil = DefaultEncoding()
}

// AddOutput appends a new enabled output and returns its index.
func (ch *Channel) AddOutput(spec OutputSpec) (int, error) {
	if !spec.Service.Valid() {
		return NoIndex, invalid(fmt.Errorf("%w: %d", ErrUnknownService, int(spec.Service)))
	}
	if spec.StreamKey == "" && (spec.Service != ServiceCustom || spec.CustomURL == "") {
		return NoIndex, invalid(ErrEmptyStreamKey)
	}

	enc := DefaultEncoding()
	if spec.Encoding != nil {
		enc = *spec.Encoding
	}

	ch.Outputs = append(ch.Outputs, Output{
		ID:                spec.ID,
		Service:           spec.Service,
		StreamKey:         spec.StreamKey,
		CustomURL:         spec.CustomURL,
		TargetOrientation: spec.Orientation,
		Encoding:          enc,
		Enabled:           true,
		AutoReconnect:     ch.HealthMonitoring,
		PrimaryIndex:      NoIndex,
		BackupIndex:       NoIndex,
	})
	return len(ch.Outputs) - 1, nil
}

// Output returns a pointer to the output at index i.
func (ch *Channel) Output(i int) (*Output, error) {
	if !ch.validIndex(i) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, i)
	}
	return &ch.Outputs[i], nil
}

// SetOutputEnabled toggles one output. Backups are only switched on through failover.
func (ch *Channel) SetOutputEnabled(i int, enabled bool) error {
	o, err := ch.Output(i)
	if err != nil {
		return err
	}
	if enabled && o.IsBackup {
		return fmt.Errorf("%w: %d", ErrBackupOutput, i)
	}
	o.Enabled = enabled
	return nil
}

// SetOutputEncoding replaces the encoding of one output.
func (ch *Channel) SetOutputEncoding(i int, enc *Encoding) error {
	if enc == nil {
		return ErrNilEncoding
	}
	o, err := ch.Output(i)
	if err != nil {
		return err
	}
	o.Encoding = *enc
	return nil
}

// ValidateIndices checks an index set as a whole and returns it sorted and deduplicated.
// Nothing is mutated.
func (ch *Channel) ValidateIndices(indices []int) ([]int, error) {
	if len(indices) == 0 {
		return nil, ErrEmptyBatch
	}

	seen := make(map[int]struct{}, len(indices))
	out := make([]int, 0, len(indices))
	for _, i := range indices {
		if !ch.validIndex(i) {
			return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, i)
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

// RemoveOutput deletes one output; later outputs shift down by one.
func (ch *Channel) RemoveOutput(i int) error {
	_, err := ch.DeleteOutputs([]int{i})
	return err
}

// DeleteOutputs removes every output in indices in one pass.
// Surviving outputs keep their relative order. Backup links that touch a
// deleted output are dropped; the rest are renumbered.
// It returns the removed outputs in ascending index order.
func (ch *Channel) DeleteOutputs(indices []int) ([]Output, error) {
	set, err := ch.ValidateIndices(indices)
	if err != nil {
		return nil, err
	}

	doomed := make(map[int]struct{}, len(set))
	for _, i := range set {
		doomed[i] = struct{}{}
	}

	// old index -> new index
	remap := make([]int, len(ch.Outputs))
	next := 0
	for i := range ch.Outputs {
		if _, gone := doomed[i]; gone {
			remap[i] = NoIndex
			continue
		}
		remap[i] = next
		next++
	}

	removed := make([]Output, 0, len(set))
	kept := make([]Output, 0, next)
	for i, o := range ch.Outputs {
		if remap[i] == NoIndex {
			removed = append(removed, o)
			continue
		}
		if o.BackupIndex != NoIndex {
			o.BackupIndex = remap[o.BackupIndex]
			if o.BackupIndex == NoIndex && o.FailoverActive {
				// the standby that was serving is gone; the primary takes over
				o.FailoverActive = false
				o.FailoverStart = time.Time{}
				o.ConsecutiveFailures = 0
				o.Enabled = true
			}
		}
		if o.IsBackup {
			o.PrimaryIndex = remap[o.PrimaryIndex]
			if o.PrimaryIndex == NoIndex {
				o.IsBackup = false
				o.FailoverActive = false
			}
		}
		kept = append(kept, o)
	}

	ch.Outputs = kept
	return removed, nil
}
