package dto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/pkg/jsonx"
)

// ChannelSettings is the body of POST /api/channels and
// PATCH /api/channels/{id}. Partial-update semantics (RFC 7386): every key is
// optional, absent keys leave the channel unchanged.
type ChannelSettings struct {
	Name                  jsonx.Field[string]              `json:"name"`                      // string
	InputURL              jsonx.Field[string]              `json:"input_url"`                 // string | null (clears)
	SourceOrientation     jsonx.Field[channel.Orientation] `json:"source_orientation"`        // auto|horizontal|vertical|square
	AutoDetectOrientation jsonx.Field[bool]                `json:"auto_detect_orientation"`   //
	SourceWidth           jsonx.Field[uint32]              `json:"source_width"`              //
	SourceHeight          jsonx.Field[uint32]              `json:"source_height"`             //
	AutoStart             jsonx.Field[bool]                `json:"auto_start"`                //
	AutoReconnect         jsonx.Field[bool]                `json:"auto_reconnect"`            //
	ReconnectDelay        jsonx.Field[uint32]              `json:"reconnect_delay_sec"`       //
	HealthInterval        jsonx.Field[uint32]              `json:"health_check_interval_sec"` //
	FailureThreshold      jsonx.Field[uint32]              `json:"failure_threshold"`         //
	MaxReconnectAttempts  jsonx.Field[uint32]              `json:"max_reconnect_attempts"`    //
	PreviewDuration       jsonx.Field[uint32]              `json:"preview_duration_sec"`      //
}

// CheckNulls rejects explicit null on non-nullable keys.
func (s *ChannelSettings) CheckNulls() error {
	nulls := []struct {
		key  string
		null bool
	}{
		{"name", s.Name.IsNull()},
		{"source_orientation", s.SourceOrientation.IsNull()},
		{"auto_detect_orientation", s.AutoDetectOrientation.IsNull()},
		{"source_width", s.SourceWidth.IsNull()},
		{"source_height", s.SourceHeight.IsNull()},
		{"auto_start", s.AutoStart.IsNull()},
		{"auto_reconnect", s.AutoReconnect.IsNull()},
		{"reconnect_delay_sec", s.ReconnectDelay.IsNull()},
		{"health_check_interval_sec", s.HealthInterval.IsNull()},
		{"failure_threshold", s.FailureThreshold.IsNull()},
		{"max_reconnect_attempts", s.MaxReconnectAttempts.IsNull()},
		{"preview_duration_sec", s.PreviewDuration.IsNull()},
	}
	var errs []error
	for _, n := range nulls {
		if n.null {
			errs = append(errs, fmt.Errorf("%s cannot be null", n.key))
		}
	}
	return errors.Join(errs...)
}

// MergePatch applies the present keys to ch (in-memory).
// Call CheckNulls first; null keys other than input_url are skipped here.
func (s *ChannelSettings) MergePatch(ch *channel.Channel) {
	s.Name.Apply(&ch.Name)
	ch.Name = strings.TrimSpace(ch.Name)

	// input_url
	// optional; string | null
	if s.InputURL.IsNull() {
		ch.InputURL = ""
	} else {
		s.InputURL.Apply(&ch.InputURL)
	}

	s.SourceOrientation.Apply(&ch.SourceOrientation)
	s.AutoDetectOrientation.Apply(&ch.AutoDetectOrientation)
	s.SourceWidth.Apply(&ch.SourceWidth)
	s.SourceHeight.Apply(&ch.SourceHeight)
	s.AutoStart.Apply(&ch.AutoStart)
	s.AutoReconnect.Apply(&ch.AutoReconnect)
	s.ReconnectDelay.Apply(&ch.ReconnectDelay)
	s.HealthInterval.Apply(&ch.HealthInterval)
	s.FailureThreshold.Apply(&ch.FailureThreshold)
	s.MaxReconnectAttempts.Apply(&ch.MaxReconnectAttempts)
	s.PreviewDuration.Apply(&ch.PreviewDuration)
}

// Empty reports whether no key other than name was sent.
func (s *ChannelSettings) Empty() bool {
	rest := *s
	rest.Name = jsonx.Field[string]{}
	return rest == ChannelSettings{}
}
