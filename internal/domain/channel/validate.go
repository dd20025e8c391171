package channel

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/edirooss/zmux-restream/pkg/hostutil"
)

// MaxNameLen bounds channel and template names.
const MaxNameLen = 128

// ErrInvalid marks malformed settings: bad names, URLs or encodings.
var ErrInvalid = errors.New("invalid settings")

type invalidError struct{ err error }

func (e invalidError) Error() string   { return e.err.Error() }
func (e invalidError) Unwrap() []error { return []error{e.err, ErrInvalid} }

// invalid tags err so errors.Is(err, ErrInvalid) holds; the message is unchanged.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	return invalidError{err}
}

var inputSchemes = map[string]struct{}{
	"rtmp": {}, "rtmps": {}, "srt": {}, "rtsp": {}, "udp": {}, "http": {}, "https": {},
}

var outputSchemes = map[string]struct{}{
	"rtmp": {}, "rtmps": {}, "srt": {},
}

// ValidateName checks a channel or template name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid(ErrEmptyName)
	}
	if len(name) > MaxNameLen {
		return invalid(fmt.Errorf("name exceeds %d characters", MaxNameLen))
	}
	return nil
}

// ValidateInputURL checks where media comes from.
// A protocol is required: FFmpeg falls back to local files without one.
// An empty URL passes here; starting the channel rejects it later.
func ValidateInputURL(raw string) error {
	if raw == "" {
		return nil
	}
	return invalid(validateURL(raw, inputSchemes))
}

// ValidateOutputURL checks a custom ingest URL (where media goes).
func ValidateOutputURL(raw string) error {
	return invalid(validateURL(raw, outputSchemes))
}

func validateURL(raw string, schemes map[string]struct{}) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" {
		return errors.New("missing protocol")
	}
	if _, ok := schemes[strings.ToLower(u.Scheme)]; !ok {
		return fmt.Errorf("protocol %q not allowed", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("missing host for '%s' url", u.Scheme)
	}
	if err := hostutil.ValidateHost(u.Hostname()); err != nil {
		return err
	}
	if u.User != nil {
		return errors.New("userinfo should not be embedded in the URL")
	}
	return nil
}

// ValidateEncoding rejects settings FFmpeg cannot honour.
func ValidateEncoding(e *Encoding) error {
	return invalid(validateEncoding(e))
}

func validateEncoding(e *Encoding) error {
	if e == nil {
		return ErrNilEncoding
	}
	if (e.Width == 0) != (e.Height == 0) {
		return errors.New("width and height must be set together")
	}
	if e.FPSNum != 0 && e.FPSDen == 0 {
		return errors.New("fps denominator required")
	}
	if e.AudioTrack > 6 {
		return fmt.Errorf("audio track %d out of range (1-6)", e.AudioTrack)
	}
	return nil
}

// Validate checks the configured attributes of a channel and its outputs.
func (ch *Channel) Validate() error {
	if err := ValidateName(ch.Name); err != nil {
		return err
	}
	if err := ValidateInputURL(ch.InputURL); err != nil {
		return fmt.Errorf("input url: %w", err)
	}
	for i := range ch.Outputs {
		o := &ch.Outputs[i]
		if !o.Service.Valid() {
			return invalid(fmt.Errorf("output %d: %w", i, ErrUnknownService))
		}
		if o.CustomURL != "" {
			if err := ValidateOutputURL(o.CustomURL); err != nil {
				return fmt.Errorf("output %d: custom url: %w", i, err)
			}
		}
		if err := ValidateEncoding(&o.Encoding); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}
	return nil
}
