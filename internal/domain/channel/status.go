package channel

import "fmt"

// Status is the lifecycle state of a channel.
type Status int

const (
	StatusInactive Status = iota
	StatusStarting
	StatusActive
	StatusStopping
	StatusError
	StatusPreview
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "INACTIVE"
	case StatusStarting:
		return "STARTING"
	case StatusActive:
		return "ACTIVE"
	case StatusStopping:
		return "STOPPING"
	case StatusError:
		return "ERROR"
	case StatusPreview:
		return "PREVIEW"
	}
	return "UNKNOWN"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for st := StatusInactive; st <= StatusPreview; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(b))
}
