package channel

import (
	"fmt"
	"math"
	"strings"
)

// Orientation of a video frame.
type Orientation int

const (
	OrientationAuto Orientation = iota
	OrientationHorizontal
	OrientationVertical
	OrientationSquare
)

func (o Orientation) String() string {
	switch o {
	case OrientationAuto:
		return "auto"
	case OrientationHorizontal:
		return "horizontal"
	case OrientationVertical:
		return "vertical"
	case OrientationSquare:
		return "square"
	}
	return "unknown"
}

// ParseOrientation accepts the names produced by String. Empty input means auto.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return OrientationAuto, nil
	case "horizontal":
		return OrientationHorizontal, nil
	case "vertical":
		return OrientationVertical, nil
	case "square":
		return OrientationSquare, nil
	}
	return OrientationAuto, fmt.Errorf("unknown orientation %q", s)
}

func (o Orientation) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Orientation) UnmarshalText(b []byte) error {
	v, err := ParseOrientation(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// squareTolerance is how far the aspect ratio may drift from 1:1 and still count as square.
const squareTolerance = 0.05

// DetectOrientation classifies a frame by its dimensions. Unknown dimensions yield auto.
func DetectOrientation(width, height uint32) Orientation {
	if width == 0 || height == 0 {
		return OrientationAuto
	}

	ratio := float64(width) / float64(height)
	if math.Abs(ratio-1.0) <= squareTolerance {
		return OrientationSquare
	}
	if width > height {
		return OrientationHorizontal
	}
	return OrientationVertical
}

// VideoFilter returns the ffmpeg filter converting source frames to the target orientation.
// An empty string means no conversion is needed.
func VideoFilter(source, target Orientation) string {
	if target == OrientationAuto || source == OrientationAuto || source == target {
		return ""
	}

	switch target {
	case OrientationSquare:
		return "scale=1080:1080,setsar=1"
	case OrientationVertical:
		if source == OrientationSquare {
			return "scale=1080:1920,setsar=1"
		}
		return "crop=ih*9/16:ih,scale=1080:1920"
	case OrientationHorizontal:
		if source == OrientationSquare {
			return "scale=1920:1080,setsar=1"
		}
		return "crop=iw:iw*9/16,scale=1920:1080"
	}
	return ""
}
