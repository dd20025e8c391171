package channel

import (
	"errors"
	"strings"
)

// BuiltinPrefix marks the ids of templates shipped with the service.
const BuiltinPrefix = "builtin_"

var ErrBuiltinTemplate = errors.New("builtin templates cannot be modified")

// Template is a reusable output preset: service, orientation and encoding.
type Template struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Service     Service     `json:"service"`
	Orientation Orientation `json:"orientation"`
	Encoding    Encoding    `json:"encoding"`
	Builtin     bool        `json:"builtin"`
}

// IsBuiltinID reports whether id is reserved for a builtin template.
func IsBuiltinID(id string) bool { return strings.HasPrefix(id, BuiltinPrefix) }

// Validate checks a user-defined template.
func (t *Template) Validate() error {
	if t.ID == "" {
		return invalid(errors.New("template id required"))
	}
	if IsBuiltinID(t.ID) {
		return ErrBuiltinTemplate
	}
	if err := ValidateName(t.Name); err != nil {
		return err
	}
	if !t.Service.Valid() {
		return invalid(ErrUnknownService)
	}
	return ValidateEncoding(&t.Encoding)
}

// OutputSpec turns the template into an output for the given stream key.
func (t *Template) OutputSpec(id, streamKey string) OutputSpec {
	enc := t.Encoding
	return OutputSpec{
		ID:          id,
		Service:     t.Service,
		StreamKey:   streamKey,
		Orientation: t.Orientation,
		Encoding:    &enc,
	}
}

func preset(w, h, kbps, fps uint32) Encoding {
	return Encoding{Width: w, Height: h, Bitrate: kbps, FPSNum: fps, FPSDen: 1, AudioBitrate: 128}
}

// BuiltinTemplates returns a fresh copy of the stock presets.
func BuiltinTemplates() []Template {
	return []Template{
		{ID: "builtin_youtube_1080p60", Name: "YouTube 1080p60", Service: ServiceYouTube, Orientation: OrientationHorizontal, Encoding: preset(1920, 1080, 6000, 60), Builtin: true},
		{ID: "builtin_youtube_720p60", Name: "YouTube 720p60", Service: ServiceYouTube, Orientation: OrientationHorizontal, Encoding: preset(1280, 720, 4500, 60), Builtin: true},
		{ID: "builtin_twitch_1080p60", Name: "Twitch 1080p60", Service: ServiceTwitch, Orientation: OrientationHorizontal, Encoding: preset(1920, 1080, 6000, 60), Builtin: true},
		{ID: "builtin_twitch_720p60", Name: "Twitch 720p60", Service: ServiceTwitch, Orientation: OrientationHorizontal, Encoding: preset(1280, 720, 4500, 60), Builtin: true},
		{ID: "builtin_facebook_1080p", Name: "Facebook 1080p", Service: ServiceFacebook, Orientation: OrientationHorizontal, Encoding: preset(1920, 1080, 4000, 30), Builtin: true},
		{ID: "builtin_tiktok_vertical", Name: "TikTok Vertical", Service: ServiceTikTok, Orientation: OrientationVertical, Encoding: preset(1080, 1920, 3000, 30), Builtin: true},
	}
}
