package channel

import (
	"errors"
	"fmt"
	"strings"
)

// Service identifies the streaming platform an output targets.
// The set is closed; every switch over it is exhaustive.
type Service int

const (
	ServiceCustom Service = iota
	ServiceTwitch
	ServiceYouTube
	ServiceFacebook
	ServiceKick
	ServiceTikTok
	ServiceInstagram
	ServiceXTwitter
)

// ErrUnknownService is returned when a service slug does not match any known platform.
var ErrUnknownService = errors.New("unknown service")

// Services lists every supported service in declaration order.
var Services = []Service{
	ServiceCustom,
	ServiceTwitch,
	ServiceYouTube,
	ServiceFacebook,
	ServiceKick,
	ServiceTikTok,
	ServiceInstagram,
	ServiceXTwitter,
}

// Slug is the stable machine name used in JSON, persistence and remote output ids.
func (s Service) Slug() string {
	switch s {
	case ServiceCustom:
		return "custom"
	case ServiceTwitch:
		return "twitch"
	case ServiceYouTube:
		return "youtube"
	case ServiceFacebook:
		return "facebook"
	case ServiceKick:
		return "kick"
	case ServiceTikTok:
		return "tiktok"
	case ServiceInstagram:
		return "instagram"
	case ServiceXTwitter:
		return "x"
	}
	return "unknown"
}

// Name is the display name of the service.
func (s Service) Name() string {
	switch s {
	case ServiceCustom:
		return "Custom"
	case ServiceTwitch:
		return "Twitch"
	case ServiceYouTube:
		return "YouTube"
	case ServiceFacebook:
		return "Facebook"
	case ServiceKick:
		return "Kick"
	case ServiceTikTok:
		return "TikTok"
	case ServiceInstagram:
		return "Instagram"
	case ServiceXTwitter:
		return "X (Twitter)"
	}
	return "Unknown"
}

func (s Service) String() string { return s.Name() }

// IngestURL returns the RTMP(S) ingest base for the service.
// TikTok uses a separate endpoint for horizontal streams. Custom has no fixed ingest.
func (s Service) IngestURL(target Orientation) string {
	switch s {
	case ServiceCustom:
		return ""
	case ServiceTwitch:
		return "rtmp://live.twitch.tv/app"
	case ServiceYouTube:
		return "rtmp://a.rtmp.youtube.com/live2"
	case ServiceFacebook:
		return "rtmps://live-api-s.facebook.com:443/rtmp"
	case ServiceKick:
		return "rtmp://stream.kick.com/app"
	case ServiceTikTok:
		if target == OrientationVertical {
			return "rtmp://live.tiktok.com/live"
		}
		return "rtmp://live.tiktok.com/live/horizontal"
	case ServiceInstagram:
		return "rtmps://live-upload.instagram.com:443/rtmp"
	case ServiceXTwitter:
		return "rtmp://ingest.pscp.tv:80/x"
	}
	return ""
}

// Valid reports whether s is one of the declared services.
func (s Service) Valid() bool { return s >= ServiceCustom && s <= ServiceXTwitter }

// ParseService resolves a slug (case-insensitive) to a Service.
func ParseService(slug string) (Service, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	for _, s := range Services {
		if s.Slug() == slug {
			return s, nil
		}
	}
	return ServiceCustom, fmt.Errorf("%w: %q", ErrUnknownService, slug)
}

func (s Service) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownService, int(s))
	}
	return []byte(s.Slug()), nil
}

func (s *Service) UnmarshalText(b []byte) error {
	v, err := ParseService(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
