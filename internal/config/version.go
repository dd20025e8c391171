package config

// Build metadata, set with -ldflags "-X github.com/edirooss/zmux-restream/internal/config.Version=...".
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)
