package version

// Set at build time with -ldflags "-X ipinfo-probe/core/internal/version.Version=...".
var Version = "dev"
