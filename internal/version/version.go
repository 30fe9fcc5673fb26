// Package version exposes the build version injected at link time.
package version

// Version is overridden via -ldflags "-X lockpilot/internal/version.Version=v1.2.3".
var Version = "v0.0.0-dev"
