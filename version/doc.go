// Package version reports build information for relay binaries.
//
// Version, commit and build time are set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/relay/version.Version=1.0.0" ./cmd/screenlight
package version
