// Package version reports the build of the running binary.
//
// Version, commit and build time are set at compile time via -ldflags;
// anything left unset falls back to the VCS data Go embeds in the binary.
// config.Config uses it as the default service version reported in metrics
// and traces.
package version
