// Package version holds the build version and the protocol revisions the
// server speaks.
package version

// Version is the server build version. Overridden at link time via
// -ldflags "-X github.com/toolrack/toolrack/pkg/version.Version=...".
var Version = "0.3.0"

// ProtocolVersion is the revision offered when the client requests one the
// server does not know.
const ProtocolVersion = "2025-06-18"

// SupportedProtocolVersions lists every revision the server negotiates,
// newest first.
var SupportedProtocolVersions = []string{
	"2025-06-18",
	"2025-03-26",
	"2024-11-05",
}
