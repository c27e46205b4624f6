package main

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// supportedProtocolVersion is the Remote In wire protocol version this
// simulator implements (spec.md section 1).
const supportedProtocolVersion = "1.2.0"

// ProtocolVersion wraps a parsed semantic version so callers can compare
// a client-advertised version against the version this simulator speaks,
// the way a real analyzer would reject an incompatible driver.
type ProtocolVersion struct {
	raw *version.Version
}

// ParseProtocolVersion parses a dotted version string such as "1.2" or
// "1.2.0". A bare "1.2" is treated as "1.2.0".
func ParseProtocolVersion(s string) (*ProtocolVersion, error) {
	v, err := version.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid protocol version %q: %w", s, err)
	}
	return &ProtocolVersion{raw: v}, nil
}

// SupportedProtocolVersion returns the version this simulator speaks.
func SupportedProtocolVersion() *ProtocolVersion {
	v, _ := ParseProtocolVersion(supportedProtocolVersion)
	return v
}

// CompatibleWith reports whether a client's advertised version shares
// this simulator's major version component; the simulator doesn't
// require an exact patch match, mirroring how the source analyzer's
// Remote In service tolerates client build-number drift.
func (v *ProtocolVersion) CompatibleWith(other *ProtocolVersion) bool {
	if v == nil || other == nil {
		return false
	}
	return v.raw.Segments()[0] == other.raw.Segments()[0]
}

func (v *ProtocolVersion) String() string {
	return v.raw.String()
}
