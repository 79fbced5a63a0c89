package v1

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// FlinkVer is a full Flink release version, e.g. "1.17.1".
type FlinkVer string

const (
	V1_15 FlinkVer = "1.15.4"
	V1_16 FlinkVer = "1.16.3"
	V1_17 FlinkVer = "1.17.2"
	V1_18 FlinkVer = "1.18.1"
)

func (v FlinkVer) String() string { return string(v) }

// Semver parses the version, nil when it is malformed.
func (v FlinkVer) Semver() *version.Version {
	parsed, err := version.NewVersion(string(v))
	if err != nil {
		return nil
	}
	return parsed
}

// MajorMinor returns e.g. "1.17" for "1.17.2".
func (v FlinkVer) MajorMinor() string {
	parsed := v.Semver()
	if parsed == nil {
		return string(v)
	}
	segments := parsed.Segments()
	if len(segments) < 2 {
		return string(v)
	}
	return fmt.Sprintf("%d.%d", segments[0], segments[1])
}
