package model

import (
	"fmt"
	"strings"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
)

// Shard-entity keys are opaque strings of the form "jmMt@<clusterId>@<namespace>".
const entityKeyPrefix = "jmMt"

// MarshalFcid encodes an Fcid as a shard-entity key.
func MarshalFcid(f v1.Fcid) string {
	return fmt.Sprintf("%s@%s@%s", entityKeyPrefix, f.ClusterId, f.Namespace)
}

// UnmarshalFcid decodes a shard-entity key produced by MarshalFcid.
func UnmarshalFcid(key string) (v1.Fcid, error) {
	parts := strings.Split(key, "@")
	if len(parts) != 3 || parts[0] != entityKeyPrefix {
		return v1.Fcid{}, fmt.Errorf("malformed entity key: %q", key)
	}
	return v1.Fcid{ClusterId: parts[1], Namespace: parts[2]}, nil
}
