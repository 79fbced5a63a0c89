package model

import v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"

// FcidCodec keys replicated caches by Fcid using the shard-entity encoding.
type FcidCodec struct{}

func (FcidCodec) Marshal(f v1.Fcid) string { return MarshalFcid(f) }

func (FcidCodec) Unmarshal(s string) (v1.Fcid, error) { return UnmarshalFcid(s) }
