package flinkcluster

import (
	"fmt"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
)

// ReviseFlinkClusterDefErr wraps a failure inside the revise pipeline.
type ReviseFlinkClusterDefErr struct {
	Fcid  v1.Fcid
	Stage string
	Cause error
}

func (e *ReviseFlinkClusterDefErr) Error() string {
	return fmt.Sprintf("failed to revise cluster definition %s at stage %s: %s", e.Fcid, e.Stage, e.Cause)
}

func (e *ReviseFlinkClusterDefErr) Unwrap() error { return e.Cause }

// DryToFlinkRawConfigErr wraps a configuration emission failure.
type DryToFlinkRawConfigErr struct {
	Fcid  v1.Fcid
	Cause error
}

func (e *DryToFlinkRawConfigErr) Error() string {
	return fmt.Sprintf("failed to emit flink configuration for %s: %s", e.Fcid, e.Cause)
}

func (e *DryToFlinkRawConfigErr) Unwrap() error { return e.Cause }

// GenPodTemplateErr wraps a pod template synthesis failure.
type GenPodTemplateErr struct {
	Fcid  v1.Fcid
	Cause error
}

func (e *GenPodTemplateErr) Error() string {
	return fmt.Sprintf("failed to generate pod template for %s: %s", e.Fcid, e.Cause)
}

func (e *GenPodTemplateErr) Unwrap() error { return e.Cause }

// EncodePodTemplateYamlErr wraps a pod template YAML encoding failure.
type EncodePodTemplateYamlErr struct {
	Cause error
}

func (e *EncodePodTemplateYamlErr) Error() string {
	return fmt.Sprintf("failed to encode pod template yaml: %s", e.Cause)
}

func (e *EncodePodTemplateYamlErr) Unwrap() error { return e.Cause }

// DecodePodTemplateYamlErr wraps a pod template YAML parsing failure.
type DecodePodTemplateYamlErr struct {
	Cause error
}

func (e *DecodePodTemplateYamlErr) Error() string {
	return fmt.Sprintf("failed to decode pod template yaml: %s", e.Cause)
}

func (e *DecodePodTemplateYamlErr) Unwrap() error { return e.Cause }

// IOErr wraps a local filesystem failure.
type IOErr struct {
	Msg   string
	Cause error
}

func (e *IOErr) Error() string {
	return fmt.Sprintf("io failure: %s: %s", e.Msg, e.Cause)
}

func (e *IOErr) Unwrap() error { return e.Cause }

// SubmitFlinkSessionClusterErr wraps a session cluster launch failure.
type SubmitFlinkSessionClusterErr struct {
	Fcid  v1.Fcid
	Cause error
}

func (e *SubmitFlinkSessionClusterErr) Error() string {
	return fmt.Sprintf("failed to submit flink session cluster %s: %s", e.Fcid, e.Cause)
}

func (e *SubmitFlinkSessionClusterErr) Unwrap() error { return e.Cause }

// SubmitFlinkApplicationClusterErr wraps an application cluster launch
// failure.
type SubmitFlinkApplicationClusterErr struct {
	Fcid  v1.Fcid
	Cause error
}

func (e *SubmitFlinkApplicationClusterErr) Error() string {
	return fmt.Sprintf("failed to submit flink application cluster %s: %s", e.Fcid, e.Cause)
}

func (e *SubmitFlinkApplicationClusterErr) Unwrap() error { return e.Cause }

// NotSupportJobJarPath reports a session job submission whose jar is not on
// S3.
type NotSupportJobJarPath struct {
	Path string
}

func (e *NotSupportJobJarPath) Error() string {
	return fmt.Sprintf("job jar path is not supported for session submission: %q", e.Path)
}

// ActorInteropErr wraps a failed interaction with a tracker entity: ask
// timeout, full inbox, or remote delivery failure.
type ActorInteropErr struct {
	Cause error
}

func (e *ActorInteropErr) Error() string {
	return fmt.Sprintf("tracker interop failure: %s", e.Cause)
}

func (e *ActorInteropErr) Unwrap() error { return e.Cause }

// TimeoutErr reports an elapsed watch deadline.
type TimeoutErr struct {
	Op string
}

func (e *TimeoutErr) Error() string {
	return fmt.Sprintf("deadline exceeded: %s", e.Op)
}
