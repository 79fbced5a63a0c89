package k8s

import (
	"fmt"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
)

// RequestK8sApiErr wraps a failed Kubernetes API call.
type RequestK8sApiErr struct {
	Verb  string
	Cause error
}

func (e *RequestK8sApiErr) Error() string {
	return fmt.Sprintf("kubernetes api request failed: %s: %s", e.Verb, e.Cause)
}

func (e *RequestK8sApiErr) Unwrap() error { return e.Cause }

// ClusterNotFound reports a delete against a cluster Kubernetes no longer
// knows.
type ClusterNotFound struct {
	Fcid v1.Fcid
}

func (e *ClusterNotFound) Error() string {
	return fmt.Sprintf("flink cluster not found on kubernetes: %s", e.Fcid)
}

// EndpointNotFound reports that no Flink REST service is visible for the
// cluster.
type EndpointNotFound struct {
	Fcid v1.Fcid
}

func (e *EndpointNotFound) Error() string {
	return fmt.Sprintf("flink rest endpoint not found: %s", e.Fcid)
}
