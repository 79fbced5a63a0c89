/*
Copyright 2019 Google LLC.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package model holds the observation snapshots trackers publish into the
// replicated cache. Every snapshot carries Ts, epoch millis at write time.
package model

import (
	"fmt"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
)

// JmMetrics is the raw jobmanager metric key/value set of one poll.
type JmMetrics struct {
	Fcid v1.Fcid           `json:"fcid"`
	Raw  map[string]string `json:"raw"`
	Ts   int64             `json:"ts"`
}

// TmMetrics is the raw metric set of a single taskmanager.
type TmMetrics struct {
	Fcid v1.Fcid           `json:"fcid"`
	TmId string            `json:"tmId"`
	Raw  map[string]string `json:"raw"`
	Ts   int64             `json:"ts"`
}

// JobOverview is one row of the Flink /jobs/overview response.
type JobOverview struct {
	Fcid      v1.Fcid `json:"fcid"`
	JobId     string  `json:"jobId"`
	JobName   string  `json:"jobName"`
	State     string  `json:"state"`
	StartTime int64   `json:"startTime"`
	EndTime   int64   `json:"endTime"`
	Duration  int64   `json:"duration"`
	Ts        int64   `json:"ts"`
}

// JobMetrics is the raw metric set of a single job.
type JobMetrics struct {
	Fcid  v1.Fcid           `json:"fcid"`
	JobId string            `json:"jobId"`
	Raw   map[string]string `json:"raw"`
	Ts    int64             `json:"ts"`
}

// DeploymentSnap is the operator's view of a jobmanager Deployment.
type DeploymentSnap struct {
	Fcid          v1.Fcid `json:"fcid"`
	Name          string  `json:"name"`
	Replicas      int32   `json:"replicas"`
	ReadyReplicas int32   `json:"readyReplicas"`
	Ts            int64   `json:"ts"`
}

// ServiceSnap is the operator's view of a cluster Service.
type ServiceSnap struct {
	Fcid      v1.Fcid          `json:"fcid"`
	Name      string           `json:"name"`
	Type      string           `json:"type"`
	ClusterIP string           `json:"clusterIP"`
	Ports     map[string]int32 `json:"ports"`
	Ts        int64            `json:"ts"`
}

// PodSnap is the operator's view of one cluster Pod.
type PodSnap struct {
	Fcid  v1.Fcid `json:"fcid"`
	Name  string  `json:"name"`
	Phase string  `json:"phase"`
	PodIP string  `json:"podIP"`
	Ts    int64   `json:"ts"`
}

// RestSvcEndpoint locates the Flink REST service of a cluster.
type RestSvcEndpoint struct {
	ClusterIP   string `json:"clusterIP"`
	ClusterPort int32  `json:"clusterPort"`
	Dns         string `json:"dns"`
	PodIP       string `json:"podIP,omitempty"`
	Ts          int64  `json:"ts"`
}

// URL renders the in-cluster base URL of the REST API.
func (e RestSvcEndpoint) URL() string {
	return fmt.Sprintf("http://%s:%d", e.ClusterIP, e.ClusterPort)
}
