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

package v1

import "fmt"

// Fcid identifies a Flink cluster inside one Kubernetes cluster.
type Fcid struct {
	ClusterId string `json:"clusterId"`
	Namespace string `json:"namespace"`
}

func (f Fcid) String() string {
	return fmt.Sprintf("%s/%s", f.Namespace, f.ClusterId)
}

// Fjid identifies a Flink job inside a cluster.
type Fjid struct {
	Fcid  `json:",inline"`
	JobId string `json:"jobId"`
}

// ExecMode is the Flink execution target of a launched cluster.
type ExecMode string

const (
	ModeApplication ExecMode = "kubernetes-application"
	ModeSession     ExecMode = "kubernetes-session"
)

// RestExportType is how the Flink REST service is exposed.
type RestExportType string

const (
	RestExportClusterIP         RestExportType = "ClusterIP"
	RestExportNodePort          RestExportType = "NodePort"
	RestExportLoadBalancer      RestExportType = "LoadBalancer"
	RestExportHeadlessClusterIP RestExportType = "HeadlessClusterIP"
)

// FlinkClusterDef is a client-submitted, declarative definition of a Flink
// cluster on Kubernetes. A nil Job means a session cluster; a non-nil Job
// means an application cluster dedicated to that job.
type FlinkClusterDef struct {
	Fcid     Fcid           `json:"fcid"`
	Image    string         `json:"image"`
	FlinkVer FlinkVer       `json:"flinkVer"`
	Mode     ExecMode       `json:"mode,omitempty"`
	// Kubernetes service account used by the jobmanager. Falls back to the
	// operator-wide account when unset.
	K8sAccount     *string        `json:"k8sAccount,omitempty"`
	RestExportType RestExportType `json:"restExportType,omitempty"`

	CPU        CpuConf        `json:"cpu,omitempty"`
	Mem        MemConf        `json:"mem,omitempty"`
	Par        ParConf        `json:"par,omitempty"`
	WebUI      WebUIConf      `json:"webui,omitempty"`
	RestartStg RestartStgConf `json:"restartStg,omitempty"`

	StateBackend *StateBackendConf `json:"stateBackend,omitempty"`
	JmHa         *JmHaConf         `json:"jmHa,omitempty"`
	S3           *S3AccessConf     `json:"s3,omitempty"`

	// Extra user libraries pulled into /opt/flink/lib at pod startup.
	InjectedDeps []string `json:"injectedDeps,omitempty"`
	// Flink-distributed plugin JARs enabled via ENABLE_BUILT_IN_PLUGINS.
	BuiltInPlugins []string `json:"builtInPlugins,omitempty"`
	// Raw Flink configuration overlaid on top of the generated one.
	ExtRawConfigs map[string]string `json:"extRawConfigs,omitempty"`
	// Raw YAML replacing the generated pod template entirely.
	OverridePodTemplate *string `json:"overridePodTemplate,omitempty"`

	Job *JobDef `json:"job,omitempty"`
}

// JobDef is the application-cluster part of the definition.
type JobDef struct {
	JobJar  string                `json:"jobJar"`
	JobName string                `json:"jobName"`
	AppMain *string               `json:"appMain,omitempty"`
	AppArgs []string              `json:"appArgs,omitempty"`
	Restore *SavepointRestoreConf `json:"restore,omitempty"`
}

func (d *FlinkClusterDef) IsApplicationMode() bool {
	return d.Job != nil
}

// DeepCopy returns a structurally independent copy of the definition.
func (d *FlinkClusterDef) DeepCopy() *FlinkClusterDef {
	out := *d
	if d.K8sAccount != nil {
		v := *d.K8sAccount
		out.K8sAccount = &v
	}
	if d.RestartStg.FixedDelay != nil {
		v := *d.RestartStg.FixedDelay
		out.RestartStg.FixedDelay = &v
	}
	if d.RestartStg.FailureRate != nil {
		v := *d.RestartStg.FailureRate
		out.RestartStg.FailureRate = &v
	}
	if d.StateBackend != nil {
		v := *d.StateBackend
		if d.StateBackend.CheckpointDir != nil {
			cp := *d.StateBackend.CheckpointDir
			v.CheckpointDir = &cp
		}
		if d.StateBackend.SavepointDir != nil {
			sp := *d.StateBackend.SavepointDir
			v.SavepointDir = &sp
		}
		out.StateBackend = &v
	}
	if d.JmHa != nil {
		v := *d.JmHa
		if d.JmHa.ClusterId != nil {
			ci := *d.JmHa.ClusterId
			v.ClusterId = &ci
		}
		out.JmHa = &v
	}
	if d.S3 != nil {
		v := *d.S3
		out.S3 = &v
	}
	out.InjectedDeps = append([]string(nil), d.InjectedDeps...)
	out.BuiltInPlugins = append([]string(nil), d.BuiltInPlugins...)
	if d.ExtRawConfigs != nil {
		out.ExtRawConfigs = make(map[string]string, len(d.ExtRawConfigs))
		for k, v := range d.ExtRawConfigs {
			out.ExtRawConfigs[k] = v
		}
	}
	if d.OverridePodTemplate != nil {
		v := *d.OverridePodTemplate
		out.OverridePodTemplate = &v
	}
	if d.Job != nil {
		j := *d.Job
		if d.Job.AppMain != nil {
			m := *d.Job.AppMain
			j.AppMain = &m
		}
		j.AppArgs = append([]string(nil), d.Job.AppArgs...)
		if d.Job.Restore != nil {
			r := *d.Job.Restore
			j.Restore = &r
		}
		out.Job = &j
	}
	return &out
}
