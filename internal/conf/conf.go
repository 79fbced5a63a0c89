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

// Package conf loads the operator-wide configuration from file and
// environment via viper.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
	"github.com/streamops/flink-operator/internal/util"
)

// OperatorConf is the operator-wide configuration, shared by the resolver,
// the submission engine and the observer fleet.
type OperatorConf struct {
	Flink    FlinkConf    `mapstructure:"flink"`
	S3       S3Conf       `mapstructure:"s3"`
	Observer ObserverConf `mapstructure:"observer"`
	Cluster  ClusterConf  `mapstructure:"cluster"`
	Log      LogConf      `mapstructure:"log"`
}

// FlinkConf carries launch-time defaults.
type FlinkConf struct {
	// Kubernetes service account assigned to jobmanagers when the cluster
	// definition leaves it unset.
	K8sAccount string `mapstructure:"k8sAccount"`
	// Root of the per-cluster local workspaces.
	LocalTmpDir string `mapstructure:"localTmpDir"`
	// Image of the userlib-loader init container.
	MinioClientImage string `mapstructure:"minioClientImage"`
}

// S3Conf is the operator's own object storage access.
type S3Conf struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKey       string `mapstructure:"accessKey"`
	SecretKey       string `mapstructure:"secretKey"`
	PathStyleAccess bool   `mapstructure:"pathStyleAccess"`
	SslEnabled      bool   `mapstructure:"sslEnabled"`
}

// RevisePath normalizes an S3 object path for the configured addressing
// style. Path-style keeps the bucket as the leading path segment;
// virtual-hosted style carries the bucket in the endpoint host, so the
// leading bucket segment is dropped.
func (c S3Conf) RevisePath(p string) string {
	pure := util.PurePath(p)
	if c.PathStyleAccess {
		return pure
	}
	if c.Bucket != "" && strings.HasPrefix(pure, c.Bucket+"/") {
		return strings.TrimPrefix(pure, c.Bucket+"/")
	}
	return pure
}

// ToAccessConf converts to the cluster-side S3 fragment.
func (c S3Conf) ToAccessConf() v1.S3AccessConf {
	pathStyle := c.PathStyleAccess
	ssl := c.SslEnabled
	return v1.S3AccessConf{
		Endpoint:        c.Endpoint,
		AccessKey:       c.AccessKey,
		SecretKey:       c.SecretKey,
		PathStyleAccess: &pathStyle,
		SslEnabled:      &ssl,
	}
}

// ObserverConf tunes the tracker fleet.
type ObserverConf struct {
	JmMetricsPollInterval  time.Duration `mapstructure:"jmMetricsPollInterval"`
	TmMetricsPollInterval  time.Duration `mapstructure:"tmMetricsPollInterval"`
	JobsPollInterval       time.Duration `mapstructure:"jobsPollInterval"`
	K8sPollInterval        time.Duration `mapstructure:"k8sPollInterval"`
	SptTriggerPollInterval time.Duration `mapstructure:"sptTriggerPollInterval"`
	AskTimeout             time.Duration `mapstructure:"askTimeout"`
	RestTimeout            time.Duration `mapstructure:"restTimeout"`
}

// ClusterConf describes this node and its peers.
type ClusterConf struct {
	NodeName string `mapstructure:"nodeName"`
	// Address peers use to reach this node's replication endpoint.
	AdvertiseAddr  string        `mapstructure:"advertiseAddr"`
	BindAddr       string        `mapstructure:"bindAddr"`
	Peers          []string      `mapstructure:"peers"`
	Roles          []string      `mapstructure:"roles"`
	GossipInterval time.Duration `mapstructure:"gossipInterval"`
}

// HasRole reports whether this node carries the given cluster role.
func (c ClusterConf) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type LogConf struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// Load reads the configuration from the given file (optional) plus the
// FLINK_OPERATOR_* environment.
func Load(configFile string) (*OperatorConf, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FLINK_OPERATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	out := &OperatorConf{}
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return out, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("flink.k8sAccount", "flink-opr")
	v.SetDefault("flink.localTmpDir", "/tmp/flink-operator")
	v.SetDefault("flink.minioClientImage", "minio/mc:latest")
	v.SetDefault("observer.jmMetricsPollInterval", 5*time.Second)
	v.SetDefault("observer.tmMetricsPollInterval", 5*time.Second)
	v.SetDefault("observer.jobsPollInterval", 2*time.Second)
	v.SetDefault("observer.k8sPollInterval", 5*time.Second)
	v.SetDefault("observer.sptTriggerPollInterval", 100*time.Millisecond)
	v.SetDefault("observer.askTimeout", 5*time.Second)
	v.SetDefault("observer.restTimeout", 10*time.Second)
	v.SetDefault("cluster.nodeName", "")
	v.SetDefault("cluster.bindAddr", ":7607")
	v.SetDefault("cluster.roles", []string{RoleFlinkOperator})
	v.SetDefault("cluster.gossipInterval", time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
}

// RoleFlinkOperator marks nodes eligible to host tracker entities.
const RoleFlinkOperator = "FlinkOperator"
