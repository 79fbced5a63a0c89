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

package flinkcluster

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
	"github.com/streamops/flink-operator/internal/conf"
	"github.com/streamops/flink-operator/internal/util"
)

const (
	podTemplateName     = "pod-template"
	mainContainerName   = "flink-main-container"
	userlibLoaderName   = "userlib-loader"
	hostPathVolume      = "flink-volume-hostpath"
	userLibsVolume      = "flink-libs"
	logsVolume          = "flink-logs"
	hostPathMountPath   = "/opt/flink/volume"
	logsMountPath       = "/opt/flink/log"
	minioAlias          = "minio"
)

// ResolvePodTemplate builds the Pod spec Flink shapes jobmanager and
// taskmanager pods from. A raw override, when present, replaces synthesis
// entirely.
func ResolvePodTemplate(def *v1.FlinkClusterDef, opConf *conf.OperatorConf) (*corev1.Pod, error) {
	if def.OverridePodTemplate != nil {
		pod := &corev1.Pod{}
		if err := yaml.Unmarshal([]byte(*def.OverridePodTemplate), pod); err != nil {
			return nil, &DecodePodTemplateYamlErr{Cause: err}
		}
		return pod, nil
	}

	var s3Libs []string
	for _, dep := range def.InjectedDeps {
		if util.IsS3Path(dep) {
			s3Libs = append(s3Libs, dep)
		}
	}

	hostPathType := corev1.HostPathDirectory
	pod := &corev1.Pod{
		TypeMeta: metav1.TypeMeta{Kind: "Pod", APIVersion: "v1"},
		ObjectMeta: metav1.ObjectMeta{
			Name: podTemplateName,
		},
		Spec: corev1.PodSpec{
			Volumes: []corev1.Volume{
				{
					Name: hostPathVolume,
					VolumeSource: corev1.VolumeSource{
						HostPath: &corev1.HostPathVolumeSource{Path: "/tmp", Type: &hostPathType},
					},
				},
				{
					Name:         userLibsVolume,
					VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
				},
				{
					Name:         logsVolume,
					VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
				},
			},
			Containers: []corev1.Container{*newMainContainer(s3Libs)},
		},
	}

	if len(s3Libs) > 0 {
		loader, err := newUserlibLoaderContainer(s3Libs, opConf)
		if err != nil {
			return nil, &GenPodTemplateErr{Fcid: def.Fcid, Cause: err}
		}
		pod.Spec.InitContainers = []corev1.Container{*loader}
	}

	return pod, nil
}

// newUserlibLoaderContainer pulls every S3 user library into the shared lib
// volume before the Flink containers start.
func newUserlibLoaderContainer(s3Libs []string, opConf *conf.OperatorConf) (*corev1.Container, error) {
	s3 := opConf.S3
	if util.IsBlank(&s3.Endpoint) {
		return nil, fmt.Errorf("user libraries on s3 need a configured s3 endpoint")
	}
	endpoint := s3.Endpoint
	if !strings.Contains(endpoint, "://") {
		scheme := "http"
		if s3.SslEnabled {
			scheme = "https"
		}
		endpoint = scheme + "://" + endpoint
	}
	cmds := []string{
		fmt.Sprintf("mc alias set %s %s %s %s", minioAlias, endpoint, s3.AccessKey, s3.SecretKey),
	}
	for _, lib := range s3Libs {
		cmds = append(cmds, fmt.Sprintf("mc cp %s/%s %s/%s",
			minioAlias, s3.RevisePath(lib), userLibMountPath, util.PathBaseName(lib)))
	}
	return &corev1.Container{
		Name:    userlibLoaderName,
		Image:   opConf.Flink.MinioClientImage,
		Command: []string{"sh", "-c", strings.Join(cmds, " && ")},
		VolumeMounts: []corev1.VolumeMount{
			{Name: userLibsVolume, MountPath: userLibMountPath},
		},
	}, nil
}

func newMainContainer(s3Libs []string) *corev1.Container {
	mounts := []corev1.VolumeMount{
		{Name: hostPathVolume, MountPath: hostPathMountPath},
		{Name: logsVolume, MountPath: logsMountPath},
	}
	// each library mounts alone so the image's own lib dir stays visible
	for _, lib := range s3Libs {
		base := util.PathBaseName(lib)
		mounts = append(mounts, corev1.VolumeMount{
			Name:      userLibsVolume,
			MountPath: userLibMountPath + "/" + base,
			SubPath:   base,
		})
	}
	return &corev1.Container{
		Name:         mainContainerName,
		VolumeMounts: mounts,
	}
}

// DumpPodTemplate writes the pod as YAML to path, replacing any previous
// file. Null-valued fields are pruned so the launcher never chokes on them.
func DumpPodTemplate(pod *corev1.Pod, path string) error {
	jsonRaw, err := json.Marshal(pod)
	if err != nil {
		return &EncodePodTemplateYamlErr{Cause: err}
	}
	var tree map[string]any
	if err := json.Unmarshal(jsonRaw, &tree); err != nil {
		return &EncodePodTemplateYamlErr{Cause: err}
	}
	raw, err := yaml.Marshal(pruneNulls(tree))
	if err != nil {
		return &EncodePodTemplateYamlErr{Cause: err}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &IOErr{Msg: "remove previous pod template " + path, Cause: err}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return &IOErr{Msg: "write pod template " + path, Cause: err}
	}
	return nil
}

func pruneNulls(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		for k, val := range tv {
			if val == nil {
				delete(tv, k)
				continue
			}
			tv[k] = pruneNulls(val)
		}
		return tv
	case []any:
		for i, val := range tv {
			tv[i] = pruneNulls(val)
		}
		return tv
	default:
		return v
	}
}
