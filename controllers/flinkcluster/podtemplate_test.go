package flinkcluster

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"
)

func TestResolvePodTemplateWithoutS3Libs(t *testing.T) {
	def := appDef()
	pod, err := ResolvePodTemplate(def, testOperatorConf())
	assert.NilError(t, err)

	assert.Equal(t, pod.Name, "pod-template")
	assert.Equal(t, len(pod.Spec.InitContainers), 0)
	assert.Equal(t, len(pod.Spec.Volumes), 3)
	assert.Equal(t, pod.Spec.Volumes[0].Name, "flink-volume-hostpath")
	assert.Equal(t, pod.Spec.Volumes[0].HostPath.Path, "/tmp")
	assert.Equal(t, pod.Spec.Volumes[1].Name, "flink-libs")
	assert.Check(t, pod.Spec.Volumes[1].EmptyDir != nil)
	assert.Equal(t, pod.Spec.Volumes[2].Name, "flink-logs")

	main := pod.Spec.Containers[0]
	assert.Equal(t, main.Name, "flink-main-container")
	assert.Equal(t, len(main.VolumeMounts), 2)
	assert.Equal(t, main.VolumeMounts[0].MountPath, "/opt/flink/volume")
	assert.Equal(t, main.VolumeMounts[1].MountPath, "/opt/flink/log")
}

func TestResolvePodTemplateWithS3Libs(t *testing.T) {
	def := appDef()
	def.InjectedDeps = []string{"s3p://b/libs/udf.jar", "/opt/flink/lib/local.jar"}
	pod, err := ResolvePodTemplate(def, testOperatorConf())
	assert.NilError(t, err)

	assert.Equal(t, len(pod.Spec.InitContainers), 1)
	loader := pod.Spec.InitContainers[0]
	assert.Equal(t, loader.Name, "userlib-loader")
	assert.Equal(t, loader.Image, "minio/mc:latest")
	script := loader.Command[2]
	assert.Check(t, strings.Contains(script, "mc alias set minio http://minio:9000 ak sk"))
	assert.Check(t, strings.Contains(script, "mc cp minio/b/libs/udf.jar /opt/flink/lib/udf.jar"))
	assert.Equal(t, loader.VolumeMounts[0].MountPath, "/opt/flink/lib")

	main := pod.Spec.Containers[0]
	// the local jar gets no dedicated mount
	assert.Equal(t, len(main.VolumeMounts), 3)
	libMount := main.VolumeMounts[2]
	assert.Equal(t, libMount.Name, "flink-libs")
	assert.Equal(t, libMount.MountPath, "/opt/flink/lib/udf.jar")
	assert.Equal(t, libMount.SubPath, "udf.jar")
}

func TestResolvePodTemplateOverride(t *testing.T) {
	override := `
apiVersion: v1
kind: Pod
metadata:
  name: custom-template
spec:
  containers:
    - name: flink-main-container
      image: flink:custom
`
	def := appDef()
	def.OverridePodTemplate = &override
	pod, err := ResolvePodTemplate(def, testOperatorConf())
	assert.NilError(t, err)
	assert.Equal(t, pod.Name, "custom-template")
	assert.Equal(t, pod.Spec.Containers[0].Image, "flink:custom")

	broken := "{not yaml"
	def.OverridePodTemplate = &broken
	_, err = ResolvePodTemplate(def, testOperatorConf())
	var decodeErr *DecodePodTemplateYamlErr
	assert.Check(t, errors.As(err, &decodeErr))
}

func TestDumpPodTemplateReplacesExisting(t *testing.T) {
	def := appDef()
	pod, err := ResolvePodTemplate(def, testOperatorConf())
	assert.NilError(t, err)

	path := filepath.Join(t.TempDir(), "flink-podtemplate.yaml")
	assert.NilError(t, os.WriteFile(path, []byte("stale"), 0o644))
	assert.NilError(t, DumpPodTemplate(pod, path))

	raw, err := os.ReadFile(path)
	assert.NilError(t, err)
	decoded := &corev1.Pod{}
	assert.NilError(t, yaml.Unmarshal(raw, decoded))
	assert.Equal(t, decoded.Name, "pod-template")
	// null-valued fields do not survive encoding
	assert.Check(t, !strings.Contains(string(raw), "creationTimestamp: null"))
}
