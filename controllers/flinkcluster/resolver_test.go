package flinkcluster

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
	"github.com/streamops/flink-operator/internal/conf"
	"github.com/streamops/flink-operator/internal/util"
)

func testOperatorConf() *conf.OperatorConf {
	c, _ := conf.Load("")
	c.S3 = conf.S3Conf{
		Endpoint:        "http://minio:9000",
		Bucket:          "b",
		AccessKey:       "ak",
		SecretKey:       "sk",
		PathStyleAccess: true,
	}
	return c
}

func appDef() *v1.FlinkClusterDef {
	main := "M"
	return &v1.FlinkClusterDef{
		Fcid:     v1.Fcid{ClusterId: "c1", Namespace: "ns1"},
		Image:    "flink:1.17",
		FlinkVer: v1.V1_17,
		JmHa:     &v1.JmHaConf{StorageDir: "s3://b/ha"},
		Job: &v1.JobDef{
			JobJar:  "s3://b/app.jar",
			JobName: "app",
			AppMain: &main,
			AppArgs: []string{"-x"},
		},
	}
}

func TestReviseApplicationClusterWithS3JobJar(t *testing.T) {
	revised, err := Revise(appDef())
	assert.NilError(t, err)

	assert.Equal(t, revised.Mode, v1.ModeApplication)
	assert.Equal(t, revised.Job.JobJar, "s3p://b/app.jar")
	assert.Equal(t, revised.JmHa.StorageDir, "s3p://b/ha")
	// the presto plugin rides along whenever anything lives on S3
	assert.DeepEqual(t, revised.BuiltInPlugins, []string{"flink-s3-fs-presto-1.17.2.jar"})
}

func TestResolveApplicationClusterConfig(t *testing.T) {
	revised, err := Revise(appDef())
	assert.NilError(t, err)
	cfg, err := ToFlinkRawConfig(revised, testOperatorConf())
	assert.NilError(t, err)
	m := cfg.AsMap()

	assert.Equal(t, m["execution.target"], "kubernetes-application")
	assert.Equal(t, m["kubernetes.cluster-id"], "c1")
	assert.Equal(t, m["kubernetes.namespace"], "ns1")
	assert.Equal(t, m["kubernetes.container.image"], "flink:1.17")
	assert.Equal(t, m["kubernetes.jobmanager.service-account"], "flink-opr")
	assert.Equal(t, m["kubernetes.rest-service.exposed.type"], "ClusterIP")
	assert.Equal(t, m["blob.server.port"], "6124")
	assert.Equal(t, m["taskmanager.rpc.port"], "6122")
	assert.Equal(t, m["high-availability.storageDir"], "s3p://b/ha")
	assert.Equal(t, m["pipeline.jars"], "local:///opt/flink/lib/app.jar")
	assert.Equal(t, m["pipeline.name"], "app")
	assert.Equal(t, m["$internal.application.main"], "M")
	assert.Equal(t, m["$internal.application.program-args"], "-x")
	assert.Equal(t, m["containerized.master.env.ENABLE_BUILT_IN_PLUGINS"], "flink-s3-fs-presto-1.17.2.jar")
	assert.Equal(t, m["containerized.taskmanager.env.ENABLE_BUILT_IN_PLUGINS"], "flink-s3-fs-presto-1.17.2.jar")
	// the operator's own s3 access rides along for the presto filesystem
	assert.Equal(t, m["hive.s3.endpoint"], "http://minio:9000")
	assert.Equal(t, m["hive.s3.path-style-access"], "true")
}

func TestReviseIsIdempotent(t *testing.T) {
	def := appDef()
	def.BuiltInPlugins = []string{"s3-fs-presto", " ", "s3-fs-presto"}
	def.ExtRawConfigs = map[string]string{"  parallelism.max ": " 64 "}

	once, err := Revise(def)
	assert.NilError(t, err)
	twice, err := Revise(once)
	assert.NilError(t, err)
	assert.DeepEqual(t, once, twice)

	cfgOnce, err := ToFlinkRawConfig(once, testOperatorConf())
	assert.NilError(t, err)
	cfgTwice, err := ToFlinkRawConfig(twice, testOperatorConf())
	assert.NilError(t, err)
	assert.Equal(t, len(util.MapDiff(cfgOnce.AsMap(), cfgTwice.AsMap())), 0)
}

func TestReservedKeysCannotBeOverridden(t *testing.T) {
	def := appDef()
	def.ExtRawConfigs = map[string]string{
		"execution.target": "hacked",
		"parallelism.max":  "64",
	}
	revised, err := Revise(def)
	assert.NilError(t, err)
	cfg, err := ToFlinkRawConfig(revised, testOperatorConf())
	assert.NilError(t, err)
	m := cfg.AsMap()

	assert.Equal(t, m["execution.target"], "kubernetes-application")
	assert.Equal(t, m["parallelism.max"], "64")
}

func TestExtRawConfigsWinOverDefaults(t *testing.T) {
	def := appDef()
	def.ExtRawConfigs = map[string]string{"web.submit.enable": "true"}
	revised, err := Revise(def)
	assert.NilError(t, err)
	cfg, err := ToFlinkRawConfig(revised, testOperatorConf())
	assert.NilError(t, err)

	v, _ := cfg.Get("web.submit.enable")
	assert.Equal(t, v, "true")
}

func TestEnsureS3PluginsExactlyOnce(t *testing.T) {
	def := appDef()
	def.BuiltInPlugins = []string{"s3-fs-presto"}
	revised, err := Revise(def)
	assert.NilError(t, err)

	count := 0
	for _, p := range revised.BuiltInPlugins {
		if p == v1.PluginS3Presto.JarName(def.FlinkVer) {
			count++
		}
	}
	assert.Equal(t, count, 1)
}

func TestHadoopPluginAddedForClusterS3(t *testing.T) {
	def := appDef()
	def.S3 = &v1.S3AccessConf{Endpoint: "http://minio:9000", AccessKey: "a", SecretKey: "s"}
	revised, err := Revise(def)
	assert.NilError(t, err)

	assert.Check(t, hasPlugin(revised.BuiltInPlugins, v1.PluginS3Presto))
	assert.Check(t, hasPlugin(revised.BuiltInPlugins, v1.PluginS3Hadoop))

	cfg, err := ToFlinkRawConfig(revised, testOperatorConf())
	assert.NilError(t, err)
	m := cfg.AsMap()
	assert.Equal(t, m["fs.s3a.endpoint"], "http://minio:9000")
}

func TestSessionClusterConfig(t *testing.T) {
	def := &v1.FlinkClusterDef{
		Fcid:     v1.Fcid{ClusterId: "s1", Namespace: "ns1"},
		Image:    "flink:1.17",
		FlinkVer: v1.V1_17,
		Par:      v1.ParConf{NumOfSlot: 4, ParDefault: 2},
	}
	revised, err := Revise(def)
	assert.NilError(t, err)
	assert.Equal(t, revised.Mode, v1.ModeSession)

	cfg, err := ToFlinkRawConfig(revised, testOperatorConf())
	assert.NilError(t, err)
	m := cfg.AsMap()
	assert.Equal(t, m["execution.target"], "kubernetes-session")
	assert.Equal(t, m["taskmanager.numberOfTaskSlots"], "4")
	assert.Equal(t, m["parallelism.default"], "2")
	_, hasPipelineJars := m["pipeline.jars"]
	assert.Equal(t, hasPipelineJars, false)
	_, hasS3p := m["hive.s3.endpoint"]
	assert.Equal(t, hasS3p, false)
}

func TestNoEmptyValuesEmitted(t *testing.T) {
	empty := ""
	def := appDef()
	def.StateBackend = &v1.StateBackendConf{
		BackendType:       v1.BackendHashMap,
		CheckpointStorage: v1.CheckpointStorageJobManager,
		SavepointDir:      &empty,
	}
	revised, err := Revise(def)
	assert.NilError(t, err)
	cfg, err := ToFlinkRawConfig(revised, testOperatorConf())
	assert.NilError(t, err)

	for k, v := range cfg.AsMap() {
		assert.Check(t, v != "", "key %q emitted empty", k)
	}
}

func TestReviseDoesNotMutateInput(t *testing.T) {
	def := appDef()
	def.BuiltInPlugins = []string{"s3-fs-presto"}
	original := def.DeepCopy()

	_, err := Revise(def)
	assert.NilError(t, err)
	assert.Check(t, cmp.Diff(original, def) == "", "revise mutated its input")
}
