package v1

import (
	"testing"

	"gotest.tools/v3/assert"
)

func entriesToMap(entries []ConfEntry) map[string]any {
	m := make(map[string]any, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m
}

func TestStateBackendElision(t *testing.T) {
	empty := ""
	sb := StateBackendConf{
		BackendType:           BackendHashMap,
		CheckpointStorage:     CheckpointStorageJobManager,
		CheckpointDir:         nil,
		SavepointDir:          &empty,
		Incremental:           false,
		LocalRecovery:         false,
		CheckpointNumRetained: 0,
	}
	elided := ElideEntries(sb.RawMapping())
	m := entriesToMap(elided)

	assert.Equal(t, m["state.backend"], "hashmap")
	assert.Equal(t, m["state.checkpoint-storage"], "jobmanager")
	assert.Equal(t, m["state.backend.incremental"], false)
	assert.Equal(t, m["state.backend.local-recovery"], false)
	assert.Equal(t, m["state.checkpoints.num-retained"], 1)

	_, hasCheckpointDir := m["state.checkpoints.dir"]
	_, hasSavepointDir := m["state.savepoints.dir"]
	assert.Equal(t, hasCheckpointDir, false)
	assert.Equal(t, hasSavepointDir, false)
}

func TestElisionUnwrapsNonEmptyOptionals(t *testing.T) {
	dir := "s3p://b/ckp"
	sb := StateBackendConf{
		BackendType:           BackendRocksDB,
		CheckpointStorage:     CheckpointStorageFilesystem,
		CheckpointDir:         &dir,
		Incremental:           true,
		CheckpointNumRetained: 3,
	}
	m := entriesToMap(ElideEntries(sb.RawMapping()))
	assert.Equal(t, m["state.checkpoints.dir"], "s3p://b/ckp")
	assert.Equal(t, m["state.backend.incremental"], true)
	assert.Equal(t, m["state.checkpoints.num-retained"], 3)
}

func TestElisionDropsEmptyCollections(t *testing.T) {
	entries := []ConfEntry{
		{"empty.slice", []string{}},
		{"empty.map", map[string]string{}},
		{"nil.value", nil},
		{"kept", []string{"a"}},
	}
	elided := ElideEntries(entries)
	assert.Equal(t, len(elided), 1)
	assert.Equal(t, elided[0].Key, "kept")
}

func TestCpuConfGuardsAndDoubleKey(t *testing.T) {
	entries := CpuConf{Jm: -1, Tm: 2, TmFactor: 2}.RawMapping()
	assert.Equal(t, len(entries), 2)
	// both entries deliberately carry the taskmanager key, last one wins
	assert.Equal(t, entries[0].Key, "kubernetes.taskmanager.cpu")
	assert.Equal(t, entries[1].Key, "kubernetes.taskmanager.cpu")
	assert.Equal(t, entries[0].Value, 1.0)
	assert.Equal(t, entries[1].Value, 4.0)
}

func TestMemConfGuards(t *testing.T) {
	m := entriesToMap(MemConf{JmMB: 0, TmMB: 4096}.RawMapping())
	assert.Equal(t, m["jobmanager.memory.process.size"], "1920m")
	assert.Equal(t, m["taskmanager.memory.process.size"], "4096m")
}

func TestParConfLowerBounds(t *testing.T) {
	m := entriesToMap(ParConf{NumOfSlot: 0, ParDefault: -5}.RawMapping())
	assert.Equal(t, m["taskmanager.numberOfTaskSlots"], 1)
	assert.Equal(t, m["parallelism.default"], 1)
}

func TestRestartStgVariants(t *testing.T) {
	m := entriesToMap(RestartStgConf{}.RawMapping())
	assert.Equal(t, m["restart-strategy"], "none")

	m = entriesToMap(RestartStgConf{
		Type:       RestartStgFixedDelay,
		FixedDelay: &FixedDelayStg{Attempts: 0, DelaySec: 15},
	}.RawMapping())
	assert.Equal(t, m["restart-strategy"], "fixed-delay")
	assert.Equal(t, m["restart-strategy.fixed-delay.attempts"], 1)
	assert.Equal(t, m["restart-strategy.fixed-delay.delay"], "15s")

	m = entriesToMap(RestartStgConf{
		Type:        RestartStgFailureRate,
		FailureRate: &FailureRateStg{MaxFailuresPerInterval: 3, IntervalSec: 300, DelaySec: 10},
	}.RawMapping())
	assert.Equal(t, m["restart-strategy"], "failure-rate")
	assert.Equal(t, m["restart-strategy.failure-rate.max-failures-per-interval"], 3)
	assert.Equal(t, m["restart-strategy.failure-rate.failure-rate-interval"], "300s")
	assert.Equal(t, m["restart-strategy.failure-rate.delay"], "10s")
}

func TestS3AccessConfFlavors(t *testing.T) {
	pathStyle := true
	c := S3AccessConf{
		Endpoint:        "http://minio:9000",
		AccessKey:       "ak",
		SecretKey:       "sk",
		PathStyleAccess: &pathStyle,
	}
	s3p := entriesToMap(ElideEntries(c.RawMappingS3p()))
	assert.Equal(t, s3p["hive.s3.endpoint"], "http://minio:9000")
	assert.Equal(t, s3p["hive.s3.aws-access-key"], "ak")
	assert.Equal(t, s3p["hive.s3.path-style-access"], true)
	_, hasSsl := s3p["hive.s3.ssl.enabled"]
	assert.Equal(t, hasSsl, false)

	s3a := entriesToMap(ElideEntries(c.RawMappingS3a()))
	assert.Equal(t, s3a["fs.s3a.endpoint"], "http://minio:9000")
	assert.Equal(t, s3a["fs.s3a.secret.key"], "sk")
	assert.Equal(t, s3a["fs.s3a.path.style.access"], true)
}

func TestSavepointRestoreConf(t *testing.T) {
	m := entriesToMap(SavepointRestoreConf{
		Path:                  "s3p://b/spts/1",
		AllowNonRestoredState: true,
		Mode:                  RestoreModeClaim,
	}.RawMapping())
	assert.Equal(t, m["execution.savepoint-restore-mode"], "CLAIM")
	assert.Equal(t, m["execution.savepoint.path"], "s3p://b/spts/1")
	assert.Equal(t, m["execution.savepoint.ignore-unclaimed-state"], true)
}

func TestPluginJarNames(t *testing.T) {
	assert.Equal(t, PluginS3Presto.JarName(V1_17), "flink-s3-fs-presto-1.17.2.jar")

	p, ok := LookupPlugin("s3-fs-presto")
	assert.Equal(t, ok, true)
	assert.Equal(t, p.Name, "s3-fs-presto")

	p, ok = LookupPlugin("flink-s3-fs-hadoop")
	assert.Equal(t, ok, true)
	assert.Equal(t, p.Name, "s3-fs-hadoop")

	p, ok = LookupPlugin("flink-s3-fs-presto-1.15.4.jar")
	assert.Equal(t, ok, true)
	assert.Equal(t, p.Name, "s3-fs-presto")

	_, ok = LookupPlugin("my-own-plugin.jar")
	assert.Equal(t, ok, false)
}
