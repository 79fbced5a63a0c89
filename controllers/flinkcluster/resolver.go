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
	"fmt"
	"sort"
	"strings"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
	"github.com/streamops/flink-operator/internal/conf"
	"github.com/streamops/flink-operator/internal/util"
)

// Resolver which validates and normalizes cluster definitions and emits the
// configuration accepted by the Flink launcher.

const (
	blobServerPort       = 6124
	taskManagerRpcPort   = 6122
	userLibMountPath     = "/opt/flink/lib"
	enableBuiltInPlugins = "ENABLE_BUILT_IN_PLUGINS"
)

// Keys the resolver computes from structured fields. User values for them
// are silently dropped.
var reservedKeys = map[string]struct{}{
	"execution.target":                           {},
	"kubernetes.cluster-id":                      {},
	"kubernetes.namespace":                       {},
	"kubernetes.container.image":                 {},
	"kubernetes.service-account":                 {},
	"kubernetes.jobmanager.service-account":      {},
	"kubernetes.pod-template-file":               {},
	"kubernetes.pod-template-file.jobmanager":    {},
	"kubernetes.pod-template-file.taskmanager":   {},
	"$internal.deployment.config-dir":            {},
	"pipeline.jars":                              {},
	"$internal.application.main":                 {},
	"$internal.application.program-args":         {},
}

// Revise validates and normalizes a cluster definition. It is pure and
// idempotent: the input is not mutated, and revising a revised definition
// changes nothing.
func Revise(def *v1.FlinkClusterDef) (*v1.FlinkClusterDef, error) {
	out := def.DeepCopy()
	v1.SetDefault(out)
	if err := v1.Validate(out); err != nil {
		return nil, &ReviseFlinkClusterDefErr{Fcid: def.Fcid, Stage: "validate", Cause: err}
	}
	filterExtRawConfigs(out)
	normalizeBuiltInPlugins(out)
	rewriteS3Paths(out)
	ensureS3Plugins(out)
	ensureHadoopPlugins(out)
	return out, nil
}

// Stage 1: trim the raw overrides, drop blanks, drop reserved keys.
func filterExtRawConfigs(def *v1.FlinkClusterDef) {
	if len(def.ExtRawConfigs) == 0 {
		return
	}
	filtered := make(map[string]string, len(def.ExtRawConfigs))
	for k, v := range def.ExtRawConfigs {
		key, keyOk := util.TrimmedNonEmpty(k)
		val, valOk := util.TrimmedNonEmpty(v)
		if !keyOk || !valOk {
			continue
		}
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}
		filtered[key] = val
	}
	def.ExtRawConfigs = filtered
}

// Stage 2: registry plugin names become versioned JAR filenames, unknown
// names pass through, duplicates collapse.
func normalizeBuiltInPlugins(def *v1.FlinkClusterDef) {
	seen := make(map[string]struct{}, len(def.BuiltInPlugins))
	normalized := make([]string, 0, len(def.BuiltInPlugins))
	for _, name := range def.BuiltInPlugins {
		name, ok := util.TrimmedNonEmpty(name)
		if !ok {
			continue
		}
		if plugin, found := v1.LookupPlugin(name); found {
			name = plugin.JarName(def.FlinkVer)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		normalized = append(normalized, name)
	}
	def.BuiltInPlugins = normalized
}

// Stage 3: every S3 path is forced to the s3p scheme.
func rewriteS3Paths(def *v1.FlinkClusterDef) {
	if sb := def.StateBackend; sb != nil {
		if sb.CheckpointDir != nil {
			revised := util.ReviseToS3pSchema(*sb.CheckpointDir)
			sb.CheckpointDir = &revised
		}
		if sb.SavepointDir != nil {
			revised := util.ReviseToS3pSchema(*sb.SavepointDir)
			sb.SavepointDir = &revised
		}
	}
	if def.JmHa != nil {
		def.JmHa.StorageDir = util.ReviseToS3pSchema(def.JmHa.StorageDir)
	}
	for i, dep := range def.InjectedDeps {
		def.InjectedDeps[i] = util.ReviseToS3pSchema(dep)
	}
	if def.Job != nil {
		def.Job.JobJar = util.ReviseToS3pSchema(def.Job.JobJar)
	}
}

// IsS3Required reports whether any resolved resource path lives on S3, in
// which case the presto filesystem plugin must ride along.
func IsS3Required(def *v1.FlinkClusterDef) bool {
	if sb := def.StateBackend; sb != nil {
		if sb.CheckpointDir != nil && util.IsS3Path(*sb.CheckpointDir) {
			return true
		}
		if sb.SavepointDir != nil && util.IsS3Path(*sb.SavepointDir) {
			return true
		}
	}
	if def.JmHa != nil && util.IsS3Path(def.JmHa.StorageDir) {
		return true
	}
	for _, dep := range def.InjectedDeps {
		if util.IsS3Path(dep) {
			return true
		}
	}
	if def.Job != nil && util.IsS3Path(def.Job.JobJar) {
		return true
	}
	return false
}

// Stage 4: auto-include the S3 filesystem plugins.
func ensureS3Plugins(def *v1.FlinkClusterDef) {
	if IsS3Required(def) && !hasPlugin(def.BuiltInPlugins, v1.PluginS3Presto) {
		def.BuiltInPlugins = append(def.BuiltInPlugins, v1.PluginS3Presto.JarName(def.FlinkVer))
	}
	if def.S3 != nil && !hasPlugin(def.BuiltInPlugins, v1.PluginS3Hadoop) {
		def.BuiltInPlugins = append(def.BuiltInPlugins, v1.PluginS3Hadoop.JarName(def.FlinkVer))
	}
}

func hasPlugin(plugins []string, p v1.Plugin) bool {
	for _, name := range plugins {
		if strings.HasPrefix(name, p.JarPrefix()) {
			return true
		}
	}
	return false
}

// Stage 5: reserved for hadoop filesystem plugin handling.
func ensureHadoopPlugins(def *v1.FlinkClusterDef) {
}

// ToFlinkRawConfig emits the final configuration from a revised definition.
// Emission order is fixed; the filtered raw overrides land last and win over
// everything except the reserved keys already removed from them.
func ToFlinkRawConfig(def *v1.FlinkClusterDef, opConf *conf.OperatorConf) (cfg *v1.Configuration, err error) {
	defer func() {
		if r := recover(); r != nil {
			cfg = nil
			err = &DryToFlinkRawConfigErr{Fcid: def.Fcid, Cause: fmt.Errorf("%v", r)}
		}
	}()

	cfg = v1.NewConfiguration()
	cfg.Append("execution.target", string(def.Mode))
	cfg.Append("kubernetes.cluster-id", def.Fcid.ClusterId)
	cfg.Append("kubernetes.namespace", def.Fcid.Namespace)
	cfg.Append("kubernetes.container.image", def.Image)
	serviceAccount := opConf.Flink.K8sAccount
	if def.K8sAccount != nil {
		serviceAccount = *def.K8sAccount
	}
	cfg.Append("kubernetes.jobmanager.service-account", serviceAccount)
	cfg.Append("kubernetes.rest-service.exposed.type", string(def.RestExportType))
	cfg.Append("blob.server.port", blobServerPort)
	cfg.Append("taskmanager.rpc.port", taskManagerRpcPort)

	cfg.AppendAll(v1.ElideEntries(def.CPU.RawMapping()))
	cfg.AppendAll(v1.ElideEntries(def.Mem.RawMapping()))
	cfg.AppendAll(v1.ElideEntries(def.Par.RawMapping()))
	cfg.AppendAll(v1.ElideEntries(def.WebUI.RawMapping()))
	cfg.AppendAll(v1.ElideEntries(def.RestartStg.RawMapping()))
	if def.StateBackend != nil {
		cfg.AppendAll(v1.ElideEntries(def.StateBackend.RawMapping()))
	}
	if def.JmHa != nil {
		cfg.AppendAll(v1.ElideEntries(def.JmHa.RawMapping()))
	}

	if IsS3Required(def) {
		cfg.AppendAll(v1.ElideEntries(opConf.S3.ToAccessConf().RawMappingS3p()))
	}
	if def.S3 != nil {
		cfg.AppendAll(v1.ElideEntries(def.S3.RawMappingS3a()))
	}

	if len(def.BuiltInPlugins) > 0 {
		plugins := strings.Join(def.BuiltInPlugins, ";")
		cfg.Append("containerized.master.env."+enableBuiltInPlugins, plugins)
		cfg.Append("containerized.taskmanager.env."+enableBuiltInPlugins, plugins)
	}

	if job := def.Job; job != nil {
		jar := job.JobJar
		if util.IsS3Path(jar) {
			// the userlib loader places the jar into the image-local lib dir
			jar = "local://" + userLibMountPath + "/" + util.PathBaseName(jar)
		}
		cfg.Append("pipeline.jars", jar)
		cfg.Append("pipeline.name", job.JobName)
		if job.AppMain != nil {
			cfg.Append("$internal.application.main", *job.AppMain)
		}
		if len(job.AppArgs) > 0 {
			cfg.Append("$internal.application.program-args", job.AppArgs)
		}
		if job.Restore != nil {
			cfg.AppendAll(v1.ElideEntries(job.Restore.RawMapping()))
		}
	}

	for _, k := range sortedKeys(def.ExtRawConfigs) {
		cfg.Append(k, def.ExtRawConfigs[k])
	}
	return cfg, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
