package v1

import (
	"fmt"
	"strings"
)

// Plugin is a Flink-distributed plugin selected by short name. The versioned
// JAR filename is what ENABLE_BUILT_IN_PLUGINS understands.
type Plugin struct {
	Name string
}

// JarName returns the versioned JAR filename, e.g.
// "flink-s3-fs-presto-1.17.2.jar".
func (p Plugin) JarName(ver FlinkVer) string {
	return fmt.Sprintf("flink-%s-%s.jar", p.Name, ver)
}

// JarPrefix is the filename prefix shared by all versions of the plugin.
func (p Plugin) JarPrefix() string {
	return fmt.Sprintf("flink-%s-", p.Name)
}

var (
	PluginS3Presto    = Plugin{Name: "s3-fs-presto"}
	PluginS3Hadoop    = Plugin{Name: "s3-fs-hadoop"}
	PluginOssHadoop   = Plugin{Name: "oss-fs-hadoop"}
	PluginAzureHadoop = Plugin{Name: "azure-fs-hadoop"}
	PluginGsHadoop    = Plugin{Name: "gs-fs-hadoop"}
	PluginCep         = Plugin{Name: "cep-scala"}
)

var pluginRegistry = []Plugin{
	PluginS3Presto,
	PluginS3Hadoop,
	PluginOssHadoop,
	PluginAzureHadoop,
	PluginGsHadoop,
	PluginCep,
}

// LookupPlugin matches a user-provided plugin name against the registry.
// Accepted forms: the short name ("s3-fs-presto"), the prefixed name
// ("flink-s3-fs-presto"), or a full versioned JAR filename.
func LookupPlugin(name string) (Plugin, bool) {
	for _, p := range pluginRegistry {
		if name == p.Name || name == "flink-"+p.Name || strings.HasPrefix(name, p.JarPrefix()) {
			return p, true
		}
	}
	return Plugin{}, false
}
