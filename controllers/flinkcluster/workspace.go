package flinkcluster

import (
	"fmt"
	"os"
	"path/filepath"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
)

const (
	podTemplateFileName = "flink-podtemplate.yaml"
	logConfDirName      = "log-conf"
)

// Default Log4j properties mounted into launched clusters.
const log4jConsoleProperties = `rootLogger.level = INFO
rootLogger.appenderRef.console.ref = ConsoleAppender
appender.console.name = ConsoleAppender
appender.console.type = CONSOLE
appender.console.layout.type = PatternLayout
appender.console.layout.pattern = %d{yyyy-MM-dd HH:mm:ss,SSS} %-5p %-60c %x - %m%n
logger.akka.name = akka
logger.akka.level = INFO
logger.kafka.name = org.apache.kafka
logger.kafka.level = INFO
logger.hadoop.name = org.apache.hadoop
logger.hadoop.level = INFO
logger.zookeeper.name = org.apache.zookeeper
logger.zookeeper.level = INFO
`

const log4jCliProperties = `rootLogger.level = INFO
rootLogger.appenderRef.file.ref = FileAppender
appender.file.name = FileAppender
appender.file.type = FILE
appender.file.append = false
appender.file.fileName = ${sys:log.file}
appender.file.layout.type = PatternLayout
appender.file.layout.pattern = %d{yyyy-MM-dd HH:mm:ss,SSS} %-5p %-60c %x - %m%n
`

// Workspace owns the per-cluster local directories the launcher reads.
type Workspace struct {
	root string
}

func NewWorkspace(localTmpDir string) *Workspace {
	return &Workspace{root: localTmpDir}
}

// Dir is "<root>/<namespace>@<clusterId>".
func (w *Workspace) Dir(fcid v1.Fcid) string {
	return filepath.Join(w.root, fmt.Sprintf("%s@%s", fcid.Namespace, fcid.ClusterId))
}

func (w *Workspace) PodTemplatePath(fcid v1.Fcid) string {
	return filepath.Join(w.Dir(fcid), podTemplateFileName)
}

func (w *Workspace) LogConfDir(fcid v1.Fcid) string {
	return filepath.Join(w.Dir(fcid), logConfDirName)
}

// Prepare (re)creates the cluster workspace with its log-conf files and
// returns its path.
func (w *Workspace) Prepare(fcid v1.Fcid) (string, error) {
	dir := w.Dir(fcid)
	if err := os.RemoveAll(dir); err != nil {
		return "", &IOErr{Msg: "reset workspace " + dir, Cause: err}
	}
	logConf := w.LogConfDir(fcid)
	if err := os.MkdirAll(logConf, 0o755); err != nil {
		return "", &IOErr{Msg: "create workspace " + dir, Cause: err}
	}
	files := map[string]string{
		"log4j-console.properties": log4jConsoleProperties,
		"log4j-cli.properties":     log4jCliProperties,
	}
	for name, content := range files {
		path := filepath.Join(logConf, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", &IOErr{Msg: "write " + path, Cause: err}
		}
	}
	return dir, nil
}

// Cleanup removes the cluster workspace.
func (w *Workspace) Cleanup(fcid v1.Fcid) error {
	if err := os.RemoveAll(w.Dir(fcid)); err != nil {
		return &IOErr{Msg: "remove workspace " + w.Dir(fcid), Cause: err}
	}
	return nil
}
