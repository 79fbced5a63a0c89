package flinkcluster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"gotest.tools/v3/assert"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
	"github.com/streamops/flink-operator/controllers/flink"
	"github.com/streamops/flink-operator/internal/k8s"
	"github.com/streamops/flink-operator/internal/s3"
)

type fakeLauncher struct {
	appCfg     *v1.Configuration
	sessionCfg *v1.Configuration
	fail       error
}

func (f *fakeLauncher) DeployApplicationCluster(_ context.Context, cfg *v1.Configuration) error {
	f.appCfg = cfg
	return f.fail
}

func (f *fakeLauncher) DeploySessionCluster(_ context.Context, cfg *v1.Configuration) error {
	f.sessionCfg = cfg
	return f.fail
}

func newTestSubmitter(t *testing.T, clientset *fake.Clientset) (*Submitter, *fakeLauncher, *Workspace) {
	t.Helper()
	opConf := testOperatorConf()
	opConf.Flink.LocalTmpDir = t.TempDir()

	logger := zap.NewNop()
	observer, _ := newTestObserver(t, clientset)
	launcher := &fakeLauncher{}
	ws := NewWorkspace(opConf.Flink.LocalTmpDir)
	s3Resolver, err := s3.NewResolver(opConf.S3)
	assert.NilError(t, err)
	submitter := NewSubmitter(launcher, ws, s3Resolver, flink.NewDefaultClient(logger),
		k8s.NewGateway(clientset), observer, opConf, logger)
	return submitter, launcher, ws
}

func TestDeployApplicationCluster(t *testing.T) {
	ctx := context.Background()
	submitter, launcher, ws := newTestSubmitter(t, fake.NewSimpleClientset())

	def := appDef()
	assert.NilError(t, submitter.DeployApplicationCluster(ctx, def))
	assert.Check(t, launcher.appCfg != nil)

	m := launcher.appCfg.AsMap()
	assert.Equal(t, m["execution.target"], "kubernetes-application")
	assert.Equal(t, m["pipeline.jars"], "local:///opt/flink/lib/app.jar")
	assert.Equal(t, m["kubernetes.pod-template-file.jobmanager"], ws.PodTemplatePath(def.Fcid))

	// the workspace holds the pod template and the log-conf files
	_, err := os.Stat(ws.PodTemplatePath(def.Fcid))
	assert.NilError(t, err)
	_, err = os.Stat(filepath.Join(ws.LogConfDir(def.Fcid), "log4j-console.properties"))
	assert.NilError(t, err)
}

func TestDeploySessionCluster(t *testing.T) {
	ctx := context.Background()
	submitter, launcher, _ := newTestSubmitter(t, fake.NewSimpleClientset())

	def := &v1.FlinkClusterDef{
		Fcid:     v1.Fcid{ClusterId: "s1", Namespace: "ns1"},
		FlinkVer: v1.V1_17,
	}
	assert.NilError(t, submitter.DeploySessionCluster(ctx, def))
	assert.Check(t, launcher.sessionCfg != nil)
	m := launcher.sessionCfg.AsMap()
	assert.Equal(t, m["execution.target"], "kubernetes-session")
}

func TestDeployFailureSurfacesAsSubmitErr(t *testing.T) {
	ctx := context.Background()
	submitter, launcher, _ := newTestSubmitter(t, fake.NewSimpleClientset())
	launcher.fail = errors.New("launcher exploded")

	err := submitter.DeployApplicationCluster(ctx, appDef())
	var submitErr *SubmitFlinkApplicationClusterErr
	assert.Check(t, errors.As(err, &submitErr))
	assert.Equal(t, submitErr.Fcid, appDef().Fcid)
}

func TestSubmitJobToSessionRejectsNonS3Jar(t *testing.T) {
	ctx := context.Background()
	submitter, _, _ := newTestSubmitter(t, fake.NewSimpleClientset())

	_, err := submitter.SubmitJobToSession(ctx, testFcid, &v1.JobDef{JobJar: "/local/app.jar"})
	var notSupported *NotSupportJobJarPath
	assert.Check(t, errors.As(err, &notSupported))
	assert.Equal(t, notSupported.Path, "/local/app.jar")
}

func TestKillCluster(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewSimpleClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "c1", Namespace: "ns1"},
	})
	submitter, _, ws := newTestSubmitter(t, clientset)

	_, err := ws.Prepare(testFcid)
	assert.NilError(t, err)
	assert.NilError(t, submitter.KillCluster(ctx, testFcid))

	_, err = os.Stat(ws.Dir(testFcid))
	assert.Check(t, os.IsNotExist(err))

	// a second kill reports the cluster as gone
	err = submitter.KillCluster(ctx, testFcid)
	var notFound *k8s.ClusterNotFound
	assert.Check(t, errors.As(err, &notFound))
}
