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
	"context"
	"path/filepath"

	"go.uber.org/zap"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
	"github.com/streamops/flink-operator/controllers/flink"
	"github.com/streamops/flink-operator/internal/conf"
	"github.com/streamops/flink-operator/internal/k8s"
	"github.com/streamops/flink-operator/internal/s3"
	"github.com/streamops/flink-operator/internal/util"
)

// Launcher hands a resolved configuration to the Flink jar launcher. The
// implementation shells out to the Flink distribution and is not part of
// this module.
type Launcher interface {
	DeployApplicationCluster(ctx context.Context, cfg *v1.Configuration) error
	DeploySessionCluster(ctx context.Context, cfg *v1.Configuration) error
}

// Submitter turns cluster definitions into running Flink clusters and jobs.
type Submitter struct {
	launcher Launcher
	ws       *Workspace
	s3       *s3.Resolver
	flink    *flink.Client
	k8s      *k8s.Gateway
	observer *Observer
	conf     *conf.OperatorConf
	log      *zap.Logger
}

func NewSubmitter(
	launcher Launcher,
	ws *Workspace,
	s3Resolver *s3.Resolver,
	flinkClient *flink.Client,
	k8sGateway *k8s.Gateway,
	observer *Observer,
	opConf *conf.OperatorConf,
	logger *zap.Logger,
) *Submitter {
	return &Submitter{
		launcher: launcher,
		ws:       ws,
		s3:       s3Resolver,
		flink:    flinkClient,
		k8s:      k8sGateway,
		observer: observer,
		conf:     opConf,
		log:      logger.Named("submitter"),
	}
}

// prepareLaunch revises the definition, generates the pod template into the
// cluster workspace and emits the launcher configuration referencing it.
func (s *Submitter) prepareLaunch(def *v1.FlinkClusterDef) (*v1.Configuration, error) {
	revised, err := Revise(def)
	if err != nil {
		return nil, err
	}
	dir, err := s.ws.Prepare(revised.Fcid)
	if err != nil {
		return nil, err
	}
	pod, err := ResolvePodTemplate(revised, s.conf)
	if err != nil {
		return nil, err
	}
	podTemplatePath := s.ws.PodTemplatePath(revised.Fcid)
	if err := DumpPodTemplate(pod, podTemplatePath); err != nil {
		return nil, err
	}
	cfg, err := ToFlinkRawConfig(revised, s.conf)
	if err != nil {
		return nil, err
	}
	cfg.Append("kubernetes.pod-template-file.jobmanager", podTemplatePath)
	cfg.Append("kubernetes.pod-template-file.taskmanager", podTemplatePath)
	cfg.Append("$internal.deployment.config-dir", s.ws.LogConfDir(revised.Fcid))
	s.log.Info("prepared cluster launch",
		zap.String("fcid", revised.Fcid.String()), zap.String("workspace", dir))
	return cfg, nil
}

// DeployApplicationCluster launches a Flink cluster dedicated to the
// definition's job.
func (s *Submitter) DeployApplicationCluster(ctx context.Context, def *v1.FlinkClusterDef) error {
	cfg, err := s.prepareLaunch(def)
	if err != nil {
		return &SubmitFlinkApplicationClusterErr{Fcid: def.Fcid, Cause: err}
	}
	if err := s.launcher.DeployApplicationCluster(ctx, cfg); err != nil {
		return &SubmitFlinkApplicationClusterErr{Fcid: def.Fcid, Cause: err}
	}
	return s.observer.TrackCluster(ctx, def.Fcid)
}

// DeploySessionCluster launches a long-lived cluster accepting REST job
// submissions.
func (s *Submitter) DeploySessionCluster(ctx context.Context, def *v1.FlinkClusterDef) error {
	cfg, err := s.prepareLaunch(def)
	if err != nil {
		return &SubmitFlinkSessionClusterErr{Fcid: def.Fcid, Cause: err}
	}
	if err := s.launcher.DeploySessionCluster(ctx, cfg); err != nil {
		return &SubmitFlinkSessionClusterErr{Fcid: def.Fcid, Cause: err}
	}
	return s.observer.TrackCluster(ctx, def.Fcid)
}

// SubmitJobToSession pushes a job into a running session cluster: the jar
// is fetched from object storage into the workspace, uploaded over REST,
// run, and cleaned up best effort.
func (s *Submitter) SubmitJobToSession(ctx context.Context, fcid v1.Fcid, job *v1.JobDef) (string, error) {
	if !util.IsS3Path(job.JobJar) {
		return "", &NotSupportJobJarPath{Path: job.JobJar}
	}
	endpoint, err := s.observer.RetrieveRestEndpoint(ctx, fcid, false)
	if err != nil {
		return "", err
	}
	dir, err := s.ws.Prepare(fcid)
	if err != nil {
		return "", err
	}
	localJar := filepath.Join(dir, util.PathBaseName(job.JobJar))
	if err := s.s3.Download(ctx, job.JobJar, localJar); err != nil {
		return "", err
	}
	jarId, err := s.flink.UploadJar(ctx, endpoint.URL(), localJar)
	if err != nil {
		return "", err
	}
	defer s.flink.DeleteJar(ctx, endpoint.URL(), jarId)

	req := flink.RunJarReq{EntryClass: job.AppMain}
	if len(job.AppArgs) > 0 {
		req.ProgramArgsList = job.AppArgs
	}
	if restore := job.Restore; restore != nil {
		path := restore.Path
		mode := string(restore.Mode)
		allow := restore.AllowNonRestoredState
		req.SavepointPath = &path
		if mode != "" {
			req.RestoreMode = &mode
		}
		req.AllowNonRestoredState = &allow
	}
	jobId, err := s.flink.RunJar(ctx, endpoint.URL(), jarId, req)
	if err != nil {
		return "", err
	}
	s.log.Info("job submitted to session cluster",
		zap.String("fcid", fcid.String()), zap.String("jobId", jobId))
	return jobId, nil
}

// KillCluster deletes the cluster's Deployment and its local workspace, and
// stops tracking it.
func (s *Submitter) KillCluster(ctx context.Context, fcid v1.Fcid) error {
	if err := s.k8s.DeleteDeployment(ctx, fcid); err != nil {
		return err
	}
	if err := s.observer.UnTrackCluster(ctx, fcid); err != nil {
		s.log.Warn("untrack after kill failed", zap.String("fcid", fcid.String()), zap.Error(err))
	}
	return s.ws.Cleanup(fcid)
}

// CancelJob cancels a running job without a savepoint.
func (s *Submitter) CancelJob(ctx context.Context, fjid v1.Fjid) error {
	endpoint, err := s.observer.RetrieveRestEndpoint(ctx, fjid.Fcid, false)
	if err != nil {
		return err
	}
	return s.flink.CancelJob(ctx, endpoint.URL(), fjid.JobId)
}

// StopJobWithSavepoint stops a job draining into a savepoint and returns
// the trigger id to watch.
func (s *Submitter) StopJobWithSavepoint(ctx context.Context, fjid v1.Fjid, savepointDir string) (string, error) {
	endpoint, err := s.observer.RetrieveRestEndpoint(ctx, fjid.Fcid, false)
	if err != nil {
		return "", err
	}
	return s.flink.StopJob(ctx, endpoint.URL(), fjid.JobId, savepointDir)
}

// TriggerSavepoint starts an async savepoint and returns its trigger id.
func (s *Submitter) TriggerSavepoint(ctx context.Context, fjid v1.Fjid, dir string, cancelJob bool) (string, error) {
	endpoint, err := s.observer.RetrieveRestEndpoint(ctx, fjid.Fcid, false)
	if err != nil {
		return "", err
	}
	trigger, err := s.flink.TriggerSavepoint(ctx, endpoint.URL(), fjid.JobId, dir, cancelJob)
	if err != nil {
		return "", err
	}
	return trigger.RequestID, nil
}
