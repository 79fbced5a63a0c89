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
	"encoding/json"
	"errors"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
	"github.com/streamops/flink-operator/controllers/flink"
	"github.com/streamops/flink-operator/internal/conf"
	"github.com/streamops/flink-operator/internal/k8s"
	"github.com/streamops/flink-operator/internal/metrics"
	"github.com/streamops/flink-operator/internal/model"
	"github.com/streamops/flink-operator/internal/store"
	"github.com/streamops/flink-operator/internal/util"
)

// TrackerKind names one observed resource type of a cluster.
type TrackerKind string

const (
	KindJmMetrics    TrackerKind = "jmMetrics"
	KindTmMetrics    TrackerKind = "tmMetrics"
	KindJobs         TrackerKind = "jobs"
	KindJobMetrics   TrackerKind = "jobMetrics"
	KindK8sResources TrackerKind = "k8sResources"
)

// Tracker states and events.
const (
	stateIdle    = "idle"
	stateRunning = "running"
	stateStopped = "stopped"
	eventStart   = "start"
	eventStop    = "stop"
)

// Start begins polling; idempotent while running.
type Start struct{}

func (Start) WireKind() string { return "start" }

// refresh replaces the tracker's view of one resource kind.
type refresh struct {
	kind TrackerKind
	snap any
}

// getSnapshot asks the tracker for its current view of one resource kind.
// The reply channel must be buffered; a nil reply means "nothing observed".
type getSnapshot struct {
	kind  TrackerKind
	reply chan any
}

// k8sResourcesSnap bundles the Kubernetes-side observations of one poll.
type k8sResourcesSnap struct {
	Deployment *model.DeploymentSnap
	Services   []model.ServiceSnap
	Pods       []model.PodSnap
}

// Caches bundles the replicated observation stores, all keyed by Fcid.
type Caches struct {
	JmMetrics   *store.LWWMap[v1.Fcid, model.JmMetrics]
	TmMetrics   *store.LWWMap[v1.Fcid, []model.TmMetrics]
	Jobs        *store.LWWMap[v1.Fcid, []model.JobOverview]
	JobMetrics  *store.LWWMap[v1.Fcid, []model.JobMetrics]
	Deployments *store.LWWMap[v1.Fcid, model.DeploymentSnap]
	Services    *store.LWWMap[v1.Fcid, []model.ServiceSnap]
	Pods        *store.LWWMap[v1.Fcid, []model.PodSnap]
	Endpoints   *store.LWWMap[v1.Fcid, model.RestSvcEndpoint]
}

func NewCaches(node string, repl store.Replicator, logger *zap.Logger) *Caches {
	codec := model.FcidCodec{}
	return &Caches{
		JmMetrics:   store.New[v1.Fcid, model.JmMetrics]("jm-metrics", node, codec, repl, logger),
		TmMetrics:   store.New[v1.Fcid, []model.TmMetrics]("tm-metrics", node, codec, repl, logger),
		Jobs:        store.New[v1.Fcid, []model.JobOverview]("job-overviews", node, codec, repl, logger),
		JobMetrics:  store.New[v1.Fcid, []model.JobMetrics]("job-metrics", node, codec, repl, logger),
		Deployments: store.New[v1.Fcid, model.DeploymentSnap]("k8s-deployments", node, codec, repl, logger),
		Services:    store.New[v1.Fcid, []model.ServiceSnap]("k8s-services", node, codec, repl, logger),
		Pods:        store.New[v1.Fcid, []model.PodSnap]("k8s-pods", node, codec, repl, logger),
		Endpoints:   store.New[v1.Fcid, model.RestSvcEndpoint]("rest-endpoints", node, codec, repl, logger),
	}
}

// PurgeCluster drops every cache entry keyed by the cluster.
func (c *Caches) PurgeCluster(ctx context.Context, fcid v1.Fcid) error {
	same := func(k v1.Fcid) bool { return k == fcid }
	return errors.Join(
		c.JmMetrics.RemoveBySelectKey(ctx, same),
		c.TmMetrics.RemoveBySelectKey(ctx, same),
		c.Jobs.RemoveBySelectKey(ctx, same),
		c.JobMetrics.RemoveBySelectKey(ctx, same),
		c.Deployments.RemoveBySelectKey(ctx, same),
		c.Services.RemoveBySelectKey(ctx, same),
		c.Pods.RemoveBySelectKey(ctx, same),
		c.Endpoints.RemoveBySelectKey(ctx, same),
	)
}

// EndpointResolverFunc resolves the REST endpoint of a cluster, from cache
// or directly from Kubernetes.
type EndpointResolverFunc func(ctx context.Context, fcid v1.Fcid, directly bool) (*model.RestSvcEndpoint, error)

// TrackerDeps is everything a tracker needs from the outside.
type TrackerDeps struct {
	Flink           *flink.Client
	K8s             *k8s.Gateway
	Caches          *Caches
	Conf            *conf.OperatorConf
	ResolveEndpoint EndpointResolverFunc
	// SelfTell enqueues a message into the tracker's own mailbox. Poll
	// tasks never touch tracker state directly.
	SelfTell func(fcid v1.Fcid, msg any) error
	Log      *zap.Logger
}

// ClusterTracker is the per-Fcid entity. Its mailbox serializes all state
// access; polling happens on side tasks that report back via self-messages.
type ClusterTracker struct {
	fcid    v1.Fcid
	deps    *TrackerDeps
	machine *fsm.FSM
	cancel  context.CancelFunc
	local   map[TrackerKind]any
	log     *zap.Logger
}

func NewClusterTracker(fcid v1.Fcid, deps *TrackerDeps) *ClusterTracker {
	t := &ClusterTracker{
		fcid:  fcid,
		deps:  deps,
		local: make(map[TrackerKind]any),
		log:   deps.Log.Named("tracker").With(zap.String("fcid", fcid.String())),
	}
	t.machine = fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{stateIdle}, Dst: stateRunning},
			{Name: eventStop, Src: []string{stateIdle, stateRunning}, Dst: stateStopped},
		},
		fsm.Callbacks{
			"enter_" + stateRunning: func(_ context.Context, _ *fsm.Event) {
				t.spawnPollers()
			},
			"enter_" + stateStopped: func(_ context.Context, _ *fsm.Event) {
				if t.cancel != nil {
					t.cancel()
				}
			},
		},
	)
	return t
}

// Receive implements sharding.Entity.
func (t *ClusterTracker) Receive(msg any) {
	switch m := msg.(type) {
	case Start:
		if t.machine.Is(stateIdle) {
			if err := t.machine.Event(context.Background(), eventStart); err != nil {
				t.log.Error("start transition failed", zap.Error(err))
			}
		}
	case refresh:
		if !t.machine.Is(stateRunning) {
			return
		}
		t.local[m.kind] = m.snap
		t.publish(m)
	case getSnapshot:
		m.reply <- t.local[m.kind]
	default:
		t.log.Warn("dropped unexpected tracker message", zap.Any("msg", msg))
	}
}

// Terminate implements sharding.Entity.
func (t *ClusterTracker) Terminate() {
	if t.machine.Is(stateStopped) {
		return
	}
	if err := t.machine.Event(context.Background(), eventStop); err != nil {
		t.log.Error("stop transition failed", zap.Error(err))
	}
}

func (t *ClusterTracker) spawnPollers() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	obsConf := t.deps.Conf.Observer
	go t.pollLoop(ctx, KindJmMetrics, obsConf.JmMetricsPollInterval, t.pollJmMetrics)
	go t.pollLoop(ctx, KindTmMetrics, obsConf.TmMetricsPollInterval, t.pollTmMetrics)
	go t.pollLoop(ctx, KindJobs, obsConf.JobsPollInterval, t.pollJobs)
	go t.pollLoop(ctx, KindJobMetrics, obsConf.JobsPollInterval, t.pollJobMetrics)
	go t.pollLoop(ctx, KindK8sResources, obsConf.K8sPollInterval, t.pollK8sResources)
}

// pollLoop drives one resource kind until cancellation. Transient failures
// are logged and retried on the next tick, they never kill the tracker.
func (t *ClusterTracker) pollLoop(ctx context.Context, kind TrackerKind, interval time.Duration, poll func(context.Context) (any, error)) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		t.pollOnce(ctx, kind, poll)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *ClusterTracker) pollOnce(ctx context.Context, kind TrackerKind, poll func(context.Context) (any, error)) {
	metrics.PollTotal.WithLabelValues(string(kind)).Inc()
	snap, err := poll(ctx)
	if err != nil {
		metrics.PollErrors.WithLabelValues(string(kind)).Inc()
		if ctx.Err() == nil {
			t.log.Warn("poll round failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		return
	}
	if ctx.Err() != nil {
		// cancelled between the call and the self-send, drop the snapshot
		return
	}
	if err := t.deps.SelfTell(t.fcid, refresh{kind: kind, snap: snap}); err != nil {
		t.log.Error("self-send failed", zap.String("kind", string(kind)),
			zap.Error(&ActorInteropErr{Cause: err}))
	}
}

func (t *ClusterTracker) pollJmMetrics(ctx context.Context) (any, error) {
	endpoint, err := t.deps.ResolveEndpoint(ctx, t.fcid, false)
	if err != nil {
		return nil, err
	}
	raw, err := t.deps.Flink.GetJobManagerMetrics(ctx, endpoint.URL(), flink.DefaultJmMetricKeys)
	if err != nil {
		return nil, err
	}
	return model.JmMetrics{Fcid: t.fcid, Raw: raw, Ts: util.NowMillis()}, nil
}

func (t *ClusterTracker) pollTmMetrics(ctx context.Context) (any, error) {
	endpoint, err := t.deps.ResolveEndpoint(ctx, t.fcid, false)
	if err != nil {
		return nil, err
	}
	tmIds, err := t.deps.Flink.ListTaskManagers(ctx, endpoint.URL())
	if err != nil {
		return nil, err
	}
	now := util.NowMillis()
	snaps := make([]model.TmMetrics, 0, len(tmIds))
	for _, tmId := range tmIds {
		raw, err := t.deps.Flink.GetTaskManagerMetrics(ctx, endpoint.URL(), tmId, flink.DefaultTmMetricKeys)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, model.TmMetrics{Fcid: t.fcid, TmId: tmId, Raw: raw, Ts: now})
	}
	return snaps, nil
}

func (t *ClusterTracker) pollJobs(ctx context.Context) (any, error) {
	endpoint, err := t.deps.ResolveEndpoint(ctx, t.fcid, false)
	if err != nil {
		return nil, err
	}
	overview, err := t.deps.Flink.GetJobsOverview(ctx, endpoint.URL())
	if err != nil {
		return nil, err
	}
	now := util.NowMillis()
	jobs := make([]model.JobOverview, 0, len(overview.Jobs))
	for _, j := range overview.Jobs {
		jobs = append(jobs, model.JobOverview{
			Fcid:      t.fcid,
			JobId:     j.Id,
			JobName:   j.Name,
			State:     j.State,
			StartTime: j.StartTime,
			EndTime:   j.EndTime,
			Duration:  j.Duration,
			Ts:        now,
		})
	}
	return jobs, nil
}

func (t *ClusterTracker) pollJobMetrics(ctx context.Context) (any, error) {
	endpoint, err := t.deps.ResolveEndpoint(ctx, t.fcid, false)
	if err != nil {
		return nil, err
	}
	jobIds, err := t.deps.Flink.ListJobIds(ctx, endpoint.URL())
	if err != nil {
		return nil, err
	}
	now := util.NowMillis()
	snaps := make([]model.JobMetrics, 0, len(jobIds))
	for _, jobId := range jobIds {
		raw, err := t.deps.Flink.GetJobMetrics(ctx, endpoint.URL(), jobId, flink.DefaultJobMetricKeys)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, model.JobMetrics{Fcid: t.fcid, JobId: jobId, Raw: raw, Ts: now})
	}
	return snaps, nil
}

func (t *ClusterTracker) pollK8sResources(ctx context.Context) (any, error) {
	dep, err := t.deps.K8s.GetDeploymentSnap(ctx, t.fcid)
	if err != nil {
		return nil, err
	}
	svcs, err := t.deps.K8s.ListServiceSnaps(ctx, t.fcid)
	if err != nil {
		return nil, err
	}
	pods, err := t.deps.K8s.ListPodSnaps(ctx, t.fcid)
	if err != nil {
		return nil, err
	}
	return k8sResourcesSnap{Deployment: dep, Services: svcs, Pods: pods}, nil
}

// publish pushes a fresh snapshot into the replicated caches.
func (t *ClusterTracker) publish(m refresh) {
	ctx, cancel := context.WithTimeout(context.Background(), t.deps.Conf.Observer.AskTimeout)
	defer cancel()
	var err error
	switch snap := m.snap.(type) {
	case model.JmMetrics:
		err = t.deps.Caches.JmMetrics.Put(ctx, t.fcid, snap)
	case []model.TmMetrics:
		err = t.deps.Caches.TmMetrics.Put(ctx, t.fcid, snap)
	case []model.JobOverview:
		err = t.deps.Caches.Jobs.Put(ctx, t.fcid, snap)
	case []model.JobMetrics:
		err = t.deps.Caches.JobMetrics.Put(ctx, t.fcid, snap)
	case k8sResourcesSnap:
		if snap.Deployment != nil {
			err = t.deps.Caches.Deployments.Put(ctx, t.fcid, *snap.Deployment)
		}
		err = errors.Join(err,
			t.deps.Caches.Services.Put(ctx, t.fcid, snap.Services),
			t.deps.Caches.Pods.Put(ctx, t.fcid, snap.Pods))
	default:
		t.log.Warn("dropped snapshot of unexpected type", zap.String("kind", string(m.kind)))
		return
	}
	if err != nil {
		t.log.Warn("cache publish failed", zap.String("kind", string(m.kind)), zap.Error(err))
	}
}

// DecodeStart rebuilds a forwarded Start message.
func DecodeStart(json.RawMessage) (any, error) { return Start{}, nil }
