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
	"net/http"
	"time"

	"go.uber.org/zap"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
	"github.com/streamops/flink-operator/controllers/flink"
	"github.com/streamops/flink-operator/internal/conf"
	"github.com/streamops/flink-operator/internal/k8s"
	"github.com/streamops/flink-operator/internal/metrics"
	"github.com/streamops/flink-operator/internal/model"
	"github.com/streamops/flink-operator/internal/sharding"
)

// Observer is the public query surface over the tracker fleet and the
// replicated caches.
type Observer struct {
	proxy  *sharding.Proxy
	caches *Caches
	k8s    *k8s.Gateway
	flink  *flink.Client
	conf   *conf.OperatorConf
	log    *zap.Logger
}

// NewObserver wires the facade and the tracker factory behind the sharding
// proxy.
func NewObserver(
	node string,
	hostingRole bool,
	ring *sharding.Ring,
	forwarder sharding.Forwarder,
	caches *Caches,
	k8sGateway *k8s.Gateway,
	flinkClient *flink.Client,
	opConf *conf.OperatorConf,
	logger *zap.Logger,
) *Observer {
	o := &Observer{
		caches: caches,
		k8s:    k8sGateway,
		flink:  flinkClient,
		conf:   opConf,
		log:    logger.Named("observer"),
	}
	deps := &TrackerDeps{
		Flink:           flinkClient,
		K8s:             k8sGateway,
		Caches:          caches,
		Conf:            opConf,
		ResolveEndpoint: o.RetrieveRestEndpoint,
		SelfTell:        o.tellTracker,
		Log:             logger,
	}
	factory := func(key string) (sharding.Entity, error) {
		fcid, err := model.UnmarshalFcid(key)
		if err != nil {
			return nil, err
		}
		return NewClusterTracker(fcid, deps), nil
	}
	o.proxy = sharding.NewProxy(node, hostingRole, ring, factory, forwarder, logger)
	return o
}

// RegisterWireDecoders installs the decoders forwarded tracker messages
// need on this node.
func RegisterWireDecoders(f *sharding.HTTPForwarder) {
	f.RegisterDecoder(Start{}.WireKind(), DecodeStart)
}

// ShardHandler serves messages forwarded from peer nodes to this node's
// tracker entities.
func (o *Observer) ShardHandler(f *sharding.HTTPForwarder) http.Handler {
	return f.Handler(o.proxy)
}

func (o *Observer) tellTracker(fcid v1.Fcid, msg any) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.conf.Observer.AskTimeout)
	defer cancel()
	return o.proxy.Tell(ctx, model.MarshalFcid(fcid), msg)
}

// TrackCluster starts tracking a cluster. Idempotent: tracking a tracked
// cluster is a no-op.
func (o *Observer) TrackCluster(ctx context.Context, fcid v1.Fcid) error {
	if err := o.proxy.Tell(ctx, model.MarshalFcid(fcid), Start{}); err != nil {
		return &ActorInteropErr{Cause: err}
	}
	metrics.TrackedClusters.Set(float64(len(o.proxy.LiveKeys())))
	return nil
}

// UnTrackCluster stops the trackers and purges every cache entry keyed by
// the cluster. Idempotent.
func (o *Observer) UnTrackCluster(ctx context.Context, fcid v1.Fcid) error {
	if err := o.proxy.Stop(ctx, model.MarshalFcid(fcid)); err != nil {
		return &ActorInteropErr{Cause: err}
	}
	if err := o.caches.PurgeCluster(ctx, fcid); err != nil {
		return err
	}
	metrics.TrackedClusters.Set(float64(len(o.proxy.LiveKeys())))
	return nil
}

// RetrieveRestEndpoint resolves the cluster's REST endpoint. The cached
// entry answers unless directly is set or the cache misses, in which case
// Kubernetes is asked and the cache refreshed.
func (o *Observer) RetrieveRestEndpoint(ctx context.Context, fcid v1.Fcid, directly bool) (*model.RestSvcEndpoint, error) {
	if !directly {
		cached, ok, err := o.caches.Endpoints.Get(ctx, fcid)
		if err != nil {
			return nil, err
		}
		if ok {
			return &cached, nil
		}
	}
	endpoint, err := o.k8s.DiscoverRestEndpoint(ctx, fcid)
	if err != nil {
		return nil, err
	}
	if err := o.caches.Endpoints.Upsert(ctx, fcid, *endpoint,
		func(model.RestSvcEndpoint) model.RestSvcEndpoint { return *endpoint }); err != nil {
		o.log.Warn("endpoint cache refresh failed", zap.String("fcid", fcid.String()), zap.Error(err))
	}
	return endpoint, nil
}

// ListJobIds lists the cluster's job ids from the jobs snapshot, falling
// back to a live REST call on a cache miss.
func (o *Observer) ListJobIds(ctx context.Context, fcid v1.Fcid) ([]string, error) {
	jobs, ok, err := o.caches.Jobs.Get(ctx, fcid)
	if err != nil {
		return nil, err
	}
	if ok {
		ids := make([]string, 0, len(jobs))
		for _, j := range jobs {
			ids = append(ids, j.JobId)
		}
		return ids, nil
	}
	endpoint, err := o.RetrieveRestEndpoint(ctx, fcid, false)
	if err != nil {
		return nil, err
	}
	return o.flink.ListJobIds(ctx, endpoint.URL())
}

// GetJmMetrics returns the tracker's current jobmanager metrics view, nil
// when nothing has been observed yet.
func (o *Observer) GetJmMetrics(ctx context.Context, fcid v1.Fcid) (*model.JmMetrics, error) {
	snap, ok, err := o.caches.JmMetrics.Get(ctx, fcid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// AskSnapshot asks the live tracker entity for its current view of one
// resource kind. A nil result means the tracker has observed nothing since
// its last Start.
func (o *Observer) AskSnapshot(ctx context.Context, fcid v1.Fcid, kind TrackerKind) (any, error) {
	reply := make(chan any, 1)
	if err := o.proxy.Tell(ctx, model.MarshalFcid(fcid), getSnapshot{kind: kind, reply: reply}); err != nil {
		return nil, &ActorInteropErr{Cause: err}
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-time.After(o.conf.Observer.AskTimeout):
		return nil, &ActorInteropErr{Cause: context.DeadlineExceeded}
	case <-ctx.Done():
		return nil, &ActorInteropErr{Cause: ctx.Err()}
	}
}

// WatchSavepointTrigger polls the savepoint trigger until it leaves
// IN_PROGRESS or the timeout elapses.
func (o *Observer) WatchSavepointTrigger(ctx context.Context, fjid v1.Fjid, triggerId string, timeout time.Duration) (*flink.SavepointStatus, error) {
	endpoint, err := o.RetrieveRestEndpoint(ctx, fjid.Fcid, false)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	interval := o.conf.Observer.SptTriggerPollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	for {
		status, err := o.flink.GetSavepointStatus(ctx, endpoint.URL(), fjid.JobId, triggerId)
		if err == nil && !status.InProgress() {
			return status, nil
		}
		if err != nil {
			o.log.Warn("savepoint trigger poll failed",
				zap.String("fjid", fjid.Fcid.String()+"/"+fjid.JobId), zap.Error(err))
		}
		if time.Now().After(deadline) {
			return nil, &TimeoutErr{Op: "watch savepoint trigger " + triggerId}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
