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

// Package k8s wraps the Kubernetes API verbs the operator consumes.
package k8s

import (
	"context"
	"strings"

	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	v1 "github.com/streamops/flink-operator/apis/flinkcluster/v1"
	"github.com/streamops/flink-operator/internal/model"
	"github.com/streamops/flink-operator/internal/util"
)

const (
	restServiceSuffix  = "-rest"
	componentLabel     = "component"
	componentJobMgr    = "jobmanager"
	appLabel           = "app"
	flinkNativeLabel   = "type"
	flinkNativeK8sType = "flink-native-kubernetes"
	restPortName       = "rest"
)

// Gateway issues the operator's Kubernetes calls.
type Gateway struct {
	clientset kubernetes.Interface
}

func NewGateway(clientset kubernetes.Interface) *Gateway {
	return &Gateway{clientset: clientset}
}

// DiscoverRestEndpoint finds the Flink REST service of the cluster: a
// Service in the namespace whose name ends with "-rest" and whose component
// label marks the jobmanager.
func (g *Gateway) DiscoverRestEndpoint(ctx context.Context, fcid v1.Fcid) (*model.RestSvcEndpoint, error) {
	svcs, err := g.clientset.CoreV1().Services(fcid.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, &RequestK8sApiErr{Verb: "core/v1 services.list", Cause: err}
	}
	for i := range svcs.Items {
		svc := &svcs.Items[i]
		if !strings.HasSuffix(svc.Name, restServiceSuffix) {
			continue
		}
		if svc.Labels[componentLabel] != componentJobMgr {
			continue
		}
		if !strings.HasPrefix(svc.Name, fcid.ClusterId) {
			continue
		}
		endpoint := &model.RestSvcEndpoint{
			ClusterIP: svc.Spec.ClusterIP,
			Dns:       svc.Name + "." + svc.Namespace,
			Ts:        util.NowMillis(),
		}
		for _, port := range svc.Spec.Ports {
			if port.Name == restPortName {
				endpoint.ClusterPort = port.Port
			}
		}
		return endpoint, nil
	}
	return nil, &EndpointNotFound{Fcid: fcid}
}

// DeleteDeployment removes the cluster's jobmanager Deployment, which tears
// the whole Flink cluster down.
func (g *Gateway) DeleteDeployment(ctx context.Context, fcid v1.Fcid) error {
	err := g.clientset.AppsV1().Deployments(fcid.Namespace).Delete(ctx, fcid.ClusterId, metav1.DeleteOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return &ClusterNotFound{Fcid: fcid}
		}
		return &RequestK8sApiErr{Verb: "apps/v1 deployments.delete", Cause: err}
	}
	return nil
}

// GetDeploymentSnap reads the jobmanager Deployment, nil when absent.
func (g *Gateway) GetDeploymentSnap(ctx context.Context, fcid v1.Fcid) (*model.DeploymentSnap, error) {
	dep, err := g.clientset.AppsV1().Deployments(fcid.Namespace).Get(ctx, fcid.ClusterId, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, &RequestK8sApiErr{Verb: "apps/v1 deployments.get", Cause: err}
	}
	replicas := int32(0)
	if dep.Spec.Replicas != nil {
		replicas = *dep.Spec.Replicas
	}
	return &model.DeploymentSnap{
		Fcid:          fcid,
		Name:          dep.Name,
		Replicas:      replicas,
		ReadyReplicas: dep.Status.ReadyReplicas,
		Ts:            util.NowMillis(),
	}, nil
}

func clusterSelector(fcid v1.Fcid) string {
	return appLabel + "=" + fcid.ClusterId + "," + flinkNativeLabel + "=" + flinkNativeK8sType
}

// ListServiceSnaps reads the cluster's Services.
func (g *Gateway) ListServiceSnaps(ctx context.Context, fcid v1.Fcid) ([]model.ServiceSnap, error) {
	svcs, err := g.clientset.CoreV1().Services(fcid.Namespace).List(ctx, metav1.ListOptions{LabelSelector: clusterSelector(fcid)})
	if err != nil {
		return nil, &RequestK8sApiErr{Verb: "core/v1 services.list", Cause: err}
	}
	now := util.NowMillis()
	out := make([]model.ServiceSnap, 0, len(svcs.Items))
	for _, svc := range svcs.Items {
		ports := make(map[string]int32, len(svc.Spec.Ports))
		for _, p := range svc.Spec.Ports {
			ports[p.Name] = p.Port
		}
		out = append(out, model.ServiceSnap{
			Fcid:      fcid,
			Name:      svc.Name,
			Type:      string(svc.Spec.Type),
			ClusterIP: svc.Spec.ClusterIP,
			Ports:     ports,
			Ts:        now,
		})
	}
	return out, nil
}

// ListPodSnaps reads the cluster's Pods.
func (g *Gateway) ListPodSnaps(ctx context.Context, fcid v1.Fcid) ([]model.PodSnap, error) {
	pods, err := g.clientset.CoreV1().Pods(fcid.Namespace).List(ctx, metav1.ListOptions{LabelSelector: clusterSelector(fcid)})
	if err != nil {
		return nil, &RequestK8sApiErr{Verb: "core/v1 pods.list", Cause: err}
	}
	now := util.NowMillis()
	out := make([]model.PodSnap, 0, len(pods.Items))
	for _, pod := range pods.Items {
		out = append(out, model.PodSnap{
			Fcid:  fcid,
			Name:  pod.Name,
			Phase: string(pod.Status.Phase),
			PodIP: pod.Status.PodIP,
			Ts:    now,
		})
	}
	return out, nil
}
