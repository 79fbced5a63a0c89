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

// Package operator wires and runs an observer fleet node.
package operator

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/streamops/flink-operator/controllers/flink"
	"github.com/streamops/flink-operator/controllers/flinkcluster"
	"github.com/streamops/flink-operator/internal/conf"
	"github.com/streamops/flink-operator/internal/k8s"
	"github.com/streamops/flink-operator/internal/log"
	"github.com/streamops/flink-operator/internal/sharding"
	"github.com/streamops/flink-operator/internal/store"
)

var (
	configFile string
	kubeconfig string
)

// NewCommand builds the operator root command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flink-operator",
		Short: "Deploys, tracks and controls Apache Flink clusters on Kubernetes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Path of the operator configuration file.")
	cmd.PersistentFlags().StringVar(&kubeconfig, "kubeconfig", "", "Path of a kubeconfig file. Defaults to the in-cluster configuration.")
	return cmd
}

func run(parent context.Context) error {
	opConf, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	log.Init(opConf.Log.Level, opConf.Log.Encoding)
	logger := log.Logger()

	node := opConf.Cluster.NodeName
	if node == "" {
		node = uuid.NewString()
	}

	clientset, err := newClientset()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var replicator store.Replicator = store.NoopReplicator{}
	var gossip *store.GossipReplicator
	if len(opConf.Cluster.Peers) > 0 {
		gossip = store.NewGossipReplicator(opConf.Cluster.Peers,
			opConf.Observer.AskTimeout, opConf.Cluster.GossipInterval, logger)
		replicator = gossip
	}

	caches := flinkcluster.NewCaches(node, replicator, logger)
	k8sGateway := k8s.NewGateway(clientset)
	flinkClient := flink.NewDefaultClient(logger)

	members := append([]string{node}, opConf.Cluster.Peers...)
	ring := sharding.NewRing(members)
	var forwarder *sharding.HTTPForwarder
	if len(opConf.Cluster.Peers) > 0 {
		forwarder = sharding.NewHTTPForwarder(opConf.Observer.AskTimeout, logger)
		memberAddrs := make(map[string]string, len(members))
		for _, peer := range opConf.Cluster.Peers {
			memberAddrs[peer] = peer
		}
		memberAddrs[node] = opConf.Cluster.AdvertiseAddr
		forwarder.SetMembers(memberAddrs)
		flinkcluster.RegisterWireDecoders(forwarder)
	}

	var fwd sharding.Forwarder
	if forwarder != nil {
		fwd = forwarder
	}
	observer := flinkcluster.NewObserver(node, opConf.Cluster.HasRole(conf.RoleFlinkOperator),
		ring, fwd, caches, k8sGateway, flinkClient, opConf, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if gossip != nil {
		mux.Handle("/replica/", gossip.Handler())
		go gossip.Run(ctx)
	}
	if forwarder != nil {
		mux.Handle("/shard/", observer.ShardHandler(forwarder))
	}
	server := &http.Server{Addr: opConf.Cluster.BindAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	logger.Info("operator node started",
		zap.String("node", node), zap.String("bindAddr", opConf.Cluster.BindAddr),
		zap.Int("peers", len(opConf.Cluster.Peers)))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func newClientset() (kubernetes.Interface, error) {
	if kubeconfig != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, err
		}
		return kubernetes.NewForConfig(cfg)
	}
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(cfg)
}
