// Command electiond runs one node of the leader election cluster: it
// wires the elections core to libp2p transport, a pebble checkpoint
// store, and a small admin HTTP surface, then drives the coordinator
// from a single serial dispatcher goroutine.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/matsnd/eventstore/pkg/adminapi"
	"github.com/matsnd/eventstore/pkg/checkpoint"
	"github.com/matsnd/eventstore/pkg/clock"
	"github.com/matsnd/eventstore/pkg/config"
	"github.com/matsnd/eventstore/pkg/elections"
	"github.com/matsnd/eventstore/pkg/gossipview"
	"github.com/matsnd/eventstore/pkg/logging"
	"github.com/matsnd/eventstore/pkg/transport"
)

func main() {
	cfg, err := config.LoadFromEnv("")
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewWithFile(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("electiond_starting", "cluster_size", cfg.ClusterSize, "data_dir", cfg.DataDir)

	store, err := checkpoint.Open(cfg.DataDir)
	if err != nil {
		sugar.Fatalw("checkpoint_open_failed", "err", err)
	}
	defer store.Close()

	self := elections.NodeInfo{
		InstanceID:        elections.NewNodeID(),
		ExternalEndpoint:  elections.EndPoint{Host: cfg.ExternalHost, Port: cfg.ExternalPort},
		IsReadOnlyReplica: cfg.IsReadOnlyReplica,
	}

	// messages funnels every inbound event (timers, transport, gossip,
	// admin actions) through one channel so Handle is always called
	// serially, as the coordinator requires.
	messages := make(chan elections.Message, 256)
	dispatch := func(m elections.Message) { messages <- m }

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, err := transport.New(ctx, transport.Config{
		ListenAddr: cfg.ListenAddr,
		Bootstrap:  cfg.Bootstrap,
		Topic:      cfg.GossipTopic,
		Logger:     sugar,
	}, dispatch)
	if err != nil {
		sugar.Fatalw("transport_init_failed", "err", err)
	}

	admin := adminapi.NewServer(nil, dispatch, sugar)
	go admin.Feed().Run()

	var coordinator *elections.Coordinator
	coordinator, err = elections.NewCoordinator(elections.CoordinatorConfig{
		Self:        self,
		ClusterSize: cfg.ClusterSize,
		NodePriority: cfg.NodePriority,
		Publisher:   fanoutPublisher{loggingPublisher{sugar}, admin.Feed()},
		Timer:       clock.NewTimerService(dispatch),
		Transport:   tr,
		Clock:       clock.Real{},
		Epochs:      store,
		Checkpoints: store,
		Logger:      sugar,
	})
	if err != nil {
		sugar.Fatalw("coordinator_init_failed", "err", err)
	}
	admin.SetStatusSource(coordinator)

	poller := gossipview.NewPoller(tr.Host(), self.InstanceID, staticMembers(self, cfg), 2_000_000_000)
	poller.Subscribe(func(ci elections.ClusterInfo) {
		dispatch(elections.GossipUpdated{ClusterInfo: ci})
	})
	defer poller.Stop()

	go func() {
		sugar.Infow("admin_api_starting", "addr", cfg.AdminListenAddr)
		if err := http.ListenAndServe(cfg.AdminListenAddr, admin.Handler()); err != nil {
			sugar.Errorw("admin_api_failed", "err", err)
		}
	}()

	dispatch(elections.StartElections{})

	for {
		select {
		case <-ctx.Done():
			sugar.Info("electiond_shutting_down")
			coordinator.Handle(elections.BecomeShuttingDown{})
			return
		case m := <-messages:
			coordinator.Handle(m)
		}
	}
}

// staticMembers builds the fixed roster gossipview polls for liveness. The
// roster holds only the local node; no other members are added to it, and
// no peer is registered with the transport here.
func staticMembers(self elections.NodeInfo, cfg config.Config) []gossipview.Member {
	return []gossipview.Member{
		{Info: elections.MemberInfo{
			InstanceID:        self.InstanceID,
			ExternalEndpoint:  self.ExternalEndpoint,
			IsReadOnlyReplica: self.IsReadOnlyReplica,
			IsAlive:           true,
		}, PeerID: peer.ID("")},
	}
}

type loggingPublisher struct {
	log interface {
		Infow(string, ...any)
	}
}

func (p loggingPublisher) Publish(msg elections.Message) {
	p.log.Infow("elections_event", "type", eventName(msg), "msg", msg)
}

// fanoutPublisher hands every published message to each of its
// collaborators in order, so the coordinator's single Publisher port can
// drive both the log line and the admin API's ElectionsDone feed.
type fanoutPublisher []elections.Publisher

func (p fanoutPublisher) Publish(msg elections.Message) {
	for _, pub := range p {
		pub.Publish(msg)
	}
}

func eventName(msg elections.Message) string {
	switch msg.(type) {
	case elections.ElectionsDone:
		return "ElectionsDone"
	case elections.InitiateLeaderResignation:
		return "InitiateLeaderResignation"
	case elections.UpdateNodePriority:
		return "UpdateNodePriority"
	default:
		return "Unknown"
	}
}
