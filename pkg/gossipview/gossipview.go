// Package gossipview turns a static member roster plus libp2p connectivity
// into the elections core's GossipSource: a live, polled view of which
// configured cluster members are currently reachable.
package gossipview

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/matsnd/eventstore/pkg/elections"
)

// Member is one statically configured cluster participant: its election
// identity plus the libp2p peer id the transport dials to reach it.
type Member struct {
	Info   elections.MemberInfo
	PeerID peer.ID
}

// Poller implements elections.GossipSource by re-checking libp2p
// connectedness for every configured Member on a fixed interval and
// pushing a fresh elections.ClusterInfo to every subscriber.
type Poller struct {
	host     host.Host
	self     elections.NodeID
	members  []Member
	interval time.Duration

	cancel context.CancelFunc
}

// NewPoller builds a Poller over a fixed roster. Members are never added
// or removed at runtime — this is the project's explicit Non-goal of
// dynamic cluster resizing; only liveness is polled.
func NewPoller(h host.Host, self elections.NodeID, members []Member, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{host: h, self: self, members: members, interval: interval}
}

// Subscribe starts the polling loop on its own goroutine and calls
// onUpdate with every snapshot, including the initial one. Call Stop to
// end the loop.
func (p *Poller) Subscribe(onUpdate func(elections.ClusterInfo)) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	onUpdate(p.snapshot())
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				onUpdate(p.snapshot())
			}
		}
	}()
}

// Stop ends the polling loop started by Subscribe, if any.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) snapshot() elections.ClusterInfo {
	members := make([]elections.MemberInfo, 0, len(p.members))
	for _, m := range p.members {
		info := m.Info
		info.IsAlive = info.InstanceID == p.self || p.connected(m.PeerID)
		members = append(members, info)
	}
	return elections.ClusterInfo{Members: members}
}

func (p *Poller) connected(id peer.ID) bool {
	if p.host == nil || id == "" {
		return false
	}
	return p.host.Network().Connectedness(id) == network.Connected
}
