package elections

import (
	"context"
	"sync"
	"time"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0).UTC()}
}

func (c *fakeClock) UTCNow() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// fakeTimer records scheduled messages without ever firing them; tests
// that care about timeouts deliver the ElectionsTimedOut/SendViewChangeProof
// envelopes by hand.
type fakeTimer struct {
	mu        sync.Mutex
	scheduled []timerEntry
}

type timerEntry struct {
	Delay time.Duration
	Msg   Message
}

func (t *fakeTimer) Schedule(delay time.Duration, msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scheduled = append(t.scheduled, timerEntry{Delay: delay, Msg: msg})
}

func (t *fakeTimer) last() (timerEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.scheduled) == 0 {
		return timerEntry{}, false
	}
	return t.scheduled[len(t.scheduled)-1], true
}

// fakeNetwork is a shared in-memory transport connecting every node in a
// test cluster: Broadcast/Send fan the message out to the other
// coordinators' Handle methods, synchronously, on the caller's goroutine.
type fakeNetwork struct {
	mu    sync.Mutex
	nodes map[NodeID]*Coordinator
	drop  map[NodeID]bool
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{nodes: map[NodeID]*Coordinator{}, drop: map[NodeID]bool{}}
}

func (n *fakeNetwork) register(id NodeID, c *Coordinator) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodes[id] = c
}

func (n *fakeNetwork) partition(id NodeID, dropped bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drop[id] = dropped
}

func (n *fakeNetwork) isDropped(id NodeID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.drop[id]
}

// fakeTransport is the per-node TransportPort bound to a shared fakeNetwork.
type fakeTransport struct {
	self NodeID
	net  *fakeNetwork
}

func (tr *fakeTransport) Broadcast(_ context.Context, msg Message, _ time.Time) error {
	if tr.net.isDropped(tr.self) {
		return nil
	}
	tr.net.mu.Lock()
	targets := make([]*Coordinator, 0, len(tr.net.nodes))
	for id, c := range tr.net.nodes {
		if id == tr.self {
			continue
		}
		targets = append(targets, c)
	}
	tr.net.mu.Unlock()
	for _, c := range targets {
		if !tr.net.isDropped(c.self.InstanceID) {
			c.Handle(msg)
		}
	}
	return nil
}

func (tr *fakeTransport) Send(_ context.Context, to EndPoint, msg Message, _ time.Time) error {
	if tr.net.isDropped(tr.self) {
		return nil
	}
	tr.net.mu.Lock()
	var target *Coordinator
	for _, c := range tr.net.nodes {
		if c.self.ExternalEndpoint == to {
			target = c
			break
		}
	}
	tr.net.mu.Unlock()
	if target == nil || tr.net.isDropped(target.self.InstanceID) {
		return nil
	}
	target.Handle(msg)
	return nil
}

// fakePublisher records every published Message in order.
type fakePublisher struct {
	mu  sync.Mutex
	out []Message
}

func (p *fakePublisher) Publish(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, msg)
}

func (p *fakePublisher) all() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.out))
	copy(out, p.out)
	return out
}

func (p *fakePublisher) doneEvents() []ElectionsDone {
	var out []ElectionsDone
	for _, m := range p.all() {
		if d, ok := m.(ElectionsDone); ok {
			out = append(out, d)
		}
	}
	return out
}

// fakeEpochSource and fakeCheckpointSource are mutable log-completeness
// fingerprints, set directly by tests.
type fakeEpochSource struct {
	mu    sync.Mutex
	epoch Epoch
	ok    bool
}

func (e *fakeEpochSource) set(ep Epoch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epoch, e.ok = ep, true
}

func (e *fakeEpochSource) LastEpoch() (Epoch, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch, e.ok
}

type fakeCheckpointSource struct {
	mu                                        sync.Mutex
	writerCheckpoint, chaserCheckpoint, commit int64
}

func (s *fakeCheckpointSource) set(writer, chaser, commit int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writerCheckpoint, s.chaserCheckpoint, s.commit = writer, chaser, commit
}

func (s *fakeCheckpointSource) WriterCheckpoint() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writerCheckpoint
}

func (s *fakeCheckpointSource) ChaserCheckpoint() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chaserCheckpoint
}

func (s *fakeCheckpointSource) LastCommitPosition() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit
}

// testNode bundles one coordinator with its fakes for easy assertions.
type testNode struct {
	Coordinator *Coordinator
	Info        NodeInfo
	Publisher   *fakePublisher
	Timer       *fakeTimer
	Epochs      *fakeEpochSource
	Checkpoints *fakeCheckpointSource
}

func newTestNode(t interface{ Helper() }, net *fakeNetwork, clusterSize int, port uint16) *testNode {
	t.Helper()
	info := NodeInfo{
		InstanceID:       NewNodeID(),
		ExternalEndpoint: EndPoint{Host: "127.0.0.1", Port: port},
	}
	pub := &fakePublisher{}
	timer := &fakeTimer{}
	epochs := &fakeEpochSource{}
	checkpoints := &fakeCheckpointSource{}

	c, err := NewCoordinator(CoordinatorConfig{
		Self:        info,
		ClusterSize: clusterSize,
		Publisher:   pub,
		Timer:       timer,
		Transport:   &fakeTransport{self: info.InstanceID, net: net},
		Clock:       newFakeClock(),
		Epochs:      epochs,
		Checkpoints: checkpoints,
	})
	if err != nil {
		panic(err)
	}
	net.register(info.InstanceID, c)
	return &testNode{Coordinator: c, Info: info, Publisher: pub, Timer: timer, Epochs: epochs, Checkpoints: checkpoints}
}

// startElectionsSimultaneously models "all nodes receive StartElections at
// the same instant" (the seed scenarios' framing) despite the fakeNetwork
// otherwise delivering broadcasts synchronously and immediately: each node
// is momentarily partitioned so its own StartElections transition (and
// self-delivered ViewChange) lands before any peer can observe it while
// still Idle — §4.3 drops every protocol message but StartElections while
// Idle — then every node's view-change is re-broadcast once all of them
// are active.
func startElectionsSimultaneously(net *fakeNetwork, nodes []*testNode) {
	for _, n := range nodes {
		net.partition(n.Info.InstanceID, true)
	}
	for _, n := range nodes {
		n.Coordinator.Handle(StartElections{})
	}
	for _, n := range nodes {
		net.partition(n.Info.InstanceID, false)
	}
	for _, n := range nodes {
		vc := ViewChange{
			ServerID:       n.Info.InstanceID,
			ServerEndpoint: n.Info.ExternalEndpoint,
			AttemptedView:  n.Coordinator.lastAttemptedView,
		}
		n.Coordinator.broadcast(vc)
	}
}

// seedMembership delivers a GossipUpdated carrying every node in nodes as a
// live, non-manager Follower, the local node included: amIProposer looks the
// local node up in its own servers snapshot, so a node missing from it never
// proposes.
func seedMembership(nodes []*testNode) {
	members := make([]MemberInfo, 0, len(nodes))
	for _, n := range nodes {
		members = append(members, MemberInfo{
			InstanceID:        n.Info.InstanceID,
			ExternalEndpoint:  n.Info.ExternalEndpoint,
			State:             VNodeFollower,
			IsAlive:           true,
			IsReadOnlyReplica: n.Info.IsReadOnlyReplica,
		})
	}
	for _, n := range nodes {
		n.Coordinator.Handle(GossipUpdated{ClusterInfo: ClusterInfo{Members: members}})
	}
}
