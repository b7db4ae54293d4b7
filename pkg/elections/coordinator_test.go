package elections

import "testing"

func TestNewCoordinatorRejectsInvalidConfig(t *testing.T) {
	valid := CoordinatorConfig{
		Self:        NodeInfo{InstanceID: NewNodeID()},
		ClusterSize: 3,
		Publisher:   &fakePublisher{},
		Timer:       &fakeTimer{},
		Transport:   &fakeTransport{net: newFakeNetwork()},
		Clock:       newFakeClock(),
		Epochs:      &fakeEpochSource{},
		Checkpoints: &fakeCheckpointSource{},
	}

	if _, err := NewCoordinator(valid); err != nil {
		t.Fatalf("expected valid config to succeed, got %v", err)
	}

	zeroCluster := valid
	zeroCluster.ClusterSize = 0
	if _, err := NewCoordinator(zeroCluster); err == nil {
		t.Fatalf("expected cluster_size<=0 to fail construction")
	}

	zeroSelf := valid
	zeroSelf.Self = NodeInfo{}
	if _, err := NewCoordinator(zeroSelf); err == nil {
		t.Fatalf("expected a zero InstanceID to fail construction")
	}

	missingPort := valid
	missingPort.Timer = nil
	if _, err := NewCoordinator(missingPort); err == nil {
		t.Fatalf("expected a nil collaborator port to fail construction")
	}
}

func TestSingleNodeClusterElectsItself(t *testing.T) {
	net := newFakeNetwork()
	self := newTestNode(t, net, 1, 1)
	seedMembership([]*testNode{self})

	self.Coordinator.Handle(StartElections{})

	done := self.Publisher.doneEvents()
	if len(done) != 1 {
		t.Fatalf("expected exactly one ElectionsDone, got %d: %+v", len(done), done)
	}
	if done[0].Leader.InstanceID != self.Info.InstanceID {
		t.Fatalf("expected self to be elected leader, got %v", done[0].Leader.InstanceID)
	}
	if got := self.Coordinator.Status().State; got != StateLeader {
		t.Fatalf("expected StateLeader, got %v", got)
	}
}

// TestProposerCrashBeforePrepareAdvancesView mirrors seed scenario 2: the
// view-0 proposer (c, highest endpoint) is unreachable, so a and b's
// progress timeouts must carry them to view 1 and complete the election
// there between themselves.
func TestProposerCrashBeforePrepareAdvancesView(t *testing.T) {
	net := newFakeNetwork()
	a := newTestNode(t, net, 3, 1)
	b := newTestNode(t, net, 3, 2)
	c := newTestNode(t, net, 3, 3)
	nodes := []*testNode{a, b, c}
	seedMembership(nodes)

	net.partition(c.Info.InstanceID, true)
	startElectionsSimultaneously(net, []*testNode{a, b})

	if len(a.Publisher.doneEvents()) > 0 || len(b.Publisher.doneEvents()) > 0 {
		t.Fatalf("view 0's unreachable proposer must not produce a leader yet")
	}

	// the 1s progress timeout fires on both live nodes; view 1's proposer
	// is b, which now has both view-1 votes after a rebroadcasts.
	a.Coordinator.Handle(ElectionsTimedOut{View: 0})
	b.Coordinator.Handle(ElectionsTimedOut{View: 0})

	found := false
	for _, n := range []*testNode{a, b} {
		if d := n.Publisher.doneEvents(); len(d) > 0 {
			found = true
			if d[0].View != 1 {
				t.Fatalf("expected the completed election to land on view 1, got %d", d[0].View)
			}
			if d[0].Leader.InstanceID == c.Info.InstanceID {
				t.Fatalf("the partitioned node must never be elected")
			}
		}
	}
	if !found {
		t.Fatalf("expected the live majority to complete the election at view 1")
	}
	if len(c.Publisher.doneEvents()) != 0 {
		t.Fatalf("expected the partitioned node to observe no ElectionsDone")
	}
}

func TestReadOnlyReplicaIsNeverElectedLeader(t *testing.T) {
	net := newFakeNetwork()
	a := newTestNode(t, net, 3, 1) // read-only
	b := newTestNode(t, net, 3, 2)
	c := newTestNode(t, net, 3, 3)
	a.Info.IsReadOnlyReplica = true
	a.Coordinator.self.IsReadOnlyReplica = true
	nodes := []*testNode{a, b, c}
	seedMembership(nodes)

	startElectionsSimultaneously(net, nodes)

	done := append(append([]ElectionsDone{}, a.Publisher.doneEvents()...), b.Publisher.doneEvents()...)
	done = append(done, c.Publisher.doneEvents()...)
	if len(done) == 0 {
		t.Fatalf("expected the two non-read-only nodes to complete the election")
	}
	for _, d := range done {
		if d.Leader.InstanceID == a.Info.InstanceID {
			t.Fatalf("a read-only replica must never be elected leader")
		}
	}
}

func TestAcceptIsDeduplicatedPerViewButNotAcrossViews(t *testing.T) {
	net := newFakeNetwork()
	self := newTestNode(t, net, 1, 1)
	seedMembership([]*testNode{self})

	self.Coordinator.Handle(StartElections{})
	if len(self.Publisher.doneEvents()) != 1 {
		t.Fatalf("expected one ElectionsDone after first election")
	}

	// A duplicate Accept for the already-completed view must not emit a
	// second ElectionsDone.
	leaderID := self.Publisher.doneEvents()[0].Leader.InstanceID
	self.Coordinator.Handle(Accept{
		ServerID: self.Info.InstanceID, ServerEndpoint: self.Info.ExternalEndpoint,
		LeaderID: leaderID, LeaderEndpoint: self.Info.ExternalEndpoint,
		View: self.Coordinator.lastInstalledView,
	})
	if len(self.Publisher.doneEvents()) != 1 {
		t.Fatalf("expected a duplicate Accept at the same view to be a no-op")
	}

	// A fresh election at a later view may legitimately re-elect the same
	// node and must publish a second, distinct ElectionsDone.
	self.Coordinator.Handle(StartElections{})
	if len(self.Publisher.doneEvents()) != 2 {
		t.Fatalf("expected re-election at a new view to publish a second ElectionsDone, got %d", len(self.Publisher.doneEvents()))
	}
}

func TestResignNodeRecordsResigningLeaderOnPeers(t *testing.T) {
	net := newFakeNetwork()
	a := newTestNode(t, net, 3, 1)
	b := newTestNode(t, net, 3, 2)
	c := newTestNode(t, net, 3, 3)
	nodes := []*testNode{a, b, c}
	seedMembership(nodes)

	startElectionsSimultaneously(net, nodes)

	var leaderID NodeID
	var leaderNode *testNode
	for _, n := range nodes {
		if d := n.Publisher.doneEvents(); len(d) > 0 {
			leaderID = d[0].Leader.InstanceID
		}
	}
	for _, n := range nodes {
		if n.Info.InstanceID == leaderID {
			leaderNode = n
		}
	}
	if leaderNode == nil {
		t.Fatalf("no leader elected in setup phase")
	}

	leaderNode.Coordinator.Handle(ResignNode{})

	// resignation alone does not elect a new leader; it only arranges
	// for BestLeaderCandidate to skip the resigning node on the next
	// election attempt.
	for _, n := range nodes {
		if n.Coordinator.resigningLeaderInstanceID == nil {
			continue
		}
		if *n.Coordinator.resigningLeaderInstanceID != leaderID {
			t.Fatalf("expected resigning_leader_instance_id to be the resigned leader on every node that saw the handshake")
		}
	}
}

func TestHandleIsNoOpAfterShutdown(t *testing.T) {
	net := newFakeNetwork()
	self := newTestNode(t, net, 1, 1)
	self.Coordinator.Handle(BecomeShuttingDown{})
	if got := self.Coordinator.Status().State; got != StateShutdown {
		t.Fatalf("expected StateShutdown, got %v", got)
	}
	self.Coordinator.Handle(StartElections{})
	if len(self.Publisher.doneEvents()) != 0 {
		t.Fatalf("expected Handle to be a no-op once shut down")
	}
}
