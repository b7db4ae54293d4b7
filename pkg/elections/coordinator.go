package elections

import (
	"context"
	"fmt"
	"sort"
)

// Handle is the coordinator's single logical operation. It dispatches on
// the concrete message type and is a no-op once Shutdown is reached.
// Handle must be invoked serially by a single dispatcher; the coordinator
// itself re-invokes Handle synchronously to deliver self-sent messages
// (view-change, prepare-ok, accept) — see design notes on self-delivery.
func (c *Coordinator) Handle(msg Message) {
	if c.state == StateShutdown {
		return
	}

	switch m := msg.(type) {
	case StartElections:
		c.handleStartElections()
	case ElectionsTimedOut:
		c.handleElectionsTimedOut(m)
	case BecomeShuttingDown:
		c.handleBecomeShuttingDown()
	case SetNodePriority:
		c.handleSetNodePriority(m)
	case ResignNode:
		c.handleResignNode()
	case GossipUpdated:
		c.handleGossipUpdated(m)
	case SendViewChangeProof:
		c.handleSendViewChangeProof()
	case ViewChange:
		c.handleViewChange(m)
	case ViewChangeProof:
		c.handleViewChangeProof(m)
	case Prepare:
		c.handlePrepare(m)
	case PrepareOk:
		c.handlePrepareOk(m)
	case Proposal:
		c.handleProposal(m)
	case Accept:
		c.handleAccept(m)
	case LeaderIsResigning:
		c.handleLeaderIsResigning(m)
	case LeaderIsResigningOk:
		c.handleLeaderIsResigningOk(m)
	default:
		if c.logger != nil {
			c.logger.Warnw("elections_unknown_message", "type", fmt.Sprintf("%T", msg))
		}
	}

	c.refreshStatusLocked()
}

// handleStartElections begins a fresh attempt at last_attempted_view+1.
func (c *Coordinator) handleStartElections() {
	c.shiftToLeaderElection(c.lastAttemptedView + 1)
	if !c.proofTimerArmed {
		c.proofTimerArmed = true
		c.armViewChangeProofTimer()
	}
}

// shiftToLeaderElection is ShiftToLeaderElection: clear phase sets, enter
// ElectingLeader at view, self-deliver + broadcast our own ViewChange, and
// arm the progress timeout.
func (c *Coordinator) shiftToLeaderElection(view int32) {
	c.vcReceived = map[NodeID]struct{}{}
	c.prepareOkReceived = map[NodeID]PrepareOk{}
	c.acceptsReceived = map[NodeID]struct{}{}
	c.state = StateElectingLeader
	c.lastAttemptedView = view

	vc := ViewChange{ServerID: c.self.InstanceID, ServerEndpoint: c.self.ExternalEndpoint, AttemptedView: view}
	c.Handle(vc)
	c.broadcast(vc)

	c.armElectionTimeout(view)
}

func (c *Coordinator) handleElectionsTimedOut(m ElectionsTimedOut) {
	if m.View != c.lastAttemptedView {
		return // late fire for a view that is no longer current
	}
	if c.leader != nil {
		return // already have a leader for this run
	}
	c.shiftToLeaderElection(c.lastAttemptedView + 1)
}

func (c *Coordinator) handleBecomeShuttingDown() {
	c.state = StateShutdown
}

func (c *Coordinator) handleSetNodePriority(m SetNodePriority) {
	c.nodePriority = m.Value
	c.publish(UpdateNodePriority{Value: m.Value})
}

func (c *Coordinator) handleGossipUpdated(m GossipUpdated) {
	servers := make([]MemberInfo, 0, len(m.ClusterInfo.Members))
	for _, mem := range m.ClusterInfo.Members {
		if mem.State == VNodeManager {
			continue
		}
		if !mem.IsAlive {
			continue
		}
		servers = append(servers, mem)
	}
	sort.Slice(servers, func(i, j int) bool {
		return servers[i].ExternalEndpoint.Compare(servers[j].ExternalEndpoint) > 0
	})
	c.servers = servers
}

func (c *Coordinator) handleSendViewChangeProof() {
	if c.lastInstalledView >= 0 {
		proof := ViewChangeProof{
			ServerID:       c.self.InstanceID,
			ServerEndpoint: c.self.ExternalEndpoint,
			InstalledView:  c.lastInstalledView,
		}
		c.broadcast(proof)
	}
	c.timer.Schedule(SendViewChangeProofInterval, SendViewChangeProof{})
}

func (c *Coordinator) handleViewChange(m ViewChange) {
	if c.state == StateIdle {
		return
	}
	if m.AttemptedView <= c.lastInstalledView {
		return
	}
	if m.AttemptedView > c.lastAttemptedView {
		c.shiftToLeaderElection(m.AttemptedView)
		// fall through: the message that triggered the shift is itself a
		// vote for the new view and must be counted, or the sender who
		// bumped us here would never be tallied toward majority.
	}
	if m.AttemptedView != c.lastAttemptedView || c.state != StateElectingLeader {
		return
	}

	c.vcReceived[m.ServerID] = struct{}{}
	if len(c.vcReceived) >= c.majority() && c.amIProposer(c.lastAttemptedView) {
		c.installAndPrepare(c.lastAttemptedView)
	}
}

func (c *Coordinator) handleViewChangeProof(m ViewChangeProof) {
	if c.state == StateIdle {
		return
	}
	if m.InstalledView <= c.lastInstalledView {
		return
	}

	if c.lastAttemptedView < m.InstalledView {
		c.lastAttemptedView = m.InstalledView
	}
	if c.amIProposer(m.InstalledView) {
		c.installAndPrepare(m.InstalledView)
	} else {
		c.lastInstalledView = m.InstalledView
		c.state = StateAcceptor
	}
	c.armElectionTimeout(c.lastAttemptedView)
}

// installAndPrepare is the prepare sub-phase: install view, self-deliver
// our own PrepareOk (counting immediately), then broadcast Prepare.
func (c *Coordinator) installAndPrepare(view int32) {
	if c.lastInstalledView >= view {
		return
	}
	c.lastInstalledView = view
	c.state = StateElectingLeader
	c.prepareOkReceived = map[NodeID]PrepareOk{}

	ok := c.selfPrepareOk(view)
	c.Handle(ok)

	p := Prepare{ServerID: c.self.InstanceID, ServerEndpoint: c.self.ExternalEndpoint, View: view}
	c.broadcast(p)
}

func (c *Coordinator) selfPrepareOk(view int32) PrepareOk {
	fp := c.ownFingerprint()
	return PrepareOk{
		View:               view,
		ServerID:           fp.InstanceID,
		ServerEndpoint:     fp.ExternalEndpoint,
		EpochNumber:        fp.EpochNumber,
		EpochPosition:      fp.EpochPosition,
		EpochID:            fp.EpochID,
		LastCommitPosition: fp.LastCommitPosition,
		WriterCheckpoint:   fp.WriterCheckpoint,
		ChaserCheckpoint:   fp.ChaserCheckpoint,
		NodePriority:       fp.NodePriority,
	}
}

func (c *Coordinator) handlePrepare(m Prepare) {
	if c.state == StateIdle {
		return
	}
	if !c.knownMember(m.ServerID) {
		return
	}
	if m.View != c.lastAttemptedView {
		return
	}

	c.state = StateAcceptor
	c.lastInstalledView = m.View
	if c.self.IsReadOnlyReplica {
		return // silent: read-only replicas never emit PrepareOk
	}
	ok := c.selfPrepareOk(m.View)
	c.transportSendTo(m.ServerEndpoint, ok)
}

func (c *Coordinator) handlePrepareOk(m PrepareOk) {
	if c.state == StateIdle {
		return
	}
	if m.View != c.lastAttemptedView {
		return
	}
	c.prepareOkReceived[m.ServerID] = m

	if c.state != StateElectingLeader || !c.amIProposer(c.lastAttemptedView) {
		return
	}
	if len(c.prepareOkReceived) < c.majority() {
		return
	}

	candidate := c.BestLeaderCandidate()
	if candidate == nil {
		return
	}

	c.state = StateLeader
	c.leaderProposal = candidate
	c.acceptsReceived = map[NodeID]struct{}{}

	prop := Proposal{
		ServerID:           c.self.InstanceID,
		ServerEndpoint:     c.self.ExternalEndpoint,
		LeaderID:           candidate.InstanceID,
		LeaderEndpoint:     candidate.ExternalEndpoint,
		View:               c.lastAttemptedView,
		EpochNumber:        candidate.EpochNumber,
		EpochPosition:      candidate.EpochPosition,
		EpochID:            candidate.EpochID,
		LastCommitPosition: candidate.LastCommitPosition,
		WriterCheckpoint:   candidate.WriterCheckpoint,
		ChaserCheckpoint:   candidate.ChaserCheckpoint,
		NodePriority:       candidate.NodePriority,
	}
	c.broadcast(prop)

	accept := Accept{
		ServerID:       c.self.InstanceID,
		ServerEndpoint: c.self.ExternalEndpoint,
		LeaderID:       candidate.InstanceID,
		LeaderEndpoint: candidate.ExternalEndpoint,
		View:           c.lastAttemptedView,
	}
	c.Handle(accept)
}

func (c *Coordinator) handleProposal(m Proposal) {
	if c.state == StateIdle {
		return
	}
	if !c.knownMember(m.ServerID) || !c.knownMember(m.LeaderID) {
		return
	}
	if m.View != c.lastInstalledView {
		return
	}

	candidate := LeaderCandidate{
		InstanceID:         m.LeaderID,
		ExternalEndpoint:   m.LeaderEndpoint,
		EpochNumber:        m.EpochNumber,
		EpochPosition:      m.EpochPosition,
		EpochID:            m.EpochID,
		LastCommitPosition: m.LastCommitPosition,
		WriterCheckpoint:   m.WriterCheckpoint,
		ChaserCheckpoint:   m.ChaserCheckpoint,
		NodePriority:       m.NodePriority,
	}
	if !c.IsLegitimateLeader(candidate) {
		return
	}

	c.state = StateAcceptor
	c.leaderProposal = &candidate

	accept := Accept{
		ServerID:       c.self.InstanceID,
		ServerEndpoint: c.self.ExternalEndpoint,
		LeaderID:       candidate.InstanceID,
		LeaderEndpoint: candidate.ExternalEndpoint,
		View:           m.View,
	}
	c.Handle(accept)
	c.broadcast(accept)

	// Implicit accept on behalf of the proposer (§9 design notes):
	// harmless under set semantics, strictly deduplicated by server_id.
	proposerAccept := Accept{
		ServerID:       m.ServerID,
		ServerEndpoint: m.ServerEndpoint,
		LeaderID:       candidate.InstanceID,
		LeaderEndpoint: candidate.ExternalEndpoint,
		View:           m.View,
	}
	c.Handle(proposerAccept)
}

func (c *Coordinator) handleAccept(m Accept) {
	if c.state == StateIdle {
		return
	}
	if m.View != c.lastInstalledView {
		return
	}
	if c.leaderProposal == nil || c.leaderProposal.InstanceID != m.LeaderID {
		return
	}

	c.acceptsReceived[m.ServerID] = struct{}{}
	if len(c.acceptsReceived) < c.majority() {
		return
	}
	if already, ok := c.doneEmittedView[m.View]; ok && already == m.LeaderID {
		return
	}

	leaderID := m.LeaderID
	c.leader = &leaderID
	c.lastElectedLeader = &leaderID
	c.resigningLeaderInstanceID = nil
	c.doneEmittedView[m.View] = leaderID

	c.publish(ElectionsDone{View: m.View, Leader: c.memberFromCandidate(*c.leaderProposal)})
}

func (c *Coordinator) memberFromCandidate(cand LeaderCandidate) MemberInfo {
	if mem, ok := c.liveMember(cand.InstanceID); ok {
		return mem
	}
	return MemberInfo{
		InstanceID:         cand.InstanceID,
		ExternalEndpoint:   cand.ExternalEndpoint,
		State:              VNodeLeader,
		IsAlive:            true,
		EpochNumber:        cand.EpochNumber,
		EpochPosition:      cand.EpochPosition,
		EpochID:            cand.EpochID,
		LastCommitPosition: cand.LastCommitPosition,
		WriterCheckpoint:   cand.WriterCheckpoint,
		ChaserCheckpoint:   cand.ChaserCheckpoint,
		NodePriority:       cand.NodePriority,
	}
}

func (c *Coordinator) armElectionTimeout(view int32) {
	c.timer.Schedule(LeaderElectionProgressTimeout, ElectionsTimedOut{View: view})
}

func (c *Coordinator) armViewChangeProofTimer() {
	c.timer.Schedule(SendViewChangeProofInterval, SendViewChangeProof{})
}

func (c *Coordinator) broadcast(msg Message) {
	deadline := c.clock.UTCNow().Add(LeaderElectionProgressTimeout)
	if err := c.transport.Broadcast(context.Background(), msg, deadline); err != nil && c.logger != nil {
		c.logger.Warnw("elections_broadcast_failed", "type", fmt.Sprintf("%T", msg), "err", err)
	}
}

func (c *Coordinator) transportSendTo(to EndPoint, msg Message) {
	deadline := c.clock.UTCNow().Add(LeaderElectionProgressTimeout)
	if err := c.transport.Send(context.Background(), to, msg, deadline); err != nil && c.logger != nil {
		c.logger.Warnw("elections_send_failed", "to", to.String(), "type", fmt.Sprintf("%T", msg), "err", err)
	}
}

func (c *Coordinator) publish(msg Message) {
	if c.publisher != nil {
		c.publisher.Publish(msg)
	}
}
