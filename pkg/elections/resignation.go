package elections

// handleResignNode is honored only if this node is the current leader.
func (c *Coordinator) handleResignNode() {
	if c.leader == nil || *c.leader != c.self.InstanceID {
		if c.logger != nil {
			c.logger.Infow("elections_resign_ignored_not_leader", "self", c.self.InstanceID.String())
		}
		return
	}

	selfID := c.self.InstanceID
	c.resigningLeaderInstanceID = &selfID
	c.leaderIsResigningOkReceived = map[NodeID]struct{}{}
	c.resignationInitiated = false

	ok := LeaderIsResigningOk{
		LeaderID:       selfID,
		LeaderEndpoint: c.self.ExternalEndpoint,
		ServerID:       selfID,
		ServerEndpoint: c.self.ExternalEndpoint,
	}
	c.Handle(ok)

	c.broadcast(LeaderIsResigning{LeaderID: selfID, LeaderEndpoint: c.self.ExternalEndpoint})
}

// handleLeaderIsResigning is received by every non-read-only acceptor.
func (c *Coordinator) handleLeaderIsResigning(m LeaderIsResigning) {
	if c.state == StateIdle {
		return
	}
	if c.self.IsReadOnlyReplica {
		return // read-only replicas do not acknowledge resignation
	}

	leaderID := m.LeaderID
	c.resigningLeaderInstanceID = &leaderID

	ok := LeaderIsResigningOk{
		LeaderID:       m.LeaderID,
		LeaderEndpoint: m.LeaderEndpoint,
		ServerID:       c.self.InstanceID,
		ServerEndpoint: c.self.ExternalEndpoint,
	}
	c.transportSendTo(m.LeaderEndpoint, ok)
}

// handleLeaderIsResigningOk is collected only by the resigning leader.
func (c *Coordinator) handleLeaderIsResigningOk(m LeaderIsResigningOk) {
	if c.state == StateIdle {
		return
	}
	if c.leader == nil || *c.leader != c.self.InstanceID || m.LeaderID != c.self.InstanceID {
		return
	}

	c.leaderIsResigningOkReceived[m.ServerID] = struct{}{}
	if c.resignationInitiated || len(c.leaderIsResigningOkReceived) < c.majority() {
		return
	}
	c.resignationInitiated = true
	c.publish(InitiateLeaderResignation{})
}
