package elections

// majority returns floor(N/2)+1 for the configured (fixed) cluster size —
// not len(servers), which tracks only currently-live gossip membership.
func (c *Coordinator) majority() int {
	return c.clusterSize/2 + 1
}

// liveMember looks up id in the current servers snapshot.
func (c *Coordinator) liveMember(id NodeID) (MemberInfo, bool) {
	for _, m := range c.servers {
		if m.InstanceID == id {
			return m, true
		}
	}
	return MemberInfo{}, false
}

// knownMember reports whether id is present in the current servers
// snapshot, used to drop Prepare/Proposal messages from unknown senders.
func (c *Coordinator) knownMember(id NodeID) bool {
	_, ok := c.liveMember(id)
	return ok
}

// eligibleProposers is the servers snapshot filtered to non-read-only
// members, in the gossip-sorted (descending external_endpoint) order.
func (c *Coordinator) eligibleProposers() []MemberInfo {
	out := make([]MemberInfo, 0, len(c.servers))
	for _, m := range c.servers {
		if !m.IsReadOnlyReplica {
			out = append(out, m)
		}
	}
	return out
}

// amIProposer reports whether the local node is the proposer of view,
// i.e. sits at index (view mod |eligible|) in the eligible-proposer order.
func (c *Coordinator) amIProposer(view int32) bool {
	eligible := c.eligibleProposers()
	if len(eligible) == 0 {
		return false
	}
	idx := int(view) % len(eligible)
	if idx < 0 {
		idx += len(eligible)
	}
	return eligible[idx].InstanceID == c.self.InstanceID
}
