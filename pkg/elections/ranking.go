package elections

// BestLeaderCandidate implements GetBestLeaderCandidate: a pure function
// of prepareOkReceived, servers, lastElectedLeader and
// resigningLeaderInstanceID. It returns nil iff prepareOkReceived is
// empty and there is no usable sticky leader.
func (c *Coordinator) BestLeaderCandidate() *LeaderCandidate {
	if c.lastElectedLeader != nil &&
		(c.resigningLeaderInstanceID == nil || *c.resigningLeaderInstanceID != *c.lastElectedLeader) {

		if ok, found := c.prepareOkReceived[*c.lastElectedLeader]; found {
			cand := prepareOkToCandidate(ok)
			return &cand
		}
		if mem, found := c.liveMember(*c.lastElectedLeader); found && mem.State == VNodeLeader {
			cand := mem.Fingerprint()
			return &cand
		}
	}

	var best *LeaderCandidate
	for _, ok := range c.prepareOkReceived {
		cand := prepareOkToCandidate(ok)
		if best == nil || rankLess(*best, cand) {
			next := cand
			best = &next
		}
	}
	return best
}

// IsLegitimateLeader implements the acceptor-side legitimacy check applied
// to every incoming Proposal.
func (c *Coordinator) IsLegitimateLeader(candidate LeaderCandidate) bool {
	if c.lastElectedLeader != nil {
		if prev, found := c.liveMember(*c.lastElectedLeader); found && prev.State == VNodeLeader &&
			(c.resigningLeaderInstanceID == nil || *c.resigningLeaderInstanceID != prev.InstanceID) {

			if candidate.InstanceID == prev.InstanceID {
				return true
			}
			if candidate.EpochNumber > prev.EpochNumber {
				return true
			}
			if candidate.EpochNumber == prev.EpochNumber && candidate.EpochID != prev.EpochID {
				return true
			}
			return false
		}
	}

	if candidate.InstanceID == c.self.InstanceID {
		return true
	}

	own := c.ownFingerprint()
	return compareTruncated(candidate, own) >= 0
}

// rankLess reports whether b outranks a under the full six-field
// lexicographic-descending order (epoch_number, last_commit_position,
// writer_checkpoint, chaser_checkpoint, node_priority, instance_id).
func rankLess(a, b LeaderCandidate) bool {
	if a.EpochNumber != b.EpochNumber {
		return a.EpochNumber < b.EpochNumber
	}
	if a.LastCommitPosition != b.LastCommitPosition {
		return a.LastCommitPosition < b.LastCommitPosition
	}
	if a.WriterCheckpoint != b.WriterCheckpoint {
		return a.WriterCheckpoint < b.WriterCheckpoint
	}
	if a.ChaserCheckpoint != b.ChaserCheckpoint {
		return a.ChaserCheckpoint < b.ChaserCheckpoint
	}
	if a.NodePriority != b.NodePriority {
		return a.NodePriority < b.NodePriority
	}
	return CompareNodeID(a.InstanceID, b.InstanceID) < 0
}

// compareTruncated compares only (epoch_number, last_commit_position,
// writer_checkpoint, chaser_checkpoint) — the legitimacy check's
// truncated order, which excludes priority and instance id.
func compareTruncated(a, b LeaderCandidate) int {
	switch {
	case a.EpochNumber != b.EpochNumber:
		return cmpInt32(a.EpochNumber, b.EpochNumber)
	case a.LastCommitPosition != b.LastCommitPosition:
		return cmpInt64(a.LastCommitPosition, b.LastCommitPosition)
	case a.WriterCheckpoint != b.WriterCheckpoint:
		return cmpInt64(a.WriterCheckpoint, b.WriterCheckpoint)
	case a.ChaserCheckpoint != b.ChaserCheckpoint:
		return cmpInt64(a.ChaserCheckpoint, b.ChaserCheckpoint)
	default:
		return 0
	}
}

func cmpInt32(a, b int32) int {
	if a > b {
		return 1
	}
	return -1
}

func cmpInt64(a, b int64) int {
	if a > b {
		return 1
	}
	return -1
}

func prepareOkToCandidate(ok PrepareOk) LeaderCandidate {
	return LeaderCandidate{
		InstanceID:         ok.ServerID,
		ExternalEndpoint:   ok.ServerEndpoint,
		EpochNumber:        ok.EpochNumber,
		EpochPosition:      ok.EpochPosition,
		EpochID:            ok.EpochID,
		LastCommitPosition: ok.LastCommitPosition,
		WriterCheckpoint:   ok.WriterCheckpoint,
		ChaserCheckpoint:   ok.ChaserCheckpoint,
		NodePriority:       ok.NodePriority,
	}
}

// ownFingerprint reads the local node's current log-completeness
// fingerprint from the injected epoch/checkpoint ports.
func (c *Coordinator) ownFingerprint() LeaderCandidate {
	epNum, epPos, epID := int32(-1), int64(-1), NodeID{}
	if ep, ok := c.epochs.LastEpoch(); ok {
		epNum, epPos, epID = ep.Number, ep.Position, ep.ID
	}
	return LeaderCandidate{
		InstanceID:         c.self.InstanceID,
		ExternalEndpoint:   c.self.ExternalEndpoint,
		EpochNumber:        epNum,
		EpochPosition:      epPos,
		EpochID:            epID,
		LastCommitPosition: c.checkpoints.LastCommitPosition(),
		WriterCheckpoint:   c.checkpoints.WriterCheckpoint(),
		ChaserCheckpoint:   c.checkpoints.ChaserCheckpoint(),
		NodePriority:       c.nodePriority,
	}
}
