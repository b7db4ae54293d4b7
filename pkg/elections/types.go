// Package elections implements the leader election core of a replicated
// event-store cluster: a rotating-coordinator Paxos variant that ranks
// candidates by log completeness.
package elections

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// NodeID is a 128-bit opaque cluster member identity.
type NodeID uuid.UUID

// NewNodeID returns a fresh random NodeID.
func NewNodeID() NodeID { return NodeID(uuid.New()) }

func (n NodeID) String() string { return uuid.UUID(n).String() }

// IsZero reports whether n is the zero NodeID ("none").
func (n NodeID) IsZero() bool { return n == NodeID{} }

// CompareNodeID is the canonical big-endian byte comparison used as the
// final, platform-independent ranking tie-break.
func CompareNodeID(a, b NodeID) int { return bytes.Compare(a[:], b[:]) }

// EndPoint is a host+port pair.
type EndPoint struct {
	Host string
	Port uint16
}

func (e EndPoint) String() string { return fmt.Sprintf("%s:%d", e.Host, e.Port) }

// Compare orders endpoints by Host then Port; used for the gossip-sorted
// "descending external_endpoint" ordering of the servers snapshot.
func (e EndPoint) Compare(o EndPoint) int {
	if e.Host != o.Host {
		if e.Host < o.Host {
			return -1
		}
		return 1
	}
	switch {
	case e.Port < o.Port:
		return -1
	case e.Port > o.Port:
		return 1
	default:
		return 0
	}
}

// Epoch identifies a generation of the log.
type Epoch struct {
	Number   int32
	Position int64
	ID       NodeID
}

// NodeInfo is the local node's fixed identity.
type NodeInfo struct {
	InstanceID             NodeID
	ExternalEndpoint       EndPoint
	InternalEndpoint       EndPoint
	ExternalSecureEndpoint EndPoint
	InternalSecureEndpoint EndPoint
	IsReadOnlyReplica      bool
}

// LeaderCandidate is the comparable log-completeness fingerprint used for
// ranking and legitimacy checks. EpochNumber/EpochPosition are -1 and
// EpochID is zero when the node has no epoch yet.
type LeaderCandidate struct {
	InstanceID          NodeID
	ExternalEndpoint     EndPoint
	EpochNumber          int32
	EpochPosition        int64
	EpochID              NodeID
	LastCommitPosition   int64
	WriterCheckpoint     int64
	ChaserCheckpoint     int64
	NodePriority         int32
}

// VNodeState mirrors the gossip layer's view of a member's role.
type VNodeState int

const (
	VNodeUnknown VNodeState = iota
	VNodeInitializing
	VNodeCatchingUp
	VNodeClone
	VNodeFollower
	VNodeLeader
	VNodeReadOnlyReplica
	VNodePreReadOnlyReplica
	VNodeResigningLeader
	VNodeShuttingDown
	VNodeShutdown
	VNodeManager
)

func (s VNodeState) String() string {
	switch s {
	case VNodeInitializing:
		return "Initializing"
	case VNodeCatchingUp:
		return "CatchingUp"
	case VNodeClone:
		return "Clone"
	case VNodeFollower:
		return "Follower"
	case VNodeLeader:
		return "Leader"
	case VNodeReadOnlyReplica:
		return "ReadOnlyReplica"
	case VNodePreReadOnlyReplica:
		return "PreReadOnlyReplica"
	case VNodeResigningLeader:
		return "ResigningLeader"
	case VNodeShuttingDown:
		return "ShuttingDown"
	case VNodeShutdown:
		return "Shutdown"
	case VNodeManager:
		return "Manager"
	default:
		return "Unknown"
	}
}

// MemberInfo is the gossip layer's view of one peer, carrying both its
// role/liveness and the same log/epoch fields as LeaderCandidate.
type MemberInfo struct {
	InstanceID          NodeID
	ExternalEndpoint    EndPoint
	State               VNodeState
	IsAlive             bool
	IsReadOnlyReplica   bool
	EpochNumber         int32
	EpochPosition       int64
	EpochID             NodeID
	LastCommitPosition  int64
	WriterCheckpoint    int64
	ChaserCheckpoint    int64
	NodePriority        int32
}

// Fingerprint projects a MemberInfo down to its LeaderCandidate shape.
func (m MemberInfo) Fingerprint() LeaderCandidate {
	return LeaderCandidate{
		InstanceID:         m.InstanceID,
		ExternalEndpoint:   m.ExternalEndpoint,
		EpochNumber:        m.EpochNumber,
		EpochPosition:      m.EpochPosition,
		EpochID:            m.EpochID,
		LastCommitPosition: m.LastCommitPosition,
		WriterCheckpoint:   m.WriterCheckpoint,
		ChaserCheckpoint:   m.ChaserCheckpoint,
		NodePriority:       m.NodePriority,
	}
}

// ClusterInfo is the payload of a GossipUpdated message: the gossip
// layer's current idea of cluster membership.
type ClusterInfo struct {
	Members []MemberInfo
}
