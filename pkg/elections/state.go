package elections

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ElectionState is the coordinator's top-level mode.
type ElectionState int

const (
	StateIdle ElectionState = iota
	StateElectingLeader
	StateLeader
	StateAcceptor
	StateShutdown
)

func (s ElectionState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateElectingLeader:
		return "ElectingLeader"
	case StateLeader:
		return "Leader"
	case StateAcceptor:
		return "Acceptor"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

const (
	// LeaderElectionProgressTimeout bounds one view attempt.
	LeaderElectionProgressTimeout = 1000 * time.Millisecond
	// SendViewChangeProofInterval is the liveness heartbeat period.
	SendViewChangeProofInterval = 5000 * time.Millisecond
)

// CoordinatorConfig is everything NewCoordinator needs to build a
// Coordinator. All port fields are required; construction fails fast
// (§7 "programmer invariants") if any is nil or ClusterSize <= 0.
type CoordinatorConfig struct {
	Self         NodeInfo
	ClusterSize  int
	NodePriority int32

	Publisher   Publisher
	Timer       TimerPort
	Transport   TransportPort
	Clock       Clock
	Epochs      EpochSource
	Checkpoints CheckpointSource

	Logger *zap.SugaredLogger
}

// Coordinator is the elections state machine. It owns no goroutines of
// its own; every exported mutation happens through Handle, which must be
// invoked serially by a single dispatcher (see §5 of the design doc).
type Coordinator struct {
	self         NodeInfo
	clusterSize  int
	nodePriority int32

	publisher   Publisher
	timer       TimerPort
	transport   TransportPort
	clock       Clock
	epochs      EpochSource
	checkpoints CheckpointSource
	logger      *zap.SugaredLogger

	state             ElectionState
	lastAttemptedView int32
	lastInstalledView int32

	vcReceived                  map[NodeID]struct{}
	prepareOkReceived           map[NodeID]PrepareOk
	acceptsReceived             map[NodeID]struct{}
	leaderIsResigningOkReceived map[NodeID]struct{}

	leaderProposal            *LeaderCandidate
	leader                    *NodeID
	lastElectedLeader         *NodeID
	resigningLeaderInstanceID *NodeID

	servers []MemberInfo

	doneEmittedView      map[int32]NodeID
	resignationInitiated bool
	proofTimerArmed      bool

	statusMu sync.RWMutex
	status   Status
}

// Status is a point-in-time, concurrency-safe snapshot of coordinator
// state for observers outside the single-threaded dispatcher (e.g. an
// admin HTTP handler).
type Status struct {
	State             ElectionState
	LastAttemptedView int32
	LastInstalledView int32
	Leader            *NodeID
	NodePriority       int32
	ClusterSize       int
}

// NewCoordinator validates cfg and returns a fresh Coordinator in state
// Idle with lastAttemptedView = lastInstalledView = -1.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.ClusterSize <= 0 {
		return nil, fmt.Errorf("elections: cluster_size must be > 0, got %d", cfg.ClusterSize)
	}
	if cfg.Self.InstanceID.IsZero() {
		return nil, fmt.Errorf("elections: self.InstanceID must not be zero")
	}
	if cfg.Publisher == nil || cfg.Timer == nil || cfg.Transport == nil ||
		cfg.Clock == nil || cfg.Epochs == nil || cfg.Checkpoints == nil {
		return nil, fmt.Errorf("elections: all collaborator ports must be non-nil")
	}

	c := &Coordinator{
		self:         cfg.Self,
		clusterSize:  cfg.ClusterSize,
		nodePriority: cfg.NodePriority,

		publisher:   cfg.Publisher,
		timer:       cfg.Timer,
		transport:   cfg.Transport,
		clock:       cfg.Clock,
		epochs:      cfg.Epochs,
		checkpoints: cfg.Checkpoints,
		logger:      cfg.Logger,

		state:             StateIdle,
		lastAttemptedView: -1,
		lastInstalledView: -1,

		vcReceived:                  map[NodeID]struct{}{},
		prepareOkReceived:           map[NodeID]PrepareOk{},
		acceptsReceived:             map[NodeID]struct{}{},
		leaderIsResigningOkReceived: map[NodeID]struct{}{},
		doneEmittedView:             map[int32]NodeID{},
	}
	c.refreshStatusLocked()
	return c, nil
}

// Status returns the last published snapshot. Safe to call concurrently
// with Handle.
func (c *Coordinator) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

func (c *Coordinator) refreshStatusLocked() {
	var leader *NodeID
	if c.leader != nil {
		id := *c.leader
		leader = &id
	}
	s := Status{
		State:             c.state,
		LastAttemptedView: c.lastAttemptedView,
		LastInstalledView: c.lastInstalledView,
		Leader:            leader,
		NodePriority:      c.nodePriority,
		ClusterSize:       c.clusterSize,
	}
	c.statusMu.Lock()
	c.status = s
	c.statusMu.Unlock()
}
