package elections

import (
	"context"
	"time"
)

// Publisher is the local out-bus: fire-and-forget, no delivery guarantee
// back to the coordinator.
type Publisher interface {
	Publish(msg Message)
}

// TimerPort schedules a message for delivery after delay. Implementations
// must not call back into the coordinator's Handle on the calling stack;
// the envelope must eventually be handed to the same dispatcher that
// drives Handle.
type TimerPort interface {
	Schedule(delay time.Duration, msg Message)
}

// TransportPort is point-to-point and broadcast delivery with no
// guarantees: messages may be dropped, reordered, or arrive past their
// deadline. The coordinator never blocks on it.
type TransportPort interface {
	Broadcast(ctx context.Context, msg Message, deadline time.Time) error
	Send(ctx context.Context, to EndPoint, msg Message, deadline time.Time) error
}

// Clock is the coordinator's only source of wall-clock time.
type Clock interface {
	UTCNow() time.Time
}

// EpochSource supplies the last known epoch identity, synchronously and
// without blocking I/O.
type EpochSource interface {
	LastEpoch() (Epoch, bool)
}

// CheckpointSource supplies the writer/chaser checkpoint positions and the
// last commit position, synchronously.
type CheckpointSource interface {
	WriterCheckpoint() int64
	ChaserCheckpoint() int64
	LastCommitPosition() int64
}

// GossipSource is the external membership protocol. It is not called by
// the coordinator directly; it pushes GossipUpdated messages through
// whatever dispatcher drives Handle. The interface exists so wiring code
// has a named contract for "the thing that produces ClusterInfo."
type GossipSource interface {
	Subscribe(onUpdate func(ClusterInfo))
}
