// Package transport adapts libp2p + GossipSub to the elections core's
// TransportPort: broadcast over a single pubsub topic, unicast over a
// dedicated libp2p stream protocol.
package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/matsnd/eventstore/pkg/elections"
)

const electionProtocol = protocol.ID("/eventstore/elections/unicast/1.0.0")

// Config wires one Libp2pTransport instance.
type Config struct {
	ListenAddr string
	Bootstrap  []string
	Topic      string
	Logger     *zap.SugaredLogger
}

// Libp2pTransport implements elections.TransportPort. Broadcast publishes
// to the configured GossipSub topic; Send opens a dedicated stream to the
// peer registered for the target endpoint. Inbound messages (from both
// paths) are handed to the deliver function given to New, which the wiring
// code points at the coordinator's dispatcher.
type Libp2pTransport struct {
	h      host.Host
	ps     *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	log    *zap.SugaredLogger
	deliver func(elections.Message)

	mu        sync.RWMutex
	endpoints map[elections.EndPoint]peer.ID
}

// New starts a libp2p host, joins the election gossip topic, and connects
// to the given bootstrap peers. deliver is invoked, on an internal
// goroutine, for every message received over broadcast or unicast.
func New(ctx context.Context, cfg Config, deliver func(elections.Message)) (*Libp2pTransport, error) {
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("transport: invalid listen address %q: %w", cfg.ListenAddr, err)
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: starting libp2p host: %w", err)
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("transport: starting gossipsub: %w", err)
	}
	topicName := cfg.Topic
	if topicName == "" {
		topicName = "eventstore/elections/v1"
	}
	topic, err := ps.Join(topicName)
	if err != nil {
		return nil, fmt.Errorf("transport: joining election topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("transport: subscribing to election topic: %w", err)
	}

	t := &Libp2pTransport{
		h: h, ps: ps, topic: topic, sub: sub,
		log:       cfg.Logger,
		deliver:   deliver,
		endpoints: map[elections.EndPoint]peer.ID{},
	}

	for _, addr := range cfg.Bootstrap {
		if err := t.connect(ctx, addr); err != nil && t.log != nil {
			t.log.Warnw("transport_bootstrap_connect_failed", "addr", addr, "err", err)
		}
	}

	h.SetStreamHandler(electionProtocol, t.handleStream)
	go t.readBroadcast(ctx)

	if t.log != nil {
		t.log.Infow("transport_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", topicName)
	}
	return t, nil
}

func (t *Libp2pTransport) Host() host.Host { return t.h }

func (t *Libp2pTransport) connect(ctx context.Context, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return t.h.Connect(ctx, *info)
}

// RegisterPeer binds a cluster member's elections.EndPoint to its libp2p
// peer id, so Send knows which stream to open. Send fails for any endpoint
// that has not been registered here.
func (t *Libp2pTransport) RegisterPeer(ep elections.EndPoint, id peer.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endpoints[ep] = id
}

func (t *Libp2pTransport) Broadcast(ctx context.Context, msg elections.Message, deadline time.Time) error {
	data, err := encode(msg)
	if err != nil {
		return fmt.Errorf("transport: encoding broadcast message: %w", err)
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return t.topic.Publish(ctx, data)
}

func (t *Libp2pTransport) Send(ctx context.Context, to elections.EndPoint, msg elections.Message, deadline time.Time) error {
	t.mu.RLock()
	id, ok := t.endpoints[to]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: no known peer for endpoint %s", to.String())
	}

	data, err := encode(msg)
	if err != nil {
		return fmt.Errorf("transport: encoding unicast message: %w", err)
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	stream, err := t.h.NewStream(ctx, id, electionProtocol)
	if err != nil {
		return fmt.Errorf("transport: opening stream to %s: %w", to.String(), err)
	}
	defer stream.Close()

	_, err = stream.Write(data)
	return err
}

func (t *Libp2pTransport) readBroadcast(ctx context.Context) {
	for {
		m, err := t.sub.Next(ctx)
		if err != nil {
			return
		}
		if m.ReceivedFrom == t.h.ID() {
			continue // GossipSub loops our own publishes back to us
		}
		msg, err := decode(m.Data)
		if err != nil {
			if t.log != nil {
				t.log.Debugw("transport_broadcast_decode_failed", "err", err)
			}
			continue
		}
		t.deliver(msg)
	}
}

func (t *Libp2pTransport) handleStream(s network.Stream) {
	defer s.Close()
	data, err := io.ReadAll(s)
	if err != nil {
		return
	}
	msg, err := decode(data)
	if err != nil {
		if t.log != nil {
			t.log.Debugw("transport_unicast_decode_failed", "err", err)
		}
		return
	}
	t.deliver(msg)
}
