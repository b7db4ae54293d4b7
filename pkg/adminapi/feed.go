package adminapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matsnd/eventstore/pkg/elections"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// electionsDoneEvent is what the feed pushes to connected clients; it is
// intentionally a small projection of elections.ElectionsDone, not the
// struct itself, so wire shape doesn't change if the internal message
// grows fields the outside world has no business seeing.
type electionsDoneEvent struct {
	View       int32  `json:"view"`
	LeaderID   string `json:"leaderId"`
	LeaderHost string `json:"leaderHost"`
	LeaderPort uint16 `json:"leaderPort"`
}

// Feed is a minimal WebSocket broadcast hub for ElectionsDone events,
// shaped after the teacher's pkg/api Hub/Client pair: one register/
// unregister/broadcast loop, one goroutine per connected client pumping
// its own send buffer. Unlike the teacher's Hub this feed carries a
// single event kind, so there is no per-channel subscription bookkeeping.
type Feed struct {
	clients    map[*feedClient]bool
	broadcast  chan []byte
	register   chan *feedClient
	unregister chan *feedClient
	log        *zap.SugaredLogger

	mu sync.RWMutex
}

// NewFeed builds a Feed. Call Run in its own goroutine before serving
// HandleWebSocket.
func NewFeed(log *zap.SugaredLogger) *Feed {
	return &Feed{
		clients:    make(map[*feedClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		log:        log,
	}
}

// Run drives the hub's register/unregister/broadcast loop until the
// process exits. It never returns.
func (f *Feed) Run() {
	for {
		select {
		case c := <-f.register:
			f.mu.Lock()
			f.clients[c] = true
			f.mu.Unlock()

		case c := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[c]; ok {
				delete(f.clients, c)
				close(c.send)
			}
			f.mu.Unlock()

		case msg := <-f.broadcast:
			f.mu.RLock()
			for c := range f.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(f.clients, c)
				}
			}
			f.mu.RUnlock()
		}
	}
}

// Publish implements elections.Publisher. It only forwards ElectionsDone;
// every other message is the node's internal business and stays out of
// the admin surface.
func (f *Feed) Publish(msg elections.Message) {
	done, ok := msg.(elections.ElectionsDone)
	if !ok {
		return
	}
	data, err := json.Marshal(electionsDoneEvent{
		View:       done.View,
		LeaderID:   done.Leader.InstanceID.String(),
		LeaderHost: done.Leader.ExternalEndpoint.Host,
		LeaderPort: done.Leader.ExternalEndpoint.Port,
	})
	if err != nil {
		if f.log != nil {
			f.log.Warnw("feed_marshal_failed", "err", err)
		}
		return
	}
	select {
	case f.broadcast <- data:
	default:
		if f.log != nil {
			f.log.Warnw("feed_broadcast_buffer_full")
		}
	}
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only exists to notice the client going away; the feed is
// server-push only and ignores anything the client sends.
func (c *feedClient) readPump(f *Feed) {
	defer func() {
		f.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Warnw("feed_upgrade_failed", "err", err)
		}
		return
	}
	c := &feedClient{conn: conn, send: make(chan []byte, 16)}
	s.feed.register <- c
	go c.writePump()
	go c.readPump(s.feed)
}
