// Package ws provides a sharded WebSocket hub with per-topic replay buffers.
package ws

import (
	"encoding/json"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message wraps a WebSocket payload with sequencing for replay.
type Message struct {
	Topic string `json:"topic"`
	Seq   uint64 `json:"seq"`
	Data  []byte `json:"data"`
}

// ringBuffer holds the last N messages for a topic.
type ringBuffer struct {
	buf   []Message
	size  int
	start int
	count int
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{buf: make([]Message, size), size: size}
}

// add appends a message, overwriting old entries when full.
func (r *ringBuffer) add(msg Message) {
	idx := (r.start + r.count) % r.size
	if r.count == r.size {
		r.start = (r.start + 1) % r.size
		r.count--
	}
	r.buf[idx] = msg
	r.count++
}

// getSince returns messages with Seq > since.
func (r *ringBuffer) getSince(since uint64) []Message {
	var out []Message
	for i := 0; i < r.count; i++ {
		msg := r.buf[(r.start+i)%r.size]
		if msg.Seq > since {
			out = append(out, msg)
		}
	}
	return out
}

// Client represents a single WebSocket connection.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan Message
	hub  *Hub

	mu            sync.RWMutex
	subscriptions map[string]struct{}
}

func (c *Client) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

// Hub manages all WebSocket clients, sharded for concurrency.
type Hub struct {
	shards     []*hubShard
	shardCount uint32

	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	closeOnce  sync.Once

	replaySize int
	buffers    map[string]*ringBuffer
	bufMu      sync.Mutex
	seqMu      sync.Mutex
	nextSeq    uint64

	upgrader websocket.Upgrader
	log      *zap.Logger
}

type hubShard struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a Hub with given shard count and replay buffer size per
// topic. New subscribers receive the buffered messages first.
func NewHub(shardCount int, replaySize int, log *zap.Logger) *Hub {
	if shardCount <= 0 {
		shardCount = 1
	}
	if replaySize <= 0 {
		replaySize = 1
	}
	h := &Hub{
		shards:     make([]*hubShard, shardCount),
		shardCount: uint32(shardCount),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 1024),
		done:       make(chan struct{}),
		replaySize: replaySize,
		buffers:    make(map[string]*ringBuffer),
		nextSeq:    1,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
	for i := range h.shards {
		h.shards[i] = &hubShard{clients: make(map[*Client]struct{})}
	}
	go h.run()
	return h
}

// run handles registration, unregistration, and broadcasting.
func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.closeClients()
			return
		case client := <-h.register:
			sh := h.shardFor(client.id)
			sh.mu.Lock()
			sh.clients[client] = struct{}{}
			sh.mu.Unlock()
			client.mu.RLock()
			for topic := range client.subscriptions {
				for _, m := range h.Replay(topic, 0) {
					h.deliver(client, m)
				}
			}
			client.mu.RUnlock()
		case client := <-h.unregister:
			sh := h.shardFor(client.id)
			sh.mu.Lock()
			if _, ok := sh.clients[client]; ok {
				delete(sh.clients, client)
				close(client.send)
			}
			sh.mu.Unlock()
		case msg := <-h.broadcast:
			h.bufMu.Lock()
			buf, ok := h.buffers[msg.Topic]
			if !ok {
				buf = newRingBuffer(h.replaySize)
				h.buffers[msg.Topic] = buf
			}
			buf.add(msg)
			h.bufMu.Unlock()

			for _, sh := range h.shards {
				sh.mu.RLock()
				for c := range sh.clients {
					if c.subscribed(msg.Topic) {
						h.deliver(c, msg)
					}
				}
				sh.mu.RUnlock()
			}
		}
	}
}

func (h *Hub) deliver(c *Client, msg Message) {
	select {
	case c.send <- msg:
	default:
		h.log.Debug("dropping message for slow websocket client", zap.String("client_id", c.id), zap.String("topic", msg.Topic))
	}
}

func (h *Hub) closeClients() {
	for _, sh := range h.shards {
		sh.mu.Lock()
		for c := range sh.clients {
			delete(sh.clients, c)
			close(c.send)
		}
		sh.mu.Unlock()
	}
}

func (h *Hub) shardFor(key string) *hubShard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	idx := hasher.Sum32() % h.shardCount
	return h.shards[idx]
}

// ServeWS upgrades HTTP to WS and registers the client under given clientID,
// subscribed to topics.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, clientID string, topics ...string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &Client{
		id:            clientID,
		conn:          conn,
		send:          make(chan Message, 256),
		subscriptions: make(map[string]struct{}),
		hub:           h,
	}
	for _, topic := range topics {
		c.subscriptions[topic] = struct{}{}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// Broadcast publishes a message to a topic for all subscribed clients.
func (h *Hub) Broadcast(topic string, data []byte) {
	h.seqMu.Lock()
	seq := h.nextSeq
	h.nextSeq++
	h.seqMu.Unlock()

	select {
	case h.broadcast <- Message{Topic: topic, Seq: seq, Data: data}:
	case <-h.done:
	}
}

// Replay returns buffered messages for topic since the given sequence.
func (h *Hub) Replay(topic string, since uint64) []Message {
	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	if buf, ok := h.buffers[topic]; ok {
		return buf.getSince(since)
	}
	return nil
}

// Close disconnects every client and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// readPump handles control frames and subscription changes:
// {"subscribe":["topic"]} or {"unsubscribe":["topic"]}.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var req map[string][]string
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}
		c.mu.Lock()
		for _, topic := range req["subscribe"] {
			c.subscriptions[topic] = struct{}{}
		}
		for _, topic := range req["unsubscribe"] {
			delete(c.subscriptions, topic)
		}
		c.mu.Unlock()
	}
}

// writePump sends messages and heartbeats to the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() { ticker.Stop(); c.conn.Close() }()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
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
