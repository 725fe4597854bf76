// Package web serves the analyzer's event bus over WebSocket so UI
// clients can mirror structured events and raw output in real time.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/termlens/internal/logging"
	"github.com/asheshgoplani/termlens/internal/stream"
)

var webLog = logging.ForComponent(logging.CompWeb)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second

	// clientQueueSize bounds the frames buffered per client between the
	// bus handler and the writer goroutine.
	clientQueueSize = 256
)

// Frame is one WebSocket message: the channel an event was published on
// plus the event itself.
type Frame struct {
	Channel string       `json:"channel"`
	Event   stream.Event `json:"event"`
}

// feedClient is one connected subscriber. Bus handlers enqueue frames
// without blocking; a dedicated writer goroutine owns every write to the
// connection. A slow client fills its queue and loses frames instead of
// stalling the publisher.
type feedClient struct {
	conn *websocket.Conn
	send chan Frame

	closeOnce sync.Once
	done      chan struct{}
}

func newFeedClient(conn *websocket.Conn) *feedClient {
	return &feedClient{
		conn: conn,
		send: make(chan Frame, clientQueueSize),
		done: make(chan struct{}),
	}
}

// enqueue hands a frame to the writer goroutine. Never blocks: dead
// clients and full queues drop the frame.
func (c *feedClient) enqueue(f Frame) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- f:
	default:
		logging.Aggregate(logging.CompWeb, "feed_frames_dropped",
			slog.String("channel", f.Channel))
	}
}

func (c *feedClient) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			if err := c.write(f); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *feedClient) write(f Frame) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(f)
}

func (c *feedClient) ping() error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// close marks the client dead and closes the connection, which also
// unblocks the handler's read loop.
func (c *feedClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// FeedServer exposes /events, forwarding every bus publication to each
// connected client. Publication never blocks on a client: frames queue
// per connection and overflow is dropped.
type FeedServer struct {
	bus      *stream.Bus
	token    string
	srv      *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

// NewFeedServer creates a feed server listening on addr. A non-empty
// token requires clients to authenticate via ?token= or a bearer header.
func NewFeedServer(addr, token string, bus *stream.Bus) *FeedServer {
	s := &FeedServer{
		bus:     bus,
		token:   token,
		clients: make(map[*feedClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start runs the HTTP server until Stop or a listener error.
func (s *FeedServer) Start() error {
	webLog.Info("event_feed_listening", slog.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down and closes every client connection.
// Shutdown alone leaves hijacked WebSocket connections open, so the
// tracked clients are closed explicitly.
func (s *FeedServer) Stop(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)

	s.mu.Lock()
	clients := make([]*feedClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return err
}

func (s *FeedServer) addClient(c *feedClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *FeedServer) removeClient(c *feedClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *FeedServer) handleEvents(rw http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(rw, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		webLog.Warn("ws_upgrade_failed", slog.String("error", err.Error()))
		return
	}

	client := newFeedClient(conn)
	s.addClient(client)
	defer s.removeClient(client)
	defer client.close()

	// Forward every channel into the client's queue. Handlers run on the
	// analyzer's goroutine and must return immediately.
	var cancels []func()
	for _, ch := range stream.AllChannels() {
		channel := ch
		cancels = append(cancels, s.bus.Subscribe(channel, func(ev stream.Event) {
			client.enqueue(Frame{Channel: string(channel), Event: ev})
		}))
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	go client.writeLoop()

	// The read loop consumes pongs and close frames; it returns when the
	// connection dies or close() is called.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
