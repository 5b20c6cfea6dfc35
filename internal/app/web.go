// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/aoa_locator/internal/aoa"
	"github.com/relabs-tech/aoa_locator/internal/config"
	"github.com/relabs-tech/aoa_locator/internal/tracker"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served from the LAN
	},
}

const (
	wsWriteWait  = 5 * time.Second
	wsSendBuffer = 16
)

// positionsMessage is pushed to websocket clients.
type positionsMessage struct {
	Type      string                        `json:"type"` // "snapshot"
	Positions map[string]tracker.TrackedTag `json:"positions"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// positionHub fans snapshots out to connected websocket clients.
type positionHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newPositionHub() *positionHub {
	return &positionHub{clients: make(map[*wsClient]struct{})}
}

func (h *positionHub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *positionHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *positionHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast queues payload for every client. Clients whose buffer is full
// are dropped.
func (h *positionHub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			log.Printf("web: websocket client too slow, dropping")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// positionServer keeps the latest published position per tag and serves it.
type positionServer struct {
	base    aoa.BaseStation
	tracker *tracker.Tracker
	hub     *positionHub
}

func newPositionServer(base aoa.BaseStation) *positionServer {
	return &positionServer{
		base:    base,
		tracker: tracker.New(),
		hub:     newPositionHub(),
	}
}

// handleReport records a published position and pushes the new snapshot.
// An empty payload is the locator clearing a retained position; the tag is
// dropped.
func (s *positionServer) handleReport(topic string, payload []byte) error {
	if len(payload) == 0 {
		s.tracker.Forget(aoa.TagIDFromTopic(topic))
		return s.pushSnapshot()
	}

	var r aoa.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("position unmarshal: %w", err)
	}
	if r.Tag == "" {
		r.Tag = aoa.TagIDFromTopic(topic)
	}
	at := r.Timestamp()
	if at.IsZero() {
		at = time.Now()
	}
	s.tracker.Update(r.Tag, r.Position(), at)
	return s.pushSnapshot()
}

// prune drops tags whose last position is older than cutoff.
func (s *positionServer) prune(cutoff time.Time) ([]string, error) {
	ids := s.tracker.Idle(cutoff)
	if len(ids) == 0 {
		return nil, nil
	}
	for _, id := range ids {
		s.tracker.Forget(id)
	}
	return ids, s.pushSnapshot()
}

func (s *positionServer) pushSnapshot() error {
	msg, err := s.snapshotMessage()
	if err != nil {
		return err
	}
	s.hub.broadcast(msg)
	return nil
}

// pruneLoop drops idle tags every interval until done is closed.
func (s *positionServer) pruneLoop(idle, every time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case t := <-ticker.C:
			ids, err := s.prune(t.Add(-idle))
			for _, id := range ids {
				log.Printf("web: %s idle, dropped", id)
			}
			if err != nil {
				log.Printf("web: %v", err)
			}
		}
	}
}

func (s *positionServer) snapshotMessage() ([]byte, error) {
	return json.Marshal(positionsMessage{Type: "snapshot", Positions: s.tracker.Snapshot()})
}

func (s *positionServer) handlePositions(w http.ResponseWriter, r *http.Request) {
	if s.tracker.Len() == 0 {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.tracker.Snapshot()); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (s *positionServer) handleBase(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.base); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// handleWS streams snapshots: one on connect, then one per received position.
func (s *positionServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	if msg, err := s.snapshotMessage(); err == nil {
		c.send <- msg
	}
	s.hub.add(c)

	go s.writeLoop(c)

	// Read until the client goes away; incoming messages are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("web: websocket error: %v", err)
			}
			break
		}
	}
	s.hub.remove(c)
}

func (s *positionServer) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("web: websocket write error: %v", err)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
}

func (s *positionServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/base", s.handleBase)
	mux.HandleFunc("/ws/positions", s.handleWS)
	return mux
}

// RunWeb subscribes to published positions and serves them over HTTP and
// a websocket live feed.
func RunWeb() error {
	cfg := config.Get()
	srv := newPositionServer(cfg.BaseStation())

	client, err := connectMQTT(cfg.MQTTBroker, config.ClientID(cfg.MQTTClientIDWeb, "web"), "web")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribe(client, cfg.PositionTopic("+"), "web", func(_ mqtt.Client, msg mqtt.Message) {
		if err := srv.handleReport(msg.Topic(), msg.Payload()); err != nil {
			log.Printf("web: %v", err)
		}
	}); err != nil {
		return err
	}

	if cfg.TagIdleTimeout > 0 {
		done := make(chan struct{})
		defer close(done)
		go srv.pruneLoop(time.Duration(cfg.TagIdleTimeout)*time.Second,
			time.Duration(cfg.TagPruneInterval)*time.Second, done)
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: server listening on %s", addr)
	return http.ListenAndServe(addr, srv.routes())
}
