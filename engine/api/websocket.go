package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/retail-analytics/engine/types"
)

// WSMessageType represents different types of WebSocket messages
type WSMessageType string

const (
	// Connection management messages
	WSMessageTypeConnection WSMessageType = "connection"
	WSMessageTypePing       WSMessageType = "ping"
	WSMessageTypePong       WSMessageType = "pong"

	// Real-time update messages
	WSMessageTypeReportGenerated   WSMessageType = "report_generated"
	WSMessageTypeAnomaliesDetected WSMessageType = "anomalies_detected"
)

// WSMessage represents a WebSocket message structure
type WSMessage struct {
	Type      WSMessageType `json:"type"`
	Data      interface{}   `json:"data,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	ClientID  string        `json:"client_id,omitempty"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan []byte
	Hub         *WSHub
	RemoteAddr  string
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
}

// WSHubConfig holds configuration for the WebSocket hub
type WSHubConfig struct {
	MaxClients          int
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	PingInterval        time.Duration
	MaxMessageSize      int64
	ClientBufferSize    int
	BroadcastBufferSize int
}

// WSHub manages WebSocket connections and event broadcasting
type WSHub struct {
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan []byte

	config    WSHubConfig
	onClients func(int)
	log       logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewWSHub creates a new WebSocket hub. onClients, when set, receives the
// client count after every connect and disconnect.
func NewWSHub(onClients func(int), log logrus.FieldLogger) *WSHub {
	ctx, cancel := context.WithCancel(context.Background())

	config := WSHubConfig{
		MaxClients:          100,
		WriteTimeout:        10 * time.Second,
		ReadTimeout:         60 * time.Second,
		PingInterval:        54 * time.Second,
		MaxMessageSize:      64 * 1024,
		ClientBufferSize:    256,
		BroadcastBufferSize: 1000,
	}

	return &WSHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient, config.MaxClients),
		unregister: make(chan *WSClient, config.MaxClients),
		broadcast:  make(chan []byte, config.BroadcastBufferSize),
		config:     config,
		onClients:  onClients,
		log:        log.WithField("component", "websocket-hub"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub loop. The hub stops when ctx is cancelled or Stop is called.
func (h *WSHub) Run(ctx context.Context) error {
	h.log.Info("Starting WebSocket hub")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		select {
		case <-ctx.Done():
			h.cancel()
		case <-h.ctx.Done():
		}
	}()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runHub()
	}()

	return nil
}

// Stop disconnects every client and waits for the hub loop to exit
func (h *WSHub) Stop() {
	h.log.Info("Stopping WebSocket hub")
	h.cancel()
	h.wg.Wait()

	h.mu.Lock()
	for client := range h.clients {
		delete(h.clients, client)
		client.close()
	}
	h.mu.Unlock()
}

// ClientCount returns the number of currently connected clients
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterClient registers a new WebSocket client and starts its pumps
func (h *WSHub) RegisterClient(conn *websocket.Conn, clientID, remoteAddr string) *WSClient {
	client := &WSClient{
		ID:          clientID,
		Conn:        conn,
		Send:        make(chan []byte, h.config.ClientBufferSize),
		Hub:         h,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		h.log.Warn("Cannot register client, hub is shutting down")
		return nil
	default:
		h.log.Warn("Client registration channel full, rejecting connection")
		return nil
	}

	go client.writePump()
	go client.readPump()

	return client
}

// BroadcastToAll sends a message to all connected clients
func (h *WSHub) BroadcastToAll(messageType WSMessageType, data interface{}) {
	message := WSMessage{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- msgBytes:
	default:
		h.log.Warn("Broadcast channel full, dropping message")
	}
}

// NotifyReportGenerated broadcasts a summary of an executed report
func (h *WSHub) NotifyReportGenerated(query types.ReportQuery, result *types.ReportResult) {
	h.BroadcastToAll(WSMessageTypeReportGenerated, map[string]interface{}{
		"report_id":         result.ID,
		"data_source":       query.DataSource,
		"dimensions":        query.Dimensions,
		"metrics":           query.Metrics,
		"row_count":         result.RowCount,
		"execution_time_ms": result.ExecutionTimeMs,
	})
	h.log.WithField("report_id", result.ID).Debug("Broadcasted report notification")
}

// NotifyAnomalies broadcasts detected anomalies. Results without anomalies are ignored.
func (h *WSHub) NotifyAnomalies(result types.AnomalyResult) {
	if len(result.Anomalies) == 0 {
		return
	}

	h.BroadcastToAll(WSMessageTypeAnomaliesDetected, map[string]interface{}{
		"count":        len(result.Anomalies),
		"anomaly_rate": result.AnomalyRate,
		"summary":      result.Summary,
		"anomalies":    result.Anomalies,
	})
	h.log.WithField("count", len(result.Anomalies)).Info("Broadcasted anomaly notification")
}

// runHub manages the main hub loop
func (h *WSHub) runHub() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.config.MaxClients {
				h.mu.Unlock()
				h.log.Warn("Maximum client limit reached, rejecting connection")
				client.close()
				continue
			}
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()

			h.clientsChanged(count)
			client.sendMessage(WSMessage{
				Type:      WSMessageTypeConnection,
				Data:      map[string]interface{}{"status": "connected", "client_id": client.ID},
				Timestamp: time.Now().UTC(),
				ClientID:  client.ID,
			})

			h.log.WithFields(logrus.Fields{
				"client_id":     client.ID,
				"remote_addr":   client.RemoteAddr,
				"total_clients": count,
			}).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			count := len(h.clients)
			h.mu.Unlock()

			if ok {
				client.close()
				h.clientsChanged(count)
				h.log.WithFields(logrus.Fields{
					"client_id":     client.ID,
					"total_clients": count,
				}).Info("WebSocket client disconnected")
			}

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Slow consumer
					delete(h.clients, client)
					client.close()
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.clientsChanged(count)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *WSHub) clientsChanged(count int) {
	if h.onClients != nil {
		h.onClients(count)
	}
}

// sendMessage queues a message for this client only
func (c *WSClient) sendMessage(message WSMessage) {
	msgBytes, err := json.Marshal(message)
	if err != nil {
		c.Hub.log.WithError(err).Error("Failed to marshal client message")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.Send <- msgBytes:
	default:
		c.Hub.log.WithField("client_id", c.ID).Warn("Client send channel full")
	}
}

// readPump handles incoming messages from the client
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.ctx.Done():
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.WithError(err).WithField("client_id", c.ID).Error("WebSocket read error")
			}
			return
		}

		switch msg.Type {
		case WSMessageTypePing:
			c.sendMessage(WSMessage{
				Type:      WSMessageTypePong,
				Timestamp: time.Now().UTC(),
				ClientID:  c.ID,
			})
		default:
			c.Hub.log.WithFields(logrus.Fields{
				"client_id":    c.ID,
				"message_type": msg.Type,
			}).Debug("Ignoring WebSocket message")
		}
	}
}

// writePump handles outgoing messages to the client
func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.log.WithError(err).WithField("client_id", c.ID).Error("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.Hub.ctx.Done():
			return
		}
	}
}

// close closes the send channel once; writePump then closes the connection
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// HandleWebSocketConnection creates a WebSocket handler for HTTP server integration
func (h *WSHub) HandleWebSocketConnection(upgrader *websocket.Upgrader) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.WithError(err).Error("Failed to upgrade WebSocket connection")
			return
		}

		if client := h.RegisterClient(conn, uuid.NewString(), r.RemoteAddr); client == nil {
			conn.Close()
		}
	}
}
