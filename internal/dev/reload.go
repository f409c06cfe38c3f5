// Package dev contains development-mode support: a WebSocket broker that
// tells connected browsers to reload when bundles are rebuilt.
package dev

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ReloadMessageType represents the type of reload message.
type ReloadMessageType string

const (
	ReloadTypeFull  ReloadMessageType = "reload"
	ReloadTypeError ReloadMessageType = "error"
)

// ReloadMessage is sent to browsers via WebSocket.
type ReloadMessage struct {
	Type  ReloadMessageType `json:"type"`
	Error string            `json:"error,omitempty"`
}

// ReloadBroker manages WebSocket connections for dev-mode reload.
type ReloadBroker struct {
	clients  map[*websocket.Conn]bool
	mu       sync.RWMutex
	upgrader websocket.Upgrader
}

// NewReloadBroker creates a new reload broker.
func NewReloadBroker() *ReloadBroker {
	return &ReloadBroker{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // dev mode only, any origin
			},
		},
	}
}

// HandleWebSocket upgrades the connection and holds it until the client
// disconnects.
func (b *ReloadBroker) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := b.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.clients[conn] = true
	b.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.mu.Lock()
	delete(b.clients, conn)
	b.mu.Unlock()
	conn.Close()
}

// NotifyReload tells all connected browsers to do a full reload.
func (b *ReloadBroker) NotifyReload() {
	b.broadcast(ReloadMessage{Type: ReloadTypeFull})
}

// NotifyError pushes a build error to all connected browsers.
func (b *ReloadBroker) NotifyError(errMsg string) {
	b.broadcast(ReloadMessage{Type: ReloadTypeError, Error: errMsg})
}

func (b *ReloadBroker) broadcast(msg ReloadMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	b.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(b.clients))
	for client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			b.mu.Lock()
			delete(b.clients, client)
			b.mu.Unlock()
			client.Close()
		}
	}
}
