package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/radieske/riskbridge/internal/events"
	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

// Hub gerencia conexões WebSocket e as assinaturas de fatos por usuário
// subs: endereço (minúsculo) ou "*" -> conexões inscritas
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[string]map[*websocket.Conn]struct{}
	writeMu  sync.Mutex // gorilla não aceita escritas concorrentes na mesma conexão
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*websocket.Conn]struct{}),
	}
}

func normalize(user string) string {
	if user == AllUsers {
		return user
	}
	return strings.ToLower(user)
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		key := normalize(msg.User)
		switch msg.Type {
		case "subscribe":
			if key == "" {
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[key]; !ok {
				h.subs[key] = make(map[*websocket.Conn]struct{})
			}
			h.subs[key][conn] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			if m, ok := h.subs[key]; ok {
				delete(m, conn)
				if len(m) == 0 {
					delete(h.subs, key)
				}
			}
			h.mu.Unlock()
		case "ping":
			h.write(conn, []byte(`{"type":"pong"}`))
		}
	}
	// Remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	for key, set := range h.subs {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) write(c *websocket.Conn, b []byte) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_ = c.WriteMessage(websocket.TextMessage, b)
}

// Broadcast envia o envelope para quem assina o usuário do fato e para quem assina "*"
func (h *Hub) Broadcast(env cevents.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make(map[*websocket.Conn]struct{})
	for _, key := range []string{AllUsers, normalize(env.User)} {
		for c := range h.subs[key] {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for c := range targets {
		h.write(c, b)
	}
}

// Publisher entrega os fatos direto ao hub (modo local, sem Redis).
func (h *Hub) Publisher(chainID uint32) events.Publisher {
	return events.PublisherFunc(func(_ context.Context, f cevents.Fact) error {
		env, err := cevents.Wrap(chainID, f)
		if err != nil {
			return err
		}
		h.Broadcast(env)
		return nil
	})
}
