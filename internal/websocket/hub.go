package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"repoinsight/internal/dto"
	"repoinsight/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// ClusterChannel is the redis channel every instance listens on for reply
// parts addressed to users connected elsewhere.
const ClusterChannel = "chat_outbound"

// InboundFunc receives text typed into a websocket by a user.
type InboundFunc func(ctx context.Context, userID, text string) error

type clusterMessage struct {
	TargetUserID string          `json:"target_user_id"`
	Part         int             `json:"part"`
	Message      json.RawMessage `json:"message"`
}

type Hub struct {
	// Registered clients map: UserID -> List of Clients (multi-device)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	// closed when Run returns
	done chan struct{}

	mu sync.RWMutex

	// Redis connection for cross-instance communication, nil on a single instance
	rdb *redis.Client

	inbound InboundFunc
	logger  logger.ILogger
}

func NewHub(rdb *redis.Client, inbound InboundFunc, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		inbound:    inbound,
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"user_id": client.UserID})

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			remaining := len(h.clients[client.UserID])
			h.mu.Unlock()
			if remaining == 0 {
				h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"user_id": client.UserID})
			}
		}
	}
}

// Deliver (MessageDelivery interface implementation). With redis the part
// travels through the cluster channel so every instance, this one included,
// delivers it to its own connections exactly once.
func (h *Hub) Deliver(userID string, msg dto.OutboundMessage) {
	data, err := json.Marshal(map[string]interface{}{
		"type": "message",
		"data": msg,
	})
	if err != nil {
		h.logger.Error("Hub", "Failed to marshal message", map[string]interface{}{"user_id": userID, "error": err})
		return
	}

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{TargetUserID: userID, Part: msg.Part, Message: data})
		err := h.rdb.Publish(context.Background(), ClusterChannel, payload).Err()
		if err == nil {
			return
		}
		h.logger.Warn("Hub", "Redis publish failed, delivering locally", map[string]interface{}{"user_id": userID, "error": err})
	}
	h.deliverLocal(userID, msg.Part, data)
}

// Connected reports how many live connections userID has on this instance.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// deliverLocal pushes data to userID's connections on this instance. A
// connection that cannot keep up is closed: it would otherwise keep a reply
// with a part missing. The client reconnects and reads the next reply whole.
func (h *Hub) deliverLocal(userID string, part int, data []byte) {
	var slow []*Client

	h.mu.RLock()
	for _, client := range h.clients[userID] {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Error("Hub", "Client Send buffer full, dropping part and closing connection", map[string]interface{}{
			"user_id": userID,
			"part":    part,
		})
		h.evict(client)
	}
}

// evict removes client and closes its Send channel unless Run or closeAll
// got there first.
func (h *Hub) evict(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	clients := h.clients[client.UserID]
	for i, c := range clients {
		if c == client {
			h.clients[client.UserID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.UserID]) == 0 {
		delete(h.clients, client.UserID)
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err})
				continue
			}
			h.deliverLocal(payload.TargetUserID, payload.Part, payload.Message)
		}
	}
}

// join and leave are no-ops once the hub stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) handleInbound(ctx context.Context, userID, text string) {
	h.mu.RLock()
	inbound := h.inbound
	h.mu.RUnlock()
	if inbound == nil {
		return
	}
	if err := inbound(ctx, userID, text); err != nil {
		h.logger.Warn("Hub", "Inbound message rejected", map[string]interface{}{"user_id": userID, "error": err})
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.clients {
		for _, c := range clients {
			close(c.Send)
		}
		delete(h.clients, userID)
	}
}
