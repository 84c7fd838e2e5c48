package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"studydeck-backend/internal/feed"
	"studydeck-backend/internal/models"
	"studydeck-backend/internal/repository"
	"studydeck-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client wraps one websocket connection with a write lock. Two goroutines
// write to every connection (the feed session replying to gestures, and the
// pub/sub fan-out), and gorilla/websocket permits only one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// sessionDispatcher binds the rating engine to one user's feed session.
type sessionDispatcher struct {
	rating *services.RatingService
	userID uuid.UUID
}

func (d *sessionDispatcher) ApplyRating(ctx context.Context, cardID uuid.UUID, direction int) (float64, error) {
	return d.rating.Apply(ctx, cardID, d.userID, direction, false)
}

func (d *sessionDispatcher) RevertRating(ctx context.Context, cardID uuid.UUID, direction int, prior *bool) (float64, error) {
	return d.rating.Revert(ctx, cardID, d.userID, direction, prior)
}

// Hub bridges Redis pub/sub user channels to websocket connections and
// hosts one feed swipe session per connection: gesture messages from the
// client drive a feed.Controller, which dispatches rating mutations to the
// propagation engine in the background.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*client
	redisClient *redis.Client
	jwtSecret   []byte
	cancelFuncs map[uuid.UUID]context.CancelFunc

	feedRepo    *repository.FeedRepo
	rating      *services.RatingService
	feedLimit   int
	swipeConfig feed.Config
}

func NewHub(redisClient *redis.Client, jwtSecret string, feedRepo *repository.FeedRepo, rating *services.RatingService, feedLimit int) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*client),
		redisClient: redisClient,
		jwtSecret:   []byte(jwtSecret),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		feedRepo:    feedRepo,
		rating:      rating,
		feedLimit:   feedLimit,
		swipeConfig: feed.DefaultConfig(),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userIDStr, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	cl := &client{conn: conn}
	h.registerConnection(userID, cl)

	go h.runFeedSession(userID, cl)
}

// runFeedSession owns the connection's read loop. Every connection gets its
// own controller over a freshly ranked feed; gestures arrive as
// SwipeMessages and decisions go back as WSMessages.
func (h *Hub) runFeedSession(userID uuid.UUID, cl *client) {
	defer h.unregisterConnection(userID, cl)

	ctx := context.Background()
	cards, err := h.feedRepo.RankedCards(ctx, userID, h.feedLimit)
	if err != nil {
		log.Printf("feed session: failed to load feed for user %s: %v", userID, err)
		cards = nil
	}

	dispatcher := &sessionDispatcher{rating: h.rating, userID: userID}
	controller := feed.NewController(cards, dispatcher, h.swipeConfig)

	h.sendTo(cl, models.WSMessage{Type: "feed_loaded", Payload: map[string]interface{}{
		"count": controller.Remaining(),
	}})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			break
		}

		var msg models.SwipeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendTo(cl, models.WSMessage{Type: "error", Payload: map[string]string{"message": "invalid message"}})
			continue
		}

		h.handleSwipeMessage(ctx, cl, controller, msg)
	}

	// Let the outstanding mutation land before the session goes away.
	controller.Wait()
}

func (h *Hub) handleSwipeMessage(ctx context.Context, cl *client, controller *feed.Controller, msg models.SwipeMessage) {
	switch msg.Action {
	case "answer":
		controller.AnswerQuiz(msg.CardID)
		h.sendTo(cl, models.WSMessage{Type: "quiz_answered", Payload: map[string]interface{}{"card_id": msg.CardID}})

	case "drag":
		if controller.State() == feed.StateIdle {
			if err := controller.BeginDrag(); err != nil {
				h.sendTo(cl, models.WSMessage{Type: "swipe_rejected", Payload: map[string]string{"reason": err.Error()}})
				return
			}
		}
		if err := controller.Drag(msg.DX, msg.DY); err != nil {
			h.sendTo(cl, models.WSMessage{Type: "swipe_rejected", Payload: map[string]string{"reason": err.Error()}})
		}

	case "release":
		decision, err := controller.Release(ctx, msg.VelocityX)
		if err != nil {
			h.sendTo(cl, models.WSMessage{Type: "swipe_rejected", Payload: map[string]string{"reason": err.Error()}})
			return
		}
		h.sendTo(cl, models.WSMessage{Type: "swipe_resolved", Payload: map[string]interface{}{
			"decision":  decisionName(decision),
			"remaining": controller.Remaining(),
			"history":   controller.HistoryLen(),
		}})

	case "undo":
		if err := controller.Undo(ctx); err != nil {
			h.sendTo(cl, models.WSMessage{Type: "swipe_rejected", Payload: map[string]string{"reason": err.Error()}})
			return
		}
		h.sendTo(cl, models.WSMessage{Type: "swipe_resolved", Payload: map[string]interface{}{
			"decision":  "undo",
			"remaining": controller.Remaining(),
			"history":   controller.HistoryLen(),
		}})

	default:
		h.sendTo(cl, models.WSMessage{Type: "error", Payload: map[string]string{"message": "unknown action"}})
	}
}

func decisionName(d feed.Decision) string {
	switch d {
	case feed.DecisionLike:
		return "like"
	case feed.DecisionDislike:
		return "dislike"
	case feed.DecisionUndo:
		return "undo"
	default:
		return "revert"
	}
}

func (h *Hub) sendTo(cl *client, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	cl.write(data)
}

func (h *Hub) registerConnection(userID uuid.UUID, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[userID] = append(h.connections[userID], cl)

	// Start pub/sub subscription if this is the first connection for this user
	if len(h.connections[userID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[userID] = cancel
		go h.subscribeToPubSub(ctx, userID)
	}

	log.Printf("WebSocket connected: user %s (total: %d)", userID, len(h.connections[userID]))
}

func (h *Hub) unregisterConnection(userID uuid.UUID, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cl.conn.Close()

	conns := h.connections[userID]
	for i, c := range conns {
		if c == cl {
			h.connections[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
		if cancel, ok := h.cancelFuncs[userID]; ok {
			cancel()
			delete(h.cancelFuncs, userID)
		}
	}

	log.Printf("WebSocket disconnected: user %s", userID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, userID uuid.UUID) {
	channel := "user_updates:" + userID.String()
	pubsub := h.redisClient.Subscribe(ctx, channel)
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
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, cl := range h.connections[userID] {
		cl.write(data)
	}
}

// SendToUser sends a message directly to a user (for use outside pub/sub)
func (h *Hub) SendToUser(userID uuid.UUID, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast(userID, data)
}
