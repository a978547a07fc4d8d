package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/chat"
	"roomchat-service/internal/models"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/repositories"
)

const wsRoutingKey = "ws_events.room_chat"

// Gateway authenticates websocket connections, binds each to its room
// channel, and fans persisted messages out through the hub.
//
// Connection lifecycle: Connecting -> Authenticated -> Subscribed ->
// Disconnected. A failed handshake closes the connection before any
// subscription exists, so a half-authenticated connection can never
// receive a broadcast.
type Gateway struct {
	hub      *Hub
	service  *chat.Service
	verifier auth.Verifier
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, service *chat.Service, verifier auth.Verifier) *Gateway {
	return &Gateway{hub: hub, service: service, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundFrame is a client-to-server frame. The correlation id is generated
// by the client and echoed in the broadcast so optimistic entries reconcile
// exactly.
type inboundFrame struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId"`
	Content       string `json:"content"`
}

// Handle performs the handshake and runs the connection.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("roomchat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	// The credential travels in the handshake payload (query parameter or
	// Authorization header), never a cookie.
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	principal, err := g.verifier.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	channel, err := g.service.GetChannelForUser(ctx, principal.UserID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, repositories.ErrUserNotFound), errors.Is(err, chat.ErrRoomNotFound):
			status = http.StatusNotFound
		case errors.Is(err, chat.ErrNotChannelMember):
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": "cannot resolve room channel"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      principal.UserID,
		Role:        principal.Role,
		ChannelID:   channel.ID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info)

	g.hub.join(channel.ID, client)
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	g.publishLifecycleEvent(context.Background(), info, "ws_connect", "")

	go client.writePump()
	go g.readPump(client)
}

// readPump consumes inbound frames until the connection dies, then releases
// the binding. It owns the Subscribed -> Disconnected transition.
func (g *Gateway) readPump(c *client) {
	var closeReason string
	defer func() {
		g.hub.leave(c.info.ChannelID, c)
		c.shutdown()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		g.publishLifecycleEvent(context.Background(), c.info, "ws_disconnect", closeReason)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				g.publishLifecycleEvent(context.Background(), c.info, "ws_error", closeReason)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			g.sendError(c, "", "malformed frame")
			continue
		}

		switch frame.Type {
		case "send_message":
			g.handleSend(c, frame)
		default:
			g.sendError(c, frame.CorrelationID, "unknown frame type")
		}
	}
}

// handleSend persists an inbound message using the connection's bound user
// id (never a client-supplied one) and broadcasts it to the channel. Errors
// go back to the originating connection only, as a structured event.
func (g *Gateway) handleSend(c *client, frame inboundFrame) {
	ch, msg, err := g.service.SendMessage(context.Background(), c.info.UserID, frame.Content)
	if err != nil {
		log.Printf("ws: send failed conn=%s: %v", c.info.ConnID, err)
		g.sendError(c, frame.CorrelationID, err.Error())
		return
	}
	observability.IncMessageSent("ws")

	g.hub.Broadcast(ch.ID, models.ChatEvent{
		Type:          models.EventNewMessage,
		Message:       &msg,
		CorrelationID: frame.CorrelationID,
	})

	ack, _ := json.Marshal(models.ChatEvent{Type: models.EventAck, OK: true, CorrelationID: frame.CorrelationID})
	c.enqueue(ack)
}

func (g *Gateway) sendError(c *client, correlationID, reason string) {
	payload, _ := json.Marshal(models.ChatEvent{Type: models.EventError, CorrelationID: correlationID, Error: reason})
	c.enqueue(payload)
}

func (g *Gateway) publishLifecycleEvent(ctx context.Context, info ConnInfo, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"channel_id":  info.ChannelID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
