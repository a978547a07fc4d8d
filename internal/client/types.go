package client

import "roomchat-service/internal/models"

// SendState tracks a locally originated message until the server-confirmed
// copy replaces it.
type SendState string

const (
	StatePending   SendState = "pending"
	StateFailed    SendState = "failed"
	StateConfirmed SendState = "confirmed"
)

// ConnectionStatus is the user-visible health of the live transport.
type ConnectionStatus string

const (
	StatusLive         ConnectionStatus = "live"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusOffline      ConnectionStatus = "offline"
)

// TimelineEntry is one row of the local timeline: a message plus the
// transient optimistic-send fields. Confirmed entries have an empty TempID.
type TimelineEntry struct {
	Message models.Message
	TempID  string
	State   SendState
}

// OutboundFrame is a client-to-server websocket frame.
type OutboundFrame struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId"`
	Content       string `json:"content"`
}
