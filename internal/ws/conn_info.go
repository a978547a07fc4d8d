package ws

import "time"

// ConnInfo is the authenticated identity and channel binding of one live
// connection. It is computed once at connect time and never re-evaluated;
// a user who changes rooms keeps the stale binding until they reconnect.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	Role        string
	ChannelID   int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
