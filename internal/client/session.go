package client

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"roomchat-service/internal/models"
)

// RestAPI is the synchronous fallback surface the session depends on.
type RestAPI interface {
	GetMessages(ctx context.Context, limit int, cursor *int64) (models.MessagePage, error)
	SendMessage(ctx context.Context, content string) (models.Message, error)
}

// LiveTransport is the push channel the session prefers for sends.
type LiveTransport interface {
	Connected() bool
	Send(frame OutboundFrame) error
}

// Session maintains the local message timeline: an ordered, id-deduplicated
// merge of paginated history, live pushes, and optimistic local sends.
//
// Wire Session to a Socket by passing HandleEvent and HandleStatus as the
// socket callbacks.
type Session struct {
	rest RestAPI
	live LiveTransport
	self models.Sender

	pageSize int

	mu           sync.Mutex
	timeline     []*TimelineEntry // chronological, oldest first
	seen         map[int64]bool
	pending      map[string]*TimelineEntry
	nextCursor   *int64
	loaded       bool
	loadingOlder bool
	nearBottom   bool
	unread       int
	status       ConnectionStatus
	deviceOnline bool
}

// NewSession constructs a Session for the given identity.
func NewSession(rest RestAPI, live LiveTransport, self models.Sender) *Session {
	return &Session{
		rest:         rest,
		live:         live,
		self:         self,
		pageSize:     30,
		seen:         make(map[int64]bool),
		pending:      make(map[string]*TimelineEntry),
		nearBottom:   true,
		status:       StatusOffline,
		deviceOnline: true,
	}
}

// LoadInitial fetches the newest page and seeds the timeline.
func (s *Session) LoadInitial(ctx context.Context) error {
	page, err := s.rest.GetMessages(ctx, s.pageSize, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Keep anything that arrived over the socket or was sent optimistically
	// while the fetch was in flight; pages merge by id, never replace.
	existing := s.timeline
	s.timeline = nil
	s.seen = make(map[int64]bool)
	for i := len(page.Items) - 1; i >= 0; i-- {
		s.appendConfirmedLocked(page.Items[i])
	}
	for _, entry := range existing {
		if entry.TempID != "" || !s.seen[entry.Message.ID] {
			s.timeline = append(s.timeline, entry)
			if entry.Message.ID != 0 {
				s.seen[entry.Message.ID] = true
			}
		}
	}
	s.nextCursor = page.NextCursor
	s.loaded = true
	return nil
}

// LoadOlder fetches the next older page and prepends it, returning how many
// entries were inserted above the fold so the caller can keep the viewport
// anchored. No-op while a fetch is in flight or when history is exhausted.
func (s *Session) LoadOlder(ctx context.Context) (int, error) {
	s.mu.Lock()
	if !s.loaded || s.loadingOlder || s.nextCursor == nil {
		s.mu.Unlock()
		return 0, nil
	}
	cursor := *s.nextCursor
	s.loadingOlder = true
	s.mu.Unlock()

	page, err := s.rest.GetMessages(ctx, s.pageSize, &cursor)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingOlder = false
	if err != nil {
		return 0, err
	}

	prepended := make([]*TimelineEntry, 0, len(page.Items))
	for i := len(page.Items) - 1; i >= 0; i-- {
		msg := page.Items[i]
		if s.seen[msg.ID] {
			continue
		}
		s.seen[msg.ID] = true
		prepended = append(prepended, &TimelineEntry{Message: msg, State: StateConfirmed})
	}
	s.timeline = append(prepended, s.timeline...)
	s.nextCursor = page.NextCursor
	return len(prepended), nil
}

// Send inserts an optimistic entry at the tail and attempts delivery,
// preferring the live channel and falling back to the REST path. A failed
// entry stays visible in state failed; it is never silently dropped.
func (s *Session) Send(ctx context.Context, content string) (*TimelineEntry, error) {
	entry := &TimelineEntry{
		TempID: uuid.NewString(),
		State:  StatePending,
		Message: models.Message{
			Content: content,
			Sender:  s.self,
		},
	}

	s.mu.Lock()
	s.timeline = append(s.timeline, entry)
	s.pending[entry.TempID] = entry
	s.mu.Unlock()

	if s.live != nil && s.live.Connected() {
		err := s.live.Send(OutboundFrame{
			Type:          "send_message",
			CorrelationID: entry.TempID,
			Content:       content,
		})
		if err == nil {
			// Confirmation arrives as the broadcast echo carrying our
			// correlation id; HandleEvent reconciles it.
			return entry, nil
		}
	}

	msg, err := s.rest.SendMessage(ctx, content)
	if err != nil {
		s.mu.Lock()
		entry.State = StateFailed
		delete(s.pending, entry.TempID)
		s.mu.Unlock()
		return entry, err
	}

	s.mu.Lock()
	s.confirmLocked(entry, msg)
	s.mu.Unlock()
	return entry, nil
}

// HandleEvent merges a server push into the timeline. Pass it as the
// socket's event callback.
func (s *Session) HandleEvent(event models.ChatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case models.EventNewMessage:
		if event.Message == nil {
			return
		}
		s.mergeIncomingLocked(event.CorrelationID, *event.Message)
	case models.EventError:
		if entry, ok := s.pending[event.CorrelationID]; ok {
			entry.State = StateFailed
			delete(s.pending, event.CorrelationID)
		}
	case models.EventAck:
		if !event.OK {
			if entry, ok := s.pending[event.CorrelationID]; ok {
				entry.State = StateFailed
				delete(s.pending, event.CorrelationID)
			}
		}
	}
}

// HandleStatus records the live transport status. Pass it as the socket's
// status callback.
func (s *Session) HandleStatus(status ConnectionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// SetNearBottom tracks whether the viewport is at the tail; returning to
// the bottom clears the unread counter.
func (s *Session) SetNearBottom(near bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nearBottom = near
	if near {
		s.unread = 0
	}
}

// SetDeviceOnline records local network availability.
func (s *Session) SetDeviceOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceOnline = online
}

// CanSend reports whether sending is currently possible: the REST fallback
// covers a down socket, but a device with no network cannot send at all.
func (s *Session) CanSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.deviceOnline {
		return false
	}
	return s.rest != nil || (s.live != nil && s.live.Connected())
}

// Messages returns a snapshot of the timeline in display order.
func (s *Session) Messages() []TimelineEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TimelineEntry, len(s.timeline))
	for i, entry := range s.timeline {
		out[i] = *entry
	}
	return out
}

// Unread returns the number of pushes that arrived while scrolled away.
func (s *Session) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Status returns the last observed connection status.
func (s *Session) Status() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// HasMore reports whether older history remains.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextCursor != nil
}

// mergeIncomingLocked reconciles one pushed message: exact match on the
// echoed correlation id first, then id-based dedupe, then the best-effort
// sender+content match for echoes without a correlation id.
func (s *Session) mergeIncomingLocked(correlationID string, msg models.Message) {
	if correlationID != "" {
		if entry, ok := s.pending[correlationID]; ok {
			s.confirmLocked(entry, msg)
			return
		}
	}

	if s.seen[msg.ID] {
		return
	}

	for _, entry := range s.timeline {
		if entry.State == StatePending &&
			entry.Message.Sender.ID == msg.Sender.ID &&
			entry.Message.Content == msg.Content {
			s.confirmLocked(entry, msg)
			return
		}
	}

	s.appendConfirmedLocked(msg)
	if !s.nearBottom {
		s.unread++
	}
}

func (s *Session) confirmLocked(entry *TimelineEntry, msg models.Message) {
	delete(s.pending, entry.TempID)
	entry.Message = msg
	entry.TempID = ""
	entry.State = StateConfirmed
	s.seen[msg.ID] = true
}

func (s *Session) appendConfirmedLocked(msg models.Message) {
	if s.seen[msg.ID] {
		return
	}
	s.seen[msg.ID] = true
	s.timeline = append(s.timeline, &TimelineEntry{Message: msg, State: StateConfirmed})
}
