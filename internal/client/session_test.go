package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat-service/internal/models"
)

// fakeRest serves pages from a fixed newest-first history and records sends.
type fakeRest struct {
	history []models.Message // newest first
	nextID  int64
	sendErr error
	sent    []string
}

func (f *fakeRest) GetMessages(_ context.Context, limit int, cursor *int64) (models.MessagePage, error) {
	start := 0
	if cursor != nil {
		for i, msg := range f.history {
			if msg.ID == *cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(f.history) {
		end = len(f.history)
	}
	items := f.history[start:end]

	page := models.MessagePage{Items: items}
	if len(items) == limit {
		last := items[len(items)-1].ID
		page.NextCursor = &last
	}
	return page, nil
}

func (f *fakeRest) SendMessage(_ context.Context, content string) (models.Message, error) {
	if f.sendErr != nil {
		return models.Message{}, f.sendErr
	}
	f.sent = append(f.sent, content)
	f.nextID++
	return models.Message{ID: 100 + f.nextID, Content: content, Sender: models.Sender{ID: 1, Username: "alice"}}, nil
}

type fakeLive struct {
	connected bool
	sendErr   error
	frames    []OutboundFrame
}

func (f *fakeLive) Connected() bool { return f.connected }

func (f *fakeLive) Send(frame OutboundFrame) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, frame)
	return nil
}

func historyOf(ids ...int64) []models.Message {
	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Message{ID: id, Content: "m", Sender: models.Sender{ID: 2, Username: "bob"}})
	}
	return out
}

func timelineIDs(s *Session) []int64 {
	entries := s.Messages()
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Message.ID)
	}
	return ids
}

func newTestSession(rest RestAPI, live LiveTransport) *Session {
	s := NewSession(rest, live, models.Sender{ID: 1, Username: "alice", Role: "CITIZEN"})
	s.pageSize = 2
	return s
}

func TestLoadInitialChronologicalOrder(t *testing.T) {
	rest := &fakeRest{history: historyOf(5, 4, 3)}
	s := newTestSession(rest, nil)

	require.NoError(t, s.LoadInitial(context.Background()))

	assert.Equal(t, []int64{4, 5}, timelineIDs(s))
	assert.True(t, s.HasMore())
}

func TestLoadOlderWalksHistory(t *testing.T) {
	rest := &fakeRest{history: historyOf(5, 4, 3, 2, 1)}
	s := newTestSession(rest, nil)

	require.NoError(t, s.LoadInitial(context.Background()))
	assert.Equal(t, []int64{4, 5}, timelineIDs(s))

	n, err := s.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{2, 3, 4, 5}, timelineIDs(s))
	assert.True(t, s.HasMore())

	n, err = s.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, timelineIDs(s))
	assert.False(t, s.HasMore())

	// Exhausted history is a no-op.
	n, err = s.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadOlderSkipsAlreadySeen(t *testing.T) {
	rest := &fakeRest{history: historyOf(5, 4, 3, 2)}
	s := newTestSession(rest, nil)
	require.NoError(t, s.LoadInitial(context.Background()))

	// Message 3 arrives over the socket before the older page lands.
	s.HandleEvent(models.ChatEvent{Type: models.EventNewMessage, Message: &models.Message{ID: 3, Sender: models.Sender{ID: 2}}})

	n, err := s.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the unseen message is prepended")

	ids := timelineIDs(s)
	counts := map[int64]int{}
	for _, id := range ids {
		counts[id]++
	}
	assert.Equal(t, 1, counts[3], "no duplicate for message 3")
}

func TestSendRestFallbackConfirms(t *testing.T) {
	rest := &fakeRest{}
	s := newTestSession(rest, nil)

	entry, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)

	entries := s.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, StateConfirmed, entries[0].State)
	assert.Empty(t, entries[0].TempID)
	assert.Equal(t, int64(101), entries[0].Message.ID)
	assert.Equal(t, StateConfirmed, entry.State)
	assert.Equal(t, []string{"hello"}, rest.sent)
}

func TestSendRestFailureKeepsFailedEntry(t *testing.T) {
	rest := &fakeRest{sendErr: errors.New("boom")}
	s := newTestSession(rest, nil)

	entry, err := s.Send(context.Background(), "hello")
	require.Error(t, err)

	entries := s.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, StateFailed, entries[0].State)
	assert.Equal(t, "hello", entries[0].Message.Content)
	assert.Equal(t, StateFailed, entry.State)
}

func TestSendLiveReconcilesByCorrelationID(t *testing.T) {
	live := &fakeLive{connected: true}
	s := newTestSession(&fakeRest{}, live)

	entry, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, live.frames, 1)
	assert.Equal(t, "send_message", live.frames[0].Type)
	assert.Equal(t, entry.TempID, live.frames[0].CorrelationID)
	assert.Equal(t, StatePending, s.Messages()[0].State)

	// The broadcast echo carries the correlation id and the stored message.
	s.HandleEvent(models.ChatEvent{
		Type:          models.EventNewMessage,
		CorrelationID: live.frames[0].CorrelationID,
		Message:       &models.Message{ID: 42, Content: "hello", Sender: models.Sender{ID: 1, Username: "alice"}},
	})

	entries := s.Messages()
	require.Len(t, entries, 1, "echo replaces the optimistic entry, no duplicate")
	assert.Equal(t, StateConfirmed, entries[0].State)
	assert.Equal(t, int64(42), entries[0].Message.ID)
}

func TestEchoWithoutCorrelationIDMatchesPendingByContent(t *testing.T) {
	live := &fakeLive{connected: true}
	s := newTestSession(&fakeRest{}, live)

	_, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)

	s.HandleEvent(models.ChatEvent{
		Type:    models.EventNewMessage,
		Message: &models.Message{ID: 42, Content: "hello", Sender: models.Sender{ID: 1, Username: "alice"}},
	})

	entries := s.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, StateConfirmed, entries[0].State)
	assert.Equal(t, int64(42), entries[0].Message.ID)
}

func TestErrorEventMarksPendingFailed(t *testing.T) {
	live := &fakeLive{connected: true}
	s := newTestSession(&fakeRest{}, live)

	entry, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)

	s.HandleEvent(models.ChatEvent{Type: models.EventError, CorrelationID: entry.TempID, Error: "content must not be empty"})

	entries := s.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, StateFailed, entries[0].State)
}

func TestNegativeAckMarksPendingFailed(t *testing.T) {
	live := &fakeLive{connected: true}
	s := newTestSession(&fakeRest{}, live)

	entry, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)

	s.HandleEvent(models.ChatEvent{Type: models.EventAck, OK: false, CorrelationID: entry.TempID})
	assert.Equal(t, StateFailed, s.Messages()[0].State)
}

func TestDuplicatePushIsIgnored(t *testing.T) {
	s := newTestSession(&fakeRest{}, nil)

	msg := models.Message{ID: 7, Content: "hi", Sender: models.Sender{ID: 2}}
	s.HandleEvent(models.ChatEvent{Type: models.EventNewMessage, Message: &msg})
	s.HandleEvent(models.ChatEvent{Type: models.EventNewMessage, Message: &msg})

	assert.Len(t, s.Messages(), 1)
}

func TestUnreadCounter(t *testing.T) {
	s := newTestSession(&fakeRest{}, nil)
	s.SetNearBottom(false)

	for i := int64(1); i <= 3; i++ {
		s.HandleEvent(models.ChatEvent{Type: models.EventNewMessage, Message: &models.Message{ID: i, Sender: models.Sender{ID: 2}}})
	}
	assert.Equal(t, 3, s.Unread())

	s.SetNearBottom(true)
	assert.Zero(t, s.Unread())

	// At the bottom, arrivals do not accumulate.
	s.HandleEvent(models.ChatEvent{Type: models.EventNewMessage, Message: &models.Message{ID: 4, Sender: models.Sender{ID: 2}}})
	assert.Zero(t, s.Unread())
}

func TestCanSend(t *testing.T) {
	live := &fakeLive{connected: false}
	s := newTestSession(&fakeRest{}, live)

	assert.True(t, s.CanSend(), "rest fallback covers a down socket")

	s.SetDeviceOnline(false)
	assert.False(t, s.CanSend(), "no network means no sending at all")

	s.SetDeviceOnline(true)
	assert.True(t, s.CanSend())

	liveOnly := newTestSession(nil, live)
	assert.False(t, liveOnly.CanSend())
	live.connected = true
	assert.True(t, liveOnly.CanSend())
}

func TestHandleStatus(t *testing.T) {
	s := newTestSession(&fakeRest{}, nil)
	assert.Equal(t, StatusOffline, s.Status())

	s.HandleStatus(StatusLive)
	assert.Equal(t, StatusLive, s.Status())

	s.HandleStatus(StatusReconnecting)
	assert.Equal(t, StatusReconnecting, s.Status())
}

func TestLoadInitialKeepsConcurrentArrivals(t *testing.T) {
	rest := &fakeRest{history: historyOf(5, 4)}
	s := newTestSession(rest, nil)

	// A push lands before the initial page resolves.
	s.HandleEvent(models.ChatEvent{Type: models.EventNewMessage, Message: &models.Message{ID: 6, Sender: models.Sender{ID: 2}}})

	require.NoError(t, s.LoadInitial(context.Background()))
	assert.Equal(t, []int64{4, 5, 6}, timelineIDs(s))
}
