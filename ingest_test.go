package linkup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func socketMsg(id, convID string, minutes int) SocketMessage {
	return SocketMessage{
		RecipientID:    "u1",
		ConversationID: convID,
		Message:        msgAt(id, convID, minutes),
	}
}

func TestHandleReceiveMessage(t *testing.T) {
	t.Run("inactive conversation: unread, no ack", func(t *testing.T) {
		api := &fakeAPI{}
		s := seedSession(api)
		s.SetActiveConversation("other")

		s.HandleReceiveMessage(socketMsg("m1", "c1", 10))

		summary, ok := s.Summary("c1")
		require.True(t, ok)
		assert.False(t, summary.IsRead)
		require.NotNil(t, summary.LastMessageSent)
		assert.Equal(t, "m1", summary.LastMessageSent.ID)
		assert.Equal(t, 0, api.ackCalls)

		pages := s.Pages("c1")
		require.Len(t, pages, 1)
		assert.Equal(t, "m1", pages[0][0].ID)
	})

	t.Run("active conversation: read, acked exactly once", func(t *testing.T) {
		api := &fakeAPI{}
		s := seedSession(api)
		s.SetActiveConversation("c1")

		s.HandleReceiveMessage(socketMsg("m1", "c1", 10))

		summary, _ := s.Summary("c1")
		assert.True(t, summary.IsRead)
		assert.Equal(t, 1, api.ackCalls)
	})

	t.Run("ack failure is logged, not fatal", func(t *testing.T) {
		api := &fakeAPI{
			ackRead: func(conversationID string) error {
				return &APIError{Kind: KindNetwork, Message: "boom"}
			},
		}
		s := seedSession(api)
		s.SetActiveConversation("c1")

		s.HandleReceiveMessage(socketMsg("m1", "c1", 10))

		// The local read flag still reflects that the viewer saw it.
		summary, _ := s.Summary("c1")
		assert.True(t, summary.IsRead)
		assert.Equal(t, "m1", s.Pages("c1")[0][0].ID)
	})

	t.Run("messages stack newest-first at the head", func(t *testing.T) {
		s := seedSession(&fakeAPI{})
		s.Store().AppendOlderPage("c1", []Message{msgAt("m1", "c1", 10)})

		s.HandleReceiveMessage(socketMsg("m2", "c1", 20))
		s.HandleReceiveMessage(socketMsg("m3", "c1", 30))

		pages := s.Pages("c1")
		assert.Equal(t, []string{"m3", "m2", "m1"}, idsOf(pages[0]))
		requireOrdered(t, pages)

		summary, _ := s.Summary("c1")
		assert.Equal(t, "m3", summary.LastMessageSent.ID)
	})

	t.Run("unknown conversation gets a summary seeded from the sender", func(t *testing.T) {
		s := NewSession(&fakeAPI{})

		s.HandleReceiveMessage(socketMsg("m1", "c9", 10))

		summary, ok := s.Summary("c9")
		require.True(t, ok)
		assert.Equal(t, "u2", summary.Participant.UserID)
		assert.False(t, summary.IsRead)
	})
}

func TestPresenceHandlers(t *testing.T) {
	s := NewSession(&fakeAPI{})

	s.HandleOnlineUsers([]string{"u2", "u3"})
	assert.Equal(t, []string{"u2", "u3"}, s.OnlineUserIDs())

	s.HandleUserConnected("u4")
	s.HandleUserDisconnected("u2")
	assert.Equal(t, []string{"u3", "u4"}, s.OnlineUserIDs())

	// Full set replaces wholesale.
	s.HandleOnlineUsers([]string{"u9"})
	assert.Equal(t, []string{"u9"}, s.OnlineUserIDs())
}

func TestAttachSubscribesAllEvents(t *testing.T) {
	s := NewSession(&fakeAPI{})
	rt := NewRealtimeClient("http://localhost:8000", &RealtimeConfig{UserID: "u1"})
	s.Attach(rt)

	rt.dispatcher.dispatch(Envelope{Event: EventOnlineUsers, Data: []byte(`["u2"]`)})
	rt.dispatcher.dispatch(Envelope{Event: EventUserConnected, Data: []byte(`"u3"`)})
	assert.Equal(t, []string{"u2", "u3"}, s.OnlineUserIDs())

	rt.dispatcher.dispatch(Envelope{
		Event: EventReceiveMessage,
		Data:  []byte(`{"recipientId":"u1","conversationId":"c1","message":{"id":"m1","text":"hey","conversationId":"c1","createdAt":"2026-03-01T12:10:00Z","sender":{"userId":"u2","firstName":"Dana"}}}`),
	})
	pages := s.Pages("c1")
	require.Len(t, pages, 1)
	assert.Equal(t, "hey", pages[0][0].Text)

	rt.dispatcher.dispatch(Envelope{Event: EventUserDisconnected, Data: []byte(`"u2"`)})
	assert.Equal(t, []string{"u3"}, s.OnlineUserIDs())
}
