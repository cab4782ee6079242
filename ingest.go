package linkup

import (
	"context"
	"time"
)

// Live-event ingestion: applies realtime channel events to the session
// store. The channel dispatches one event at a time and each handler runs
// to completion, so these handlers are short synchronous steps against
// the Store, matching the other two writers (pagination and mutations).

// ackTimeout bounds the best-effort read acknowledgement triggered by a
// live message for the conversation currently in view.
const ackTimeout = 10 * time.Second

// RealtimeChannel is the subscription surface of the realtime transport.
// *RealtimeClient implements it.
type RealtimeChannel interface {
	OnOnlineUsers(func(userIDs []string))
	OnUserConnected(func(userID string))
	OnUserDisconnected(func(userID string))
	OnReceiveMessage(func(msg SocketMessage))
}

// Attach subscribes the session's event handlers to the realtime channel.
func (s *Session) Attach(ch RealtimeChannel) {
	ch.OnOnlineUsers(s.HandleOnlineUsers)
	ch.OnUserConnected(s.HandleUserConnected)
	ch.OnUserDisconnected(s.HandleUserDisconnected)
	ch.OnReceiveMessage(s.HandleReceiveMessage)
}

// HandleOnlineUsers replaces the online-user set wholesale.
func (s *Session) HandleOnlineUsers(userIDs []string) {
	s.store.SetOnlineUsers(userIDs)
}

// HandleUserConnected adds one user to the online set.
func (s *Session) HandleUserConnected(userID string) {
	s.store.AddOnlineUser(userID)
}

// HandleUserDisconnected removes one user from the online set.
func (s *Session) HandleUserDisconnected(userID string) {
	s.store.RemoveOnlineUser(userID)
}

// HandleReceiveMessage applies a message pushed by another participant:
// prepend it to the conversation head, reproject the summary, and set the
// read flag to whether the viewer is currently displaying that
// conversation. When they are, the read acknowledgement collaborator is
// invoked so server-side read state matches; its failure is logged, read
// state self-heals on the next read-triggering event.
func (s *Session) HandleReceiveMessage(msg SocketMessage) {
	viewing := s.store.IngestMessage(msg.Message)
	if !viewing {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()
	conversationID := msg.Message.ConversationID
	if err := s.api.AcknowledgeRead(ctx, conversationID); err != nil {
		s.log.Warn().Err(err).Str("conversation", conversationID).
			Msg("failed to acknowledge read")
	}
}
