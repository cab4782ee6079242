package linkup

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// ============================================================================
// Collaborator Interfaces
// ============================================================================

// MessageAPI is the backing-store collaborator the session synchronizes
// against. *Client implements it; tests substitute fakes.
type MessageAPI interface {
	FetchMessagePage(ctx context.Context, conversationID string, page, limit int) ([]Message, error)
	SubmitNewMessage(ctx context.Context, conversationID, text string) (*Message, error)
	SubmitEditMessage(ctx context.Context, messageID, text string) (*Message, error)
	SubmitDeleteMessage(ctx context.Context, messageID string) (string, error)
	FetchConversations(ctx context.Context) ([]Conversation, error)
	CreateConversation(ctx context.Context, participantID string) (*Conversation, error)
	AcknowledgeRead(ctx context.Context, conversationID string) error
}

// MessagePublisher pushes a confirmed outgoing message onto the realtime
// channel so the recipient's client can apply it. *RealtimeClient
// implements it.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, msg SocketMessage) error
}

// ============================================================================
// Session
// ============================================================================

// Session is the synchronization core for one authenticated session. It
// owns the Store and reconciles three writers into it: paginated history
// fetches (LoadMore), confirmed local mutations (Send, Edit, Delete), and
// live events (see ingest.go). Create one at login, Close it at logout.
type Session struct {
	api       MessageAPI
	store     *Store
	publisher MessagePublisher
	log       zerolog.Logger
	pageSize  int
}

type SessionOption func(*Session)

// WithPageSize overrides the history page size (default 20). Fixed for
// the session lifetime; the fetch cursor arithmetic depends on it.
func WithPageSize(size int) SessionOption {
	return func(s *Session) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithPublisher attaches the realtime channel used to forward confirmed
// sends to the recipient. Without one, sends still succeed locally.
func WithPublisher(p MessagePublisher) SessionOption {
	return func(s *Session) { s.publisher = p }
}

// WithSessionLogger sets the session logger (default no-op).
func WithSessionLogger(log zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// NewSession creates a session around the given API collaborator.
func NewSession(api MessageAPI, opts ...SessionOption) *Session {
	s := &Session{
		api:      api,
		store:    NewStore(),
		log:      zerolog.Nop(),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the session's caches for read access and for wiring the
// view layer.
func (s *Session) Store() *Store {
	return s.store
}

// Close clears all cached session state.
func (s *Session) Close() {
	s.store.Clear()
}

// ============================================================================
// Read Accessors
// ============================================================================

// Pages returns the cached history pages for a conversation, newest first.
func (s *Session) Pages(conversationID string) [][]Message {
	return s.store.Pages(conversationID)
}

// Summary returns the conversation's summary, if known.
func (s *Session) Summary(conversationID string) (Conversation, bool) {
	return s.store.Summary(conversationID)
}

// Conversations returns all conversation summaries in list order.
func (s *Session) Conversations() []Conversation {
	return s.store.Conversations()
}

// OnlineUserIDs returns the ids of currently connected users.
func (s *Session) OnlineUserIDs() []string {
	return s.store.OnlineUserIDs()
}

// HasMore reports whether more history may be available for a conversation.
func (s *Session) HasMore(conversationID string) bool {
	return s.store.HasMore(conversationID)
}

// SetActiveConversation records which conversation the viewer is
// displaying; live-event read acknowledgement keys off it. Pass "" when
// leaving the conversation view.
func (s *Session) SetActiveConversation(conversationID string) {
	s.store.SetActiveConversation(conversationID)
}

// EnterConversation marks the conversation as the active view and resets
// its pagination guards, so a fresh visit can fetch again even after a
// previous visit saw the end of history.
func (s *Session) EnterConversation(conversationID string) {
	s.store.resetPagination(conversationID)
	s.store.SetActiveConversation(conversationID)
}

// ============================================================================
// Pagination Controller
// ============================================================================

// LoadMore fetches the next history page for the conversation and appends
// it to the cache. The fetch cursor is "pages loaded plus one" against the
// API's page/limit semantics. At most one fetch is in flight per
// conversation; a call while one is pending is ignored, not queued. A
// short or empty page marks history exhausted and later calls become
// no-ops until EnterConversation resets the state.
//
// On failure nothing is cached; Unauthenticated errors mean the caller
// should leave the private view, other errors may be retried by calling
// LoadMore again.
func (s *Session) LoadMore(ctx context.Context, conversationID string) error {
	page, ok := s.store.beginLoad(conversationID)
	if !ok {
		return nil
	}

	messages, err := s.api.FetchMessagePage(ctx, conversationID, page, s.pageSize)
	if err != nil {
		s.store.abortLoad(conversationID)
		return err
	}

	s.store.AppendOlderPage(conversationID, messages)
	s.store.endLoad(conversationID, len(messages) < s.pageSize)

	// Viewing the history counts as reading the conversation.
	s.store.SetRead(conversationID, true)
	return nil
}

// ============================================================================
// Mutation Coordinator
// ============================================================================
//
// Mutations are applied to the cache only after the store confirms them.
// That trades a little perceived latency for never needing a rollback
// path: a failed submission leaves both caches exactly as they were.

// Send submits a new message and, once the store confirms it, prepends
// the confirmed message (server id and timestamp) to the conversation
// head, reprojects the summary, and forwards the message to the recipient
// over the realtime channel. The sender's own cache is only ever mutated
// here, never by the realtime channel, so no duplicate insertion can
// occur. Empty (after trimming) text fails fast with ErrEmptyMessage and
// performs no network call.
func (s *Session) Send(ctx context.Context, conversationID, recipientID, text string) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := s.api.SubmitNewMessage(ctx, conversationID, text)
	if err != nil {
		return nil, err
	}

	s.store.PrependNewest(conversationID, *msg)

	if s.publisher != nil {
		if err := s.publisher.PublishMessage(ctx, SocketMessage{
			RecipientID:    recipientID,
			ConversationID: conversationID,
			Message:        *msg,
		}); err != nil {
			// The message is confirmed and cached; the recipient will
			// see it on their next history fetch.
			s.log.Warn().Err(err).Str("conversation", conversationID).
				Msg("failed to publish message to realtime channel")
		}
	}
	return msg, nil
}

// Edit submits a text change for a message and, on confirmation, patches
// the cached copy (new text, edited flag). Editing the conversation's
// newest message updates the summary text; the summary's identifier and
// timestamp are unchanged.
func (s *Session) Edit(ctx context.Context, messageID, text string) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := s.api.SubmitEditMessage(ctx, messageID, text)
	if err != nil {
		return nil, err
	}

	conversationID := msg.ConversationID
	if conversationID == "" {
		// Older servers return a bare confirmation; locate the message
		// in the cache instead.
		conversationID, _ = s.store.ConversationOf(messageID)
	}

	edited := true
	s.store.Replace(conversationID, messageID, MessagePatch{
		Text:     &text,
		IsEdited: &edited,
	})
	return msg, nil
}

// Delete submits a message deletion and, on confirmation, removes the
// cached copy. Deleting the conversation's newest message reprojects the
// summary from the remaining cache: the next newest message, or no last
// message when the conversation is now empty.
func (s *Session) Delete(ctx context.Context, messageID string) error {
	deletedID, err := s.api.SubmitDeleteMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if deletedID == "" {
		deletedID = messageID
	}

	conversationID, ok := s.store.ConversationOf(deletedID)
	if !ok {
		return nil
	}
	s.store.Remove(conversationID, deletedID)
	return nil
}

// ============================================================================
// Conversation List
// ============================================================================

// LoadConversations fetches the conversation list and replaces the
// conversation cache wholesale.
func (s *Session) LoadConversations(ctx context.Context) ([]Conversation, error) {
	conversations, err := s.api.FetchConversations(ctx)
	if err != nil {
		return nil, err
	}
	s.store.PutConversations(conversations)
	return conversations, nil
}

// CreateConversation starts a conversation with the given participant and
// adds it to the cache unless it is already listed.
func (s *Session) CreateConversation(ctx context.Context, participantID string) (*Conversation, error) {
	conv, err := s.api.CreateConversation(ctx, participantID)
	if err != nil {
		return nil, err
	}
	s.store.AddConversation(*conv)
	return conv, nil
}

// MarkRead acknowledges the conversation's latest message server-side and
// flips the local read flag. Read state is best-effort and self-heals on
// the next read-triggering event, so failures are logged, not surfaced.
func (s *Session) MarkRead(ctx context.Context, conversationID string) {
	if err := s.api.AcknowledgeRead(ctx, conversationID); err != nil {
		s.log.Warn().Err(err).Str("conversation", conversationID).
			Msg("failed to acknowledge read")
		return
	}
	s.store.SetRead(conversationID, true)
}
