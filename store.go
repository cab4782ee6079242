// Store: session-scoped caches for messages, conversations, and presence.
//
// The message page cache and the conversation cache are owned by exactly
// one Store, created at session start and cleared at session end. Every
// mutation runs to completion under the Store mutex, so handlers fired by
// concurrent fetch, mutation, and realtime callbacks never observe each
// other mid-write. Handlers always read current state under the lock
// instead of operating on snapshots captured before a network round-trip.
package linkup

import (
	"sort"
	"sync"
)

// Store holds all per-session client state: the paginated message cache
// (pages newest-first, page 0 holding the most recent messages), the
// conversation summaries, the online-user set, the currently-viewed
// conversation, and per-conversation pagination state.
type Store struct {
	mu sync.Mutex

	// pages[convID] is a list of pages; each page is newest-first, and
	// page i+1 holds strictly older messages than page i.
	pages map[string][][]Message

	conversations map[string]*Conversation
	order         []string

	online map[string]struct{}
	active string

	inflight  map[string]bool
	exhausted map[string]bool
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		pages:         make(map[string][][]Message),
		conversations: make(map[string]*Conversation),
		online:        make(map[string]struct{}),
		inflight:      make(map[string]bool),
		exhausted:     make(map[string]bool),
	}
}

// Clear drops all cached state. Called on session end.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = make(map[string][][]Message)
	s.conversations = make(map[string]*Conversation)
	s.order = nil
	s.online = make(map[string]struct{})
	s.active = ""
	s.inflight = make(map[string]bool)
	s.exhausted = make(map[string]bool)
}

// ============================================================================
// Message Page Cache
// ============================================================================

// AppendOlderPage adds page as the new last page for the conversation.
// If any message in page is already cached for the conversation the call
// is a no-op: the pagination controller is trusted not to refetch, and a
// duplicate application must not corrupt the sequence.
func (s *Store) AppendOlderPage(conversationID string, page []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range page {
		if s.findLocked(conversationID, m.ID) != nil {
			return
		}
	}

	// An older page can still carry the conversation's newest message when
	// every earlier page has been emptied by deletions, so the projection
	// keys off the newest message being absent, not off the page count.
	hadNewest := s.newestLocked(conversationID) != nil
	s.pages[conversationID] = append(s.pages[conversationID], append([]Message(nil), page...))
	if !hadNewest {
		s.projectSummaryLocked(conversationID)
	}
}

// PrependNewest inserts message at the front of page 0, creating page 0
// if the conversation has no pages yet. Used by send confirmation and by
// live-event ingestion.
func (s *Store) PrependNewest(conversationID string, message Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prependNewestLocked(conversationID, message)
	s.projectSummaryLocked(conversationID)
}

func (s *Store) prependNewestLocked(conversationID string, message Message) {
	pages := s.pages[conversationID]
	if len(pages) == 0 {
		s.pages[conversationID] = [][]Message{{message}}
		return
	}
	pages[0] = append([]Message{message}, pages[0]...)
	s.pages[conversationID] = pages
}

// Replace applies patch to the message with the given identifier, wherever
// it resides across pages. No-op if not found. The summary is recomputed
// only when the patched message is the conversation's newest.
func (s *Store) Replace(conversationID, messageID string, patch MessagePatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.findLocked(conversationID, messageID)
	if m == nil {
		return
	}

	newest := s.newestLocked(conversationID)
	wasNewest := newest != nil && newest.ID == messageID

	if patch.Text != nil {
		m.Text = *patch.Text
	}
	if patch.IsEdited != nil {
		m.IsEdited = *patch.IsEdited
	}
	if wasNewest {
		s.projectSummaryLocked(conversationID)
	}
}

// Remove deletes the message with the given identifier from whichever page
// holds it. No-op if not found. Empty pages are kept in place so page
// indices stay aligned with the fetch cursor.
func (s *Store) Remove(conversationID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newest := s.newestLocked(conversationID)
	wasNewest := newest != nil && newest.ID == messageID

	removed := false
	for pi, page := range s.pages[conversationID] {
		for mi, m := range page {
			if m.ID == messageID {
				s.pages[conversationID][pi] = append(page[:mi:mi], page[mi+1:]...)
				removed = true
				break
			}
		}
		if removed {
			break
		}
	}
	if removed && wasNewest {
		s.projectSummaryLocked(conversationID)
	}
}

// Pages returns a copy of the conversation's cached pages, newest first.
func (s *Store) Pages(conversationID string) [][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	pages := s.pages[conversationID]
	out := make([][]Message, len(pages))
	for i, p := range pages {
		out[i] = append([]Message(nil), p...)
	}
	return out
}

// NewestMessage returns the head of the conversation's cached sequence.
func (s *Store) NewestMessage(conversationID string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.newestLocked(conversationID); m != nil {
		return *m, true
	}
	return Message{}, false
}

// ConversationOf returns the conversation holding the given message.
func (s *Store) ConversationOf(messageID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for convID := range s.pages {
		if s.findLocked(convID, messageID) != nil {
			return convID, true
		}
	}
	return "", false
}

func (s *Store) findLocked(conversationID, messageID string) *Message {
	for pi, page := range s.pages[conversationID] {
		for mi := range page {
			if page[mi].ID == messageID {
				return &s.pages[conversationID][pi][mi]
			}
		}
	}
	return nil
}

// newestLocked is the first message of the first non-empty page, or nil.
func (s *Store) newestLocked(conversationID string) *Message {
	for pi, page := range s.pages[conversationID] {
		if len(page) > 0 {
			return &s.pages[conversationID][pi][0]
		}
	}
	return nil
}

// ============================================================================
// Conversation Cache
// ============================================================================

// PutConversations replaces the conversation list wholesale, preserving
// the server-returned order. Used by the initial list load.
func (s *Store) PutConversations(conversations []Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make(map[string]*Conversation, len(conversations))
	s.order = s.order[:0]
	for i := range conversations {
		c := conversations[i]
		s.conversations[c.ConversationID] = &c
		s.order = append(s.order, c.ConversationID)
	}
}

// AddConversation inserts a newly created conversation. No-op when the
// identifier is already present.
func (s *Store) AddConversation(conversation Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addConversationLocked(conversation)
}

func (s *Store) addConversationLocked(conversation Conversation) {
	if _, ok := s.conversations[conversation.ConversationID]; ok {
		return
	}
	s.conversations[conversation.ConversationID] = &conversation
	s.order = append(s.order, conversation.ConversationID)
}

// Summary returns the conversation's summary, if known.
func (s *Store) Summary(conversationID string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return Conversation{}, false
	}
	return copyConversation(c), true
}

// Conversations returns all summaries in list order.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, 0, len(s.order))
	for _, id := range s.order {
		if c, ok := s.conversations[id]; ok {
			out = append(out, copyConversation(c))
		}
	}
	return out
}

// SetRead sets the conversation's read flag.
func (s *Store) SetRead(conversationID string, read bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok {
		c.IsRead = read
	}
}

func copyConversation(c *Conversation) Conversation {
	out := *c
	if c.LastMessageSent != nil {
		preview := *c.LastMessageSent
		preview.Images = append([]string(nil), c.LastMessageSent.Images...)
		out.LastMessageSent = &preview
	}
	return out
}

// ============================================================================
// Active Conversation & Presence
// ============================================================================

// SetActiveConversation records which conversation the viewer is currently
// displaying. Pass "" when no conversation view is open.
func (s *Store) SetActiveConversation(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = conversationID
}

// ActiveConversation returns the currently displayed conversation id.
func (s *Store) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetOnlineUsers replaces the online-user set wholesale.
func (s *Store) SetOnlineUsers(userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		s.online[id] = struct{}{}
	}
}

// AddOnlineUser marks one user as online.
func (s *Store) AddOnlineUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = struct{}{}
}

// RemoveOnlineUser marks one user as offline.
func (s *Store) RemoveOnlineUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.online, userID)
}

// OnlineUserIDs returns the online-user set as a sorted slice.
func (s *Store) OnlineUserIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.online))
	for id := range s.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsOnline reports whether the given user is in the online set.
func (s *Store) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[userID]
	return ok
}

// ============================================================================
// Pagination State
// ============================================================================

// HasMore reports whether more history pages may be available for the
// conversation. True until a fetch returns a short (or empty) page.
func (s *Store) HasMore(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.exhausted[conversationID]
}

// beginLoad acquires the single in-flight fetch slot for the conversation
// and returns the next page index (1-based: pages loaded so far plus one).
// ok is false when a fetch is already pending or history is exhausted.
func (s *Store) beginLoad(conversationID string) (page int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[conversationID] || s.exhausted[conversationID] {
		return 0, false
	}
	s.inflight[conversationID] = true
	return len(s.pages[conversationID]) + 1, true
}

// abortLoad releases the in-flight slot after a failed fetch. The caches
// are left untouched.
func (s *Store) abortLoad(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[conversationID] = false
}

// endLoad releases the in-flight slot and records exhaustion when the
// fetched page was shorter than the configured page size.
func (s *Store) endLoad(conversationID string, short bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[conversationID] = false
	if short {
		s.exhausted[conversationID] = true
	}
}

// resetPagination clears the in-flight guard and the exhaustion flag.
// Called when a conversation view is entered fresh.
func (s *Store) resetPagination(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[conversationID] = false
	s.exhausted[conversationID] = false
}

// ============================================================================
// Live-Event Application
// ============================================================================

// IngestMessage applies a live-pushed message: prepend to the head of the
// conversation, recompute the summary, and set the read flag according to
// whether the viewer is currently displaying the conversation. Returns
// that read decision so the caller can acknowledge server-side.
//
// A sender never receives their own message back over the live channel,
// so no de-duplication against locally-sent messages is needed here.
func (s *Store) IngestMessage(message Message) (viewing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convID := message.ConversationID
	if _, ok := s.conversations[convID]; !ok {
		// Conversation created by the other party; seed a summary from
		// the sender so the list can render it.
		s.addConversationLocked(Conversation{
			ConversationID: convID,
			Participant:    message.Sender,
		})
	}

	s.prependNewestLocked(convID, message)
	s.projectSummaryLocked(convID)

	viewing = s.active == convID
	s.conversations[convID].IsRead = viewing
	return viewing
}
