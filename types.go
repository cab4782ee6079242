package linkup

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Domain Types
// ============================================================================

// Sender identifies the author of a message.
type Sender struct {
	UserID         string `json:"userId"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// Message is a single chat message as returned by the LinkUp API.
//
// The identifier and timestamp are assigned by the server. Text and the
// edited flag change via edit; everything else is immutable.
type Message struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
	ConversationID string    `json:"conversationId"`
	Images         []string  `json:"images,omitempty"`
	IsReply        bool      `json:"isReply,omitempty"`
	ParentMessage  *Message  `json:"parentMessage,omitempty"`
	Sender         Sender    `json:"sender"`
	IsEdited       bool      `json:"isEdited,omitempty"`
}

// MessagePreview is the denormalized last-message projection carried on a
// conversation summary. Derived from the message cache; never the source
// of truth for message content.
type MessagePreview struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Images    []string  `json:"images"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is one entry of the conversation list: the other party,
// the last message sent (absent when the thread is empty), and whether
// the local user has seen that last message.
type Conversation struct {
	ConversationID  string          `json:"conversationId"`
	Participant     Sender          `json:"participant"`
	LastMessageSent *MessagePreview `json:"lastMessageSent,omitempty"`
	IsRead          bool            `json:"isRead"`
}

// MessagePatch is a partial update applied to a cached message. Nil fields
// are left untouched.
type MessagePatch struct {
	Text     *string
	IsEdited *bool
}

// ============================================================================
// Realtime Wire Types
// ============================================================================

// SocketMessage is the payload of the send-message / receive-message
// realtime events: one message addressed to one recipient.
type SocketMessage struct {
	RecipientID    string  `json:"recipientId"`
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
}

// Envelope is the wire format for all realtime events.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Realtime event names.
const (
	EventOnlineUsers      = "online-users"
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
	EventReceiveMessage   = "receive-message"
	EventSendMessage      = "send-message"
)
