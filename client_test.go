package linkup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMessagePage(t *testing.T) {
	msgID := uuid.NewString()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/linkup/messages", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		q := r.URL.Query()
		require.Equal(t, "c1", q.Get("conversationId"))
		require.Equal(t, "2", q.Get("page"))
		require.Equal(t, "20", q.Get("limit"))

		json.NewEncoder(w).Encode(map[string]any{
			"messages": []Message{{
				ID:             msgID,
				Text:           "hello",
				ConversationID: "c1",
				CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
				Sender:         Sender{UserID: "u2", FirstName: "Dana"},
			}},
		})
	}))
	defer server.Close()

	c := NewClient("tok-1", WithBaseURL(server.URL))
	messages, err := c.FetchMessagePage(context.Background(), "c1", 2, 20)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, msgID, messages[0].ID)
	assert.Equal(t, "hello", messages[0].Text)
}

func TestSubmitNewMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/linkup/messages/new", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "hello", body["text"])
		require.Equal(t, "c1", body["conversationId"])

		json.NewEncoder(w).Encode(Message{
			ID:             uuid.NewString(),
			Text:           body["text"],
			ConversationID: body["conversationId"],
			CreatedAt:      time.Now().UTC(),
		})
	}))
	defer server.Close()

	c := NewClient("tok-1", WithBaseURL(server.URL))
	msg, err := c.SubmitNewMessage(context.Background(), "c1", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "hello", msg.Text)
}

func TestSubmitEditAndDelete(t *testing.T) {
	msgID := uuid.NewString()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			require.Equal(t, "/linkup/messages/"+msgID, r.URL.Path)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			json.NewEncoder(w).Encode(Message{ID: msgID, Text: body["text"], ConversationID: "c1", IsEdited: true})
		case http.MethodDelete:
			require.Equal(t, "/linkup/messages/"+msgID, r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{"messageId": msgID})
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	c := NewClient("tok-1", WithBaseURL(server.URL))

	msg, err := c.SubmitEditMessage(context.Background(), msgID, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", msg.Text)
	assert.True(t, msg.IsEdited)

	deletedID, err := c.SubmitDeleteMessage(context.Background(), msgID)
	require.NoError(t, err)
	assert.Equal(t, msgID, deletedID)
}

func TestConversationEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/linkup/conversations":
			json.NewEncoder(w).Encode(map[string]any{
				"conversations": []Conversation{
					{ConversationID: "c1", Participant: Sender{UserID: "u2"}},
				},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/linkup/conversations/new":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(Conversation{
				ConversationID: "c2",
				Participant:    Sender{UserID: body["participant"]},
			})
		case r.Method == http.MethodPut && r.URL.Path == "/linkup/conversations/c1/read":
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewClient("tok-1", WithBaseURL(server.URL))
	ctx := context.Background()

	conversations, err := c.FetchConversations(ctx)
	require.NoError(t, err)
	require.Len(t, conversations, 1)

	created, err := c.CreateConversation(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, "u3", created.Participant.UserID)

	require.NoError(t, c.AcknowledgeRead(ctx, "c1"))
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"401 is unauthenticated", http.StatusUnauthorized, `{"error":"token expired"}`, IsUnauthenticated},
		{"403 is unauthenticated", http.StatusForbidden, `{}`, IsUnauthenticated},
		{"422 is validation", http.StatusUnprocessableEntity, `{"error":"text too long"}`, IsValidation},
		{"500 is network", http.StatusInternalServerError, ``, IsNetwork},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer server.Close()

			c := NewClient("tok-1", WithBaseURL(server.URL))
			_, err := c.FetchMessagePage(context.Background(), "c1", 1, 20)
			require.Error(t, err)
			assert.True(t, tc.check(err), "wrong kind for %v", err)

			var ae *APIError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tc.status, ae.StatusCode)
		})
	}

	t.Run("connection failure is network", func(t *testing.T) {
		c := NewClient("tok-1", WithBaseURL("http://127.0.0.1:1"), WithTimeout(time.Second))
		_, err := c.FetchMessagePage(context.Background(), "c1", 1, 20)
		require.Error(t, err)
		assert.True(t, IsNetwork(err))
	})

	t.Run("validation message is surfaced", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"text too long"}`)
		}))
		defer server.Close()

		c := NewClient("tok-1", WithBaseURL(server.URL))
		_, err := c.SubmitNewMessage(context.Background(), "c1", "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "text too long")
	})
}

func TestSetToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"messages": []Message{}})
	}))
	defer server.Close()

	c := NewClient("tok-old", WithBaseURL(server.URL))
	c.SetToken("tok-new")

	_, err := c.FetchMessagePage(context.Background(), "c1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-new", gotAuth)
}
