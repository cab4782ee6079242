package linkup

// Summary projection: the conversation cache's last-message fields are
// always recomputed from the message page cache, never edited in place.
// The projection is the trimmed view of the newest cached message, which
// is the first message of the first non-empty page.

// projectSummaryLocked recomputes the conversation's last-message fields
// from current page-cache state. Caller must hold s.mu. No-op when the
// conversation is not in the conversation cache.
func (s *Store) projectSummaryLocked(conversationID string) {
	c, ok := s.conversations[conversationID]
	if !ok {
		return
	}

	newest := s.newestLocked(conversationID)
	if newest == nil {
		c.LastMessageSent = nil
		return
	}
	c.LastMessageSent = previewOf(*newest)
}

// previewOf trims a message down to the fields the conversation list
// renders. Images is never nil in the projection.
func previewOf(m Message) *MessagePreview {
	images := make([]string, len(m.Images))
	copy(images, m.Images)
	return &MessagePreview{
		ID:        m.ID,
		Text:      m.Text,
		Images:    images,
		CreatedAt: m.CreatedAt,
	}
}
