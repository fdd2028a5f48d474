package remote

import (
	"context"
	"net/url"

	"cadence/pkg/convmeta"
)

// Conversations adapts the backend conversation collection to the metadata
// updater's store interface. The backend applies UnreadDelta as an
// increment and MarkAsRead as a reset to zero.
type Conversations struct {
	c *Client
}

// NewConversations returns a conversation store backed by the shared client.
func NewConversations(c *Client) *Conversations { return &Conversations{c: c} }

func (s *Conversations) Update(ctx context.Context, conversationID string, fields convmeta.Fields) error {
	return s.c.doJSON(ctx, "PATCH", "/v1/conversations/"+url.PathEscape(conversationID), fields, nil)
}
