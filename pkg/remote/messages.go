package remote

import (
	"context"
	"net/url"

	"cadence/pkg/models"
)

// Messages adapts the backend message collection to the delivery pipeline's
// store interface.
type Messages struct {
	c *Client
}

// NewMessages returns a message store backed by the shared client.
func NewMessages(c *Client) *Messages { return &Messages{c: c} }

func (s *Messages) Insert(ctx context.Context, m models.Message) error {
	return s.c.doJSON(ctx, "POST", "/v1/messages", m, nil)
}

func (s *Messages) Query(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := s.c.doJSON(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (s *Messages) Delete(ctx context.Context, id string) error {
	return s.c.doJSON(ctx, "DELETE", "/v1/messages/"+url.PathEscape(id), nil, nil)
}
