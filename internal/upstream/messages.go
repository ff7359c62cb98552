package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/vnmchuo/usage-meter/internal/message"
)

// MessageSource fetches the current billing period's raw messages.
type MessageSource struct {
	client
	url string
}

type messagesResponse struct {
	Messages []message.Record `json:"messages"`
}

func NewMessageSource(url string, timeout time.Duration) *MessageSource {
	return &MessageSource{
		client: newClient(timeout, 4*timeout),
		url:    url,
	}
}

// Fetch returns the raw message records in upstream order. Any failure wraps
// ErrUnavailable: partial message data cannot be trusted.
func (s *MessageSource) Fetch(ctx context.Context) ([]message.Record, error) {
	var resp messagesResponse
	if err := s.getJSON(ctx, s.url, &resp); err != nil {
		return nil, fmt.Errorf("%w: fetching messages: %v", ErrUnavailable, err)
	}
	return resp.Messages, nil
}
