package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/chat"
)

// MaxReplyMessages is the most messages one reply token accepts.
const MaxReplyMessages = 5

// Client answers reply tokens through the Messaging API. It implements
// chat.Messenger.
type Client struct {
	api *messaging_api.MessagingApiAPI
}

// ClientConfig holds options for creating a Client.
type ClientConfig struct {
	ChannelAccessToken string
	// APIBase overrides the Messaging API origin, https://api.line.me.
	APIBase    string
	HTTPClient *http.Client
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	opts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(hc)}
	if base := strings.TrimRight(cfg.APIBase, "/"); base != "" {
		opts = append(opts, messaging_api.WithEndpoint(base))
	}
	api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LINE client: %w", err)
	}
	return &Client{api: api}, nil
}

func toMessage(m chat.Message) messaging_api.MessageInterface {
	if m.Image != nil {
		preview := m.Image.PreviewURL
		if preview == "" {
			preview = m.Image.OriginalURL
		}
		return messaging_api.ImageMessage{
			OriginalContentUrl: m.Image.OriginalURL,
			PreviewImageUrl:    preview,
		}
	}
	return messaging_api.TextMessage{Text: m.Text}
}

// Reply sends msgs as the answer to replyToken. A reply token carries at most
// MaxReplyMessages messages; extra messages are dropped with a warning.
func (c *Client) Reply(ctx context.Context, replyToken string, msgs []chat.Message) error {
	if replyToken == "" {
		return errors.New("line: empty reply token")
	}
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) > MaxReplyMessages {
		slog.Warn("line: reply truncated", "messages", len(msgs), "sent", MaxReplyMessages)
		msgs = msgs[:MaxReplyMessages]
	}

	req := &messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   make([]messaging_api.MessageInterface, 0, len(msgs)),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, toMessage(m))
	}
	if _, err := c.api.WithContext(ctx).ReplyMessage(req); err != nil {
		return fmt.Errorf("line: reply: %w", err)
	}
	return nil
}
