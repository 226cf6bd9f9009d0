package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port"
)

const (
	receiveIDTypeEmail = "email"
	msgTypePost        = "post"
)

// messageCreator is the slice of the IM message API used by Messenger
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Messenger implements port.Notifier by posting Lark IM messages addressed by email
type Messenger struct {
	messages messageCreator
	logger   *zap.Logger
}

// NewMessenger creates a new Lark notifier
func NewMessenger(sdk *SDKClient, logger *zap.Logger) *Messenger {
	return &Messenger{
		messages: sdk.GetClient().Im.Message,
		logger:   logger,
	}
}

// Send posts msg to every address in msg.To. The first failure is returned after all sends are attempted.
func (m *Messenger) Send(ctx context.Context, msg port.Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}

	content, err := buildPostContent(msg.Subject, msg.Text)
	if err != nil {
		return err
	}

	var firstErr error
	for _, email := range msg.To {
		if _, err := m.sendPost(ctx, email, content); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Messenger) sendPost(ctx context.Context, email, content string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDTypeEmail).
		Body(newPostBody(email, content)).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", email),
			zap.Error(err))
		return "", fmt.Errorf("failed to send message to %s: %w", email, err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", email),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return "", fmt.Errorf("lark API error for %s: code=%d, msg=%s", email, resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Debug("Message sent",
		zap.String("message_id", messageID),
		zap.String("receive_id", email))
	return messageID, nil
}

// newPostBody addresses a rendered post to one email recipient.
// The built request keeps its body private, so callers inspect this value instead.
func newPostBody(email, content string) *larkim.CreateMessageReqBody {
	return larkim.NewCreateMessageReqBodyBuilder().
		ReceiveId(email).
		MsgType(msgTypePost).
		Content(content).
		Build()
}

type postElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

// buildPostContent renders a rich-text post with one paragraph per non-empty line
func buildPostContent(title, text string) (string, error) {
	var paragraphs [][]postElement
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		paragraphs = append(paragraphs, []postElement{{Tag: "text", Text: line}})
	}

	body := postBody{Title: title, Content: paragraphs}
	data, err := json.Marshal(map[string]postBody{"en_us": body})
	if err != nil {
		return "", fmt.Errorf("failed to marshal post content: %w", err)
	}
	return string(data), nil
}

// Verify interface compliance
var _ port.Notifier = (*Messenger)(nil)
