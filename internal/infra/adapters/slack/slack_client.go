package slack

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/slack-go/slack"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/adapter"
)

var _ adapter.ChatPlatform = (*Client)(nil)

// permanentCodes are Slack error codes that no retry can fix.
var permanentCodes = map[string]bool{
	"channel_not_found":     true,
	"not_in_channel":        true,
	"user_not_in_channel":   true,
	"is_archived":           true,
	"channel_is_archived":   true,
	"user_not_found":        true,
	"account_inactive":      true,
	"cannot_dm_bot":         true,
	"messages_tab_disabled": true,
	"invalid_auth":          true,
	"not_authed":            true,
	"token_revoked":         true,
	"restricted_action":     true,
	"missing_scope":         true,
}

type Client struct {
	api *slack.Client
}

// NewClient builds a Web API client. apiURL is only set in tests.
func NewClient(botToken, apiURL string) *Client {
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &Client{api: slack.New(botToken, opts...)}
}

func (c *Client) FetchHistory(ctx context.Context, channelID, anchorTS, threadTS string, limit int) ([]model.ContextMessage, error) {
	var msgs []slack.Message
	if threadTS != "" {
		replies, _, _, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
			Latest:    anchorTS,
			Inclusive: true,
			Limit:     limit,
		})
		if err != nil {
			return nil, classify("slack.replies", err, true)
		}
		msgs = replies
	} else {
		resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: channelID,
			Latest:    anchorTS,
			Inclusive: true,
			Limit:     limit,
		})
		if err != nil {
			return nil, classify("slack.history", err, true)
		}
		msgs = resp.Messages
	}

	out := make([]model.ContextMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.SubType != "" && m.SubType != "thread_broadcast" && m.SubType != "bot_message" {
			continue
		}
		author := m.User
		if author == "" {
			author = m.BotID
		}
		out = append(out, model.ContextMessage{
			AuthorID:  author,
			Text:      m.Text,
			Timestamp: m.Timestamp,
			At:        model.ParseTimestamp(m.Timestamp),
		})
	}
	// history is newest first, replies oldest first
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (c *Client) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	_, err := c.api.PostEphemeralContext(ctx, channelID, userID, slack.MsgOptionText(text, false))
	return classify("slack.post_ephemeral", err, false)
}

func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, _, err := c.api.PostMessageContext(ctx, channelID, opts...)
	return classify("slack.post_message", err, false)
}

func (c *Client) OpenDirect(ctx context.Context, userID string) (string, error) {
	ch, _, _, err := c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{Users: []string{userID}})
	if err != nil {
		return "", classify("slack.open_conversation", err, false)
	}
	return ch.ID, nil
}

// classify turns a Slack failure into a retryable TransientError or, for
// known permanent codes, a ValidationError (reads) or permanent
// DeliveryFailure (posts).
func classify(op string, err error, read bool) error {
	if err == nil {
		return nil
	}
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return &domain.TransientError{Op: op, Err: err, RetryAfter: rl.RetryAfter}
	}
	code := errorCode(err)
	if permanentCodes[code] {
		if read {
			return domain.NewValidationError("channel_id", code)
		}
		return &domain.DeliveryFailure{Channel: "slack", Reason: code, Permanent: true, Err: err}
	}
	return &domain.TransientError{Op: op, Err: err}
}

func errorCode(err error) string {
	var se slack.SlackErrorResponse
	if errors.As(err, &se) {
		return se.Err
	}
	return strings.TrimSpace(err.Error())
}
