package revolt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/beeper/persona-bridge/pkg/shared/httputil"
)

const (
	DefaultAPIURL    = "https://api.revolt.chat"
	DefaultStreamURL = "wss://ws.revolt.chat"

	tokenHeader       = "x-bot-token"
	idempotencyHeader = "Idempotency-Key"
)

// Client performs authenticated REST calls against the chat API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a REST client. An empty baseURL uses DefaultAPIURL.
func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("component", "revolt_rest").Logger(),
	}
}

// Token returns the bot token, used by the realtime stream to authenticate.
func (c *Client) Token() string {
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any, extraHeaders map[string]string) error {
	headers := httputil.MergeHeaders(map[string]string{tokenHeader: c.token}, extraHeaders)
	data, _, err := httputil.DoJSON(ctx, c.http, method, c.baseURL+path, headers, payload)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err = json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Self fetches the authenticated bot user.
func (c *Client) Self(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/@me", nil, &user, nil); err != nil {
		return nil, err
	}
	return &user, nil
}

// User fetches a user by ID.
func (c *Client) User(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &user, nil); err != nil {
		return nil, err
	}
	return &user, nil
}

// DisplayName returns username#discriminator for a user, or the ID itself if
// the lookup fails or the user has no username.
func (c *Client) DisplayName(ctx context.Context, userID string) string {
	user, err := c.User(ctx, userID)
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to fetch user, using ID as display name")
		return userID
	}
	if tag := user.Tag(); tag != "" {
		return tag
	}
	return userID
}

// ChannelKind returns the channel type of a channel.
func (c *Client) ChannelKind(ctx context.Context, channelID string) (ChannelKind, error) {
	var channel Channel
	if err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID), nil, &channel, nil); err != nil {
		return "", err
	}
	return channel.ChannelType, nil
}

// SendMessage posts a message to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID string, params SendMessageParams) (*Message, error) {
	var msg Message
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	headers := map[string]string{idempotencyHeader: uuid.NewString()}
	if err := c.do(ctx, http.MethodPost, path, params, &msg, headers); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("message creation in %s returned no ID", channelID)
	}
	return &msg, nil
}

func reactionPath(channelID, messageID, emoji string) string {
	return "/channels/" + url.PathEscape(channelID) +
		"/messages/" + url.PathEscape(messageID) +
		"/reactions/" + url.PathEscape(emoji)
}

// AddReaction reacts to a message with an emoji.
func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return c.do(ctx, http.MethodPut, reactionPath(channelID, messageID, emoji), nil, nil, nil)
}

// RemoveReaction removes a specific user's reaction from a message.
func (c *Client) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	path := reactionPath(channelID, messageID, emoji)
	if userID != "" {
		path += "?user_id=" + url.QueryEscape(userID)
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// EditSelf changes the bot's own display name and avatar.
func (c *Client) EditSelf(ctx context.Context, params EditSelfParams) error {
	return c.do(ctx, http.MethodPatch, "/users/@me", params, nil, nil)
}
