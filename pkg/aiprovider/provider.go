package aiprovider

import (
	"context"
	"strings"
)

// Completer generates a reply for a persona.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest contains parameters for a single completion call
type CompletionRequest struct {
	// PersonaKey is the backend identity key of the persona that should answer.
	PersonaKey string
	Messages   []UnifiedMessage
	// Headers are forwarded verbatim, e.g. the user and channel identifiers.
	Headers map[string]string
}

// MessageRole represents the role of a message sender
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ContentPartType identifies the type of content in a message
type ContentPartType string

const (
	ContentTypeText  ContentPartType = "text"
	ContentTypeImage ContentPartType = "image"
	ContentTypeAudio ContentPartType = "audio"
)

// ContentPart represents a single piece of content (text, image or audio)
type ContentPart struct {
	Type     ContentPartType
	Text     string
	ImageURL string
	AudioURL string
}

// UnifiedMessage is a provider-agnostic message format
type UnifiedMessage struct {
	Role    MessageRole
	Content []ContentPart
}

// Text returns the text content of a message (concatenating all text parts)
func (m *UnifiedMessage) Text() string {
	var texts []string
	for _, part := range m.Content {
		if part.Type == ContentTypeText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// HasMultimodalContent returns true if the message contains any non-text content
func (m *UnifiedMessage) HasMultimodalContent() bool {
	for _, part := range m.Content {
		switch part.Type {
		case ContentTypeImage, ContentTypeAudio:
			return true
		}
	}
	return false
}

// NewTextMessage creates a simple text message
func NewTextMessage(role MessageRole, text string) UnifiedMessage {
	return UnifiedMessage{
		Role: role,
		Content: []ContentPart{
			{Type: ContentTypeText, Text: text},
		},
	}
}

// NewMediaMessage creates a user message with a text part followed by optional
// image and audio parts. Empty URLs are skipped.
func NewMediaMessage(text, imageURL, audioURL string) UnifiedMessage {
	msg := NewTextMessage(RoleUser, text)
	if imageURL != "" {
		msg.Content = append(msg.Content, ContentPart{Type: ContentTypeImage, ImageURL: imageURL})
	}
	if audioURL != "" {
		msg.Content = append(msg.Content, ContentPart{Type: ContentTypeAudio, AudioURL: audioURL})
	}
	return msg
}
