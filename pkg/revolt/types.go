package revolt

import "github.com/beeper/persona-bridge/pkg/shared/media"

// ChannelKind is the channel_type discriminant returned by the channels endpoint.
type ChannelKind string

const (
	ChannelKindSavedMessages ChannelKind = "SavedMessages"
	ChannelKindDirectMessage ChannelKind = "DirectMessage"
	ChannelKindGroup         ChannelKind = "Group"
	ChannelKindText          ChannelKind = "TextChannel"
	ChannelKindVoice         ChannelKind = "VoiceChannel"
)

// User is the subset of a user object the bridge reads.
type User struct {
	ID            string `json:"_id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
}

// Tag renders username#discriminator, defaulting the discriminator to 0000.
func (u *User) Tag() string {
	if u == nil || u.Username == "" {
		return ""
	}
	discriminator := u.Discriminator
	if discriminator == "" {
		discriminator = "0000"
	}
	return u.Username + "#" + discriminator
}

// Channel is the subset of a channel object the bridge reads.
type Channel struct {
	ID          string      `json:"_id"`
	ChannelType ChannelKind `json:"channel_type"`
}

// Masquerade overrides the name, avatar and colour of a single message.
type Masquerade struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Colour string `json:"colour,omitempty"`
}

// AttachmentMetadata carries the file class reported by the file server.
type AttachmentMetadata struct {
	Type string `json:"type"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID          string             `json:"_id"`
	Tag         string             `json:"tag,omitempty"`
	Filename    string             `json:"filename,omitempty"`
	ContentType string             `json:"content_type,omitempty"`
	Size        int64              `json:"size,omitempty"`
	URL         string             `json:"url,omitempty"`
	Metadata    AttachmentMetadata `json:"metadata"`
}

// Descriptor converts the attachment to the normalizer's input form.
func (a Attachment) Descriptor() media.Descriptor {
	return media.Descriptor{
		ID:          a.ID,
		URL:         a.URL,
		Filename:    a.Filename,
		ContentType: a.ContentType,
	}
}

// Message is a chat message as delivered over the realtime stream or returned by REST.
type Message struct {
	ID          string       `json:"_id"`
	Channel     string       `json:"channel"`
	Author      string       `json:"author"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Replies     []string     `json:"replies,omitempty"`
	Masquerade  *Masquerade  `json:"masquerade,omitempty"`
}

// Descriptors returns the normalizer inputs for all attachments.
func (m *Message) Descriptors() []media.Descriptor {
	if len(m.Attachments) == 0 {
		return nil
	}
	out := make([]media.Descriptor, len(m.Attachments))
	for i, att := range m.Attachments {
		out[i] = att.Descriptor()
	}
	return out
}

// SendMessageParams is the body of a message creation request.
type SendMessageParams struct {
	Content    string      `json:"content"`
	Replies    []Reply     `json:"replies,omitempty"`
	Masquerade *Masquerade `json:"masquerade,omitempty"`
}

// Reply references a message being replied to.
type Reply struct {
	ID      string `json:"id"`
	Mention bool   `json:"mention"`
}

// EditSelfParams is the body of a PATCH /users/@me request.
type EditSelfParams struct {
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}
