package media

import (
	"regexp"
	"strings"
)

// DefaultMediaBase is the file server used to build URLs for attachments that only carry an ID.
const DefaultMediaBase = "https://autumn.revolt.chat"

var (
	imageSuffixRE = regexp.MustCompile(`(?i)\.(jpeg|jpg|gif|png|webp)$`)
	audioSuffixRE = regexp.MustCompile(`(?i)\.(mp3|wav|ogg|m4a)$`)
)

// Kind is the classification of an attachment.
type Kind string

const (
	KindNone  Kind = ""
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Descriptor is an inbound attachment reference as seen on the wire.
type Descriptor struct {
	ID          string
	URL         string
	Filename    string
	ContentType string
}

// Media holds at most one image and one audio reference for a completion request.
type Media struct {
	ImageURL string
	AudioURL string
}

// Empty reports whether no reference is set.
func (m *Media) Empty() bool {
	return m == nil || (m.ImageURL == "" && m.AudioURL == "")
}

// ResolveURL returns the fetchable URL for a descriptor, or "" if it has neither URL nor ID.
func ResolveURL(desc Descriptor, mediaBase string) string {
	url := strings.TrimSpace(desc.URL)
	if url == "" && desc.ID != "" {
		if mediaBase == "" {
			mediaBase = DefaultMediaBase
		}
		url = strings.TrimRight(mediaBase, "/") + "/attachments/" + desc.ID
	}
	if url != "" && !strings.HasPrefix(url, "http") {
		url = "https://" + url
	}
	return url
}

// Classify decides the kind of an attachment. The declared content type wins;
// otherwise the URL and filename suffixes are checked.
func Classify(desc Descriptor, url string) Kind {
	contentType := strings.ToLower(strings.TrimSpace(desc.ContentType))
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return KindImage
	case strings.HasPrefix(contentType, "audio/"):
		return KindAudio
	}
	for _, name := range []string{url, desc.Filename} {
		if name == "" {
			continue
		}
		if imageSuffixRE.MatchString(name) {
			return KindImage
		}
		if audioSuffixRE.MatchString(name) {
			return KindAudio
		}
	}
	return KindNone
}

// Normalize reduces a list of attachments to canonical image and audio references.
// The first attachment of each kind wins. Returns nil if nothing was classified.
func Normalize(attachments []Descriptor, mediaBase string) *Media {
	if len(attachments) == 0 {
		return nil
	}
	result := &Media{}
	for _, desc := range attachments {
		url := ResolveURL(desc, mediaBase)
		if url == "" {
			continue
		}
		switch Classify(desc, url) {
		case KindImage:
			if result.ImageURL == "" {
				result.ImageURL = url
			}
		case KindAudio:
			if result.AudioURL == "" {
				result.AudioURL = url
			}
		}
	}
	if result.Empty() {
		return nil
	}
	return result
}
