package delivery

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkLimit is the maximum length of one outbound message, in characters.
const DefaultChunkLimit = 1000

const paragraphBreak = "\n\n"

// SplitMessage splits text into chunks of at most limit characters.
//
// Paragraphs (separated by a blank line) are packed greedily. A paragraph that
// alone exceeds the limit is hard-split at the last whitespace at or before the
// limit, or at the limit if there is none. When no paragraph exceeds the limit,
// strings.Join(chunks, "\n\n") == text.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current string
	started := false
	for _, paragraph := range strings.Split(text, paragraphBreak) {
		if started && runeLen(current)+len(paragraphBreak)+runeLen(paragraph) <= limit {
			current += paragraphBreak + paragraph
			continue
		}
		if started {
			chunks = append(chunks, current)
		}
		current, started = paragraph, true
		for runeLen(current) > limit {
			var head string
			head, current = hardSplit(current, limit)
			if head != "" {
				chunks = append(chunks, head)
			}
		}
	}
	if started {
		chunks = append(chunks, current)
	}
	return chunks
}

// hardSplit cuts an oversized paragraph at the last whitespace at or before
// limit. The returned remainder has its leading whitespace trimmed.
func hardSplit(paragraph string, limit int) (head, rest string) {
	runes := []rune(paragraph)
	cut := -1
	for i := limit; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	if cut <= 0 {
		cut = limit
	}
	return string(runes[:cut]), strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
