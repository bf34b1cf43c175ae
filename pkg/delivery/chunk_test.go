package delivery

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestSplitMessage_ShortTextUnchanged(t *testing.T) {
	for _, text := range []string{"", "hello", strings.Repeat("x", DefaultChunkLimit)} {
		chunks := SplitMessage(text, DefaultChunkLimit)
		if diff := cmp.Diff([]string{text}, chunks); diff != "" {
			t.Errorf("Unexpected chunks (-want +got):\n%s", diff)
		}
	}
}

func TestSplitMessage_PacksParagraphs(t *testing.T) {
	p1 := strings.Repeat("a", 400)
	p2 := strings.Repeat("b", 400)
	p3 := strings.Repeat("c", 400)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := SplitMessage(text, DefaultChunkLimit)
	want := []string{p1 + "\n\n" + p2, p3}
	if diff := cmp.Diff(want, chunks); diff != "" {
		t.Errorf("Unexpected chunks (-want +got):\n%s", diff)
	}
}

func TestSplitMessage_HardSplitsAtWhitespace(t *testing.T) {
	paragraph := strings.TrimSpace(strings.Repeat("word ", 500))

	chunks := SplitMessage(paragraph, 100)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if utf8.RuneCountInString(chunk) > 100 {
			t.Errorf("Chunk %d exceeds limit: %d", i, utf8.RuneCountInString(chunk))
		}
		for _, w := range strings.Fields(chunk) {
			if w != "word" {
				t.Errorf("Chunk %d split inside a word: %q", i, w)
			}
		}
	}
	if got := strings.Join(strings.Fields(strings.Join(chunks, " ")), " "); got != paragraph {
		t.Error("Hard split lost or reordered words")
	}
}

func TestSplitMessage_HardSplitsWithoutWhitespace(t *testing.T) {
	chunks := SplitMessage(strings.Repeat("x", 2500), DefaultChunkLimit)
	want := []string{strings.Repeat("x", 1000), strings.Repeat("x", 1000), strings.Repeat("x", 500)}
	if diff := cmp.Diff(want, chunks); diff != "" {
		t.Errorf("Unexpected chunks (-want +got):\n%s", diff)
	}
}

func TestSplitMessage_CountsRunes(t *testing.T) {
	text := strings.Repeat("ё", 1000)
	if chunks := SplitMessage(text, DefaultChunkLimit); len(chunks) != 1 {
		t.Errorf("Expected 1 chunk for 1000 runes, got %d", len(chunks))
	}
}

func TestSplitMessage_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(12) + 1
		paragraphs := make([]string, n)
		for i := range paragraphs {
			paragraphs[i] = strings.Repeat("p", rng.Intn(DefaultChunkLimit+1))
		}
		text := strings.Join(paragraphs, "\n\n")

		chunks := SplitMessage(text, DefaultChunkLimit)
		for i, chunk := range chunks {
			if utf8.RuneCountInString(chunk) > DefaultChunkLimit {
				t.Fatalf("Iteration %d: chunk %d exceeds limit", iter, i)
			}
		}
		if strings.Join(chunks, "\n\n") != text {
			t.Fatalf("Iteration %d: round trip failed", iter)
		}
	}
}
