package media

import "testing"

func TestNormalize_Empty(t *testing.T) {
	if got := Normalize(nil, ""); got != nil {
		t.Errorf("Expected nil for no attachments, got %+v", got)
	}
}

func TestNormalize_ContentTypeImage(t *testing.T) {
	got := Normalize([]Descriptor{{ID: "abc", ContentType: "image/png"}}, "https://files.example")
	if got == nil {
		t.Fatal("Expected image reference")
	}
	if got.ImageURL != "https://files.example/attachments/abc" {
		t.Errorf("Unexpected image URL %q", got.ImageURL)
	}
	if got.AudioURL != "" {
		t.Errorf("Expected no audio URL, got %q", got.AudioURL)
	}
}

func TestNormalize_DefaultMediaBase(t *testing.T) {
	got := Normalize([]Descriptor{{ID: "abc", ContentType: "audio/ogg"}}, "")
	if got == nil || got.AudioURL != DefaultMediaBase+"/attachments/abc" {
		t.Errorf("Expected audio on default base, got %+v", got)
	}
}

func TestNormalize_SuffixFallback(t *testing.T) {
	got := Normalize([]Descriptor{
		{URL: "https://cdn.example/voice.MP3"},
		{URL: "https://cdn.example/cat.JPG"},
	}, "")
	if got == nil {
		t.Fatal("Expected classified media")
	}
	if got.ImageURL != "https://cdn.example/cat.JPG" {
		t.Errorf("Unexpected image URL %q", got.ImageURL)
	}
	if got.AudioURL != "https://cdn.example/voice.MP3" {
		t.Errorf("Unexpected audio URL %q", got.AudioURL)
	}
}

func TestNormalize_FilenameSuffix(t *testing.T) {
	got := Normalize([]Descriptor{{ID: "f1", Filename: "photo.webp"}}, "https://files.example/")
	if got == nil || got.ImageURL != "https://files.example/attachments/f1" {
		t.Errorf("Expected image from filename suffix, got %+v", got)
	}
}

func TestNormalize_FirstOfKindWins(t *testing.T) {
	got := Normalize([]Descriptor{
		{URL: "https://a.example/1.png"},
		{URL: "https://a.example/2.png"},
	}, "")
	if got.ImageURL != "https://a.example/1.png" {
		t.Errorf("Expected first image to win, got %q", got.ImageURL)
	}
}

func TestNormalize_SchemePrefixed(t *testing.T) {
	got := Normalize([]Descriptor{{URL: "cdn.example/x.gif"}}, "")
	if got == nil || got.ImageURL != "https://cdn.example/x.gif" {
		t.Errorf("Expected https prefix, got %+v", got)
	}
}

func TestNormalize_Unclassified(t *testing.T) {
	got := Normalize([]Descriptor{
		{URL: "https://a.example/doc.pdf", ContentType: "application/pdf"},
		{},
	}, "")
	if got != nil {
		t.Errorf("Expected nil for unclassified attachments, got %+v", got)
	}
}

func TestClassify_ContentTypeBeatsSuffix(t *testing.T) {
	desc := Descriptor{URL: "https://a.example/clip.png", ContentType: "audio/mpeg"}
	if kind := Classify(desc, desc.URL); kind != KindAudio {
		t.Errorf("Expected audio, got %q", kind)
	}
}
