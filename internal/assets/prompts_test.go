package assets

import (
	"strings"
	"testing"
)

func TestDefaultFoodPrompt_Trimmed(t *testing.T) {
	p := DefaultFoodPrompt()
	if p == "" {
		t.Fatal("default prompt is empty")
	}
	if strings.HasSuffix(p, "\n") {
		t.Error("default prompt should not end with a newline")
	}
	if !strings.Contains(p, "Food-Fotografie") {
		t.Errorf("unexpected default prompt: %q", p)
	}
}

func TestRenderGenerationInstruction(t *testing.T) {
	got := RenderGenerationInstruction("crispy fries")
	want := "Generate a high-quality food photography image based on this input image and description. Output parameters: Resolution 1920x1080 (Full HD), Format JPEG. Description: crispy fries"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestRenderGenerationInstruction_NoEscaping(t *testing.T) {
	got := RenderGenerationInstruction(`"Pasta" & <sauce>`)
	if !strings.HasSuffix(got, `Description: "Pasta" & <sauce>`) {
		t.Errorf("prompt text should be passed through verbatim, got %q", got)
	}
}

func TestRenderNotifyEmail(t *testing.T) {
	body := RenderNotifyEmail("Anna", []string{"https://cdn/a.jpg", "https://cdn/b.jpg"})

	for _, want := range []string{
		"Hi Anna,",
		"Image 1: https://cdn/a.jpg",
		"Image 2: https://cdn/b.jpg",
		"The Automation Team",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("email body missing %q:\n%s", want, body)
		}
	}
}

func TestGalleryTemplate_Embedded(t *testing.T) {
	if !strings.Contains(GalleryTemplate, "{{range .Images}}") && !strings.Contains(GalleryTemplate, "{{- range .Images}}") {
		t.Error("gallery template should range over Images")
	}
}
