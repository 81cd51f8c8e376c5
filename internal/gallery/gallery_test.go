package gallery

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	page, err := Render([]string{"https://cdn/a_gen/gemini_1_1.jpg", "https://cdn/a_gen/gemini_1_2.jpg"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := string(page)

	for _, want := range []string{
		"<title>Your Generated Images</title>",
		`<img src="https://cdn/a_gen/gemini_1_1.jpg" alt="Generated Image 1"`,
		`<a href="https://cdn/a_gen/gemini_1_2.jpg" class="download-btn" download>Download Image 2</a>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Index(html, "Image 1") > strings.Index(html, "Image 2") {
		t.Error("images should be listed in order")
	}
}

func TestRender_EscapesURLs(t *testing.T) {
	page, err := Render([]string{`https://cdn/x.jpg"><script>alert(1)</script>`})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(string(page), "<script>") {
		t.Errorf("URL was not escaped: %s", page)
	}
}
