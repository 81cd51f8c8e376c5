// Package gallery renders the static download page stored next to an order's
// generated images.
package gallery

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/fpang/order-image-pipeline/internal/assets"
)

// Title is the heading shown on every gallery page.
const Title = "Your Generated Images"

var pageTmpl = template.Must(template.New("gallery").Parse(assets.GalleryTemplate))

type image struct {
	URL    string
	Number int
}

// Render returns the HTML page listing each URL with a numbered download
// link, in the given order.
func Render(urls []string) ([]byte, error) {
	images := make([]image, 0, len(urls))
	for i, u := range urls {
		images = append(images, image{URL: u, Number: i + 1})
	}

	var buf bytes.Buffer
	err := pageTmpl.Execute(&buf, struct {
		Title  string
		Images []image
	}{Title, images})
	if err != nil {
		return nil, fmt.Errorf("failed to render gallery: %w", err)
	}
	return buf.Bytes(), nil
}
