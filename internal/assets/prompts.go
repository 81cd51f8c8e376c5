// Package assets provides embedded static assets for the application.
//
// Prompt text and page templates are stored as files under prompts/ and
// templates/ and embedded at compile time so deployments ship a single binary.
package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

// --- Static prompts (no dynamic data) ---

//go:embed prompts/default-food-prompt.txt
var defaultFoodPrompt string

// DefaultFoodPrompt returns the built-in food photography style prompt that is
// prepended to each order's own prompt when no DEFAULT_FOOD_PROMPT override is
// configured.
func DefaultFoodPrompt() string {
	return strings.TrimSpace(defaultFoodPrompt)
}

// GalleryTemplate is the html/template source for the per-order download page.
// It is parsed by the gallery package, which owns HTML escaping.
//
//go:embed templates/gallery.html
var GalleryTemplate string

// --- Dynamic prompts (text/template) ---

//go:embed prompts/generation-instruction.txt
var generationInstructionTemplate string

//go:embed prompts/notify-email.txt
var notifyEmailTemplate string

var (
	generationTmpl = template.Must(template.New("generation").Parse(generationInstructionTemplate))
	notifyTmpl     = template.Must(template.New("notify").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).Parse(notifyEmailTemplate))
)

// RenderGenerationInstruction wraps the effective order prompt in the fixed
// instruction sent with every source image to the image model.
func RenderGenerationInstruction(prompt string) string {
	return strings.TrimSpace(renderTemplate(generationTmpl, struct{ Prompt string }{prompt}))
}

// NotifyEmailSubject is the subject line of the customer notification e-mail.
const NotifyEmailSubject = "Your High-End AI Food Photos are Ready! 📸✨"

// RenderNotifyEmail renders the plain-text customer notification body listing
// one numbered line per download link.
func RenderNotifyEmail(user string, links []string) string {
	return renderTemplate(notifyTmpl, struct {
		User  string
		Links []string
	}{user, links})
}

// renderTemplate executes a pre-parsed template with the given data.
func renderTemplate(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	// Template execution errors are not expected with our simple templates,
	// but we handle them gracefully by returning whatever was rendered.
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}
