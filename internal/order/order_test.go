package order

import (
	"errors"
	"fmt"
	"testing"
)

func TestEffectivePrompt(t *testing.T) {
	tests := []struct {
		name       string
		def        string
		item       string
		useDefault bool
		want       string
	}{
		{"default and item", "Studio light", "Pizza", true, "Studio light. Pizza"},
		{"default only", "Studio light", "", true, "Studio light"},
		{"default disabled", "Studio light", "Pizza", false, "Pizza"},
		{"default disabled empty item", "Studio light", "", false, ""},
		{"empty default", "", "Pizza", true, "Pizza"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectivePrompt(tt.def, tt.item, tt.useDefault); got != tt.want {
				t.Errorf("EffectivePrompt(%q, %q, %v) = %q, want %q", tt.def, tt.item, tt.useDefault, got, tt.want)
			}
		})
	}
}

func TestSanitizeOwner(t *testing.T) {
	tests := map[string]string{
		"anna.maier@example.com": "anna_maier_example_com",
		"":                       "anonymous",
		"Bob+Ü@x.de":             "Bob___x_de",
		"plain123":               "plain123",
	}
	for in, want := range tests {
		if got := SanitizeOwner(in); got != want {
			t.Errorf("SanitizeOwner(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTerminalStatus(t *testing.T) {
	tests := []struct {
		variants, errs int
		want           Status
	}{
		{0, 0, StatusFailed},
		{0, 3, StatusFailed},
		{2, 1, StatusPartial},
		{4, 0, StatusSuccess},
	}
	for _, tt := range tests {
		if got := TerminalStatus(tt.variants, tt.errs); got != tt.want {
			t.Errorf("TerminalStatus(%d, %d) = %s, want %s", tt.variants, tt.errs, got, tt.want)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		err  error
		want string
	}{
		{&UpstreamError{Op: "query", StatusCode: 422, Body: "INVALID_FILTER"}, "record store query returned status 422: INVALID_FILTER"},
		{&UpstreamError{Op: "update", Err: base}, "record store update: boom"},
		{&FetchError{URL: "https://x/a.jpg", StatusCode: 404}, "fetch https://x/a.jpg: status 404"},
		{&GenerationError{Variant: 2, FinishReason: "SAFETY", Text: "sorry"}, "variant 2: no image returned in response (finish reason: SAFETY, text: sorry)"},
		{&GenerationError{Variant: 1, StatusCode: 429, Err: base}, "variant 1: API returned status 429: boom"},
		{&StorageError{Key: "a_gen/x.jpg", Err: base}, "store a_gen/x.jpg: boom"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestErrorsUnwrap(t *testing.T) {
	base := errors.New("root cause")
	wrapped := fmt.Errorf("image 1: %w", &StorageError{Key: "k", Err: base})

	var se *StorageError
	if !errors.As(wrapped, &se) {
		t.Fatal("expected errors.As to find StorageError")
	}
	if !errors.Is(wrapped, base) {
		t.Error("expected errors.Is to reach the root cause")
	}
}

func TestItemResult_URLs(t *testing.T) {
	r := ItemResult{Variants: []GeneratedVariant{{URL: "u1"}, {URL: "u2"}}}
	urls := r.URLs()
	if len(urls) != 2 || urls[0] != "u1" || urls[1] != "u2" {
		t.Errorf("URLs() = %v", urls)
	}
}
