// Package order defines the data model shared by the regeneration pipeline:
// the work items read from the record store, the variants produced for them,
// per-item results, and the aggregate run report.
package order

import (
	"regexp"
	"time"
)

// Status is the terminal state of one processed work item.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusEmpty   Status = "empty"
	StatusFailed  Status = "failed"
)

// SourceImage is one customer-uploaded image attached to a work item.
type SourceImage struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// WorkItem is one order record eligible for image regeneration.
// The pipeline treats it as read-only.
type WorkItem struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	UserName     string        `json:"user"`
	Prompt       string        `json:"prompt"`
	SourceImages []SourceImage `json:"sourceImages"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// GeneratedVariant is one image produced from a single source image.
type GeneratedVariant struct {
	SourceImageIndex int    `json:"sourceImageIndex"`
	Key              string `json:"key"`
	URL              string `json:"url"`
}

// ImageError records the failure of one source image within an item.
type ImageError struct {
	Index   int    `json:"index"`
	Image   string `json:"image"`
	Message string `json:"message"`
}

// ItemResult is the outcome of processing one WorkItem.
type ItemResult struct {
	Status      Status             `json:"status"`
	Prompt      string             `json:"prompt,omitempty"`
	Variants    []GeneratedVariant `json:"variants"`
	ImageErrors []ImageError       `json:"imageErrors,omitempty"`
}

// URLs returns the public URL of every variant in order.
func (r ItemResult) URLs() []string {
	urls := make([]string, 0, len(r.Variants))
	for _, v := range r.Variants {
		urls = append(urls, v.URL)
	}
	return urls
}

// TerminalStatus derives the item status from what image processing produced.
// It is only meaningful for items that had at least one source image.
func TerminalStatus(variants int, imageErrors int) Status {
	switch {
	case variants == 0:
		return StatusFailed
	case imageErrors > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

// EffectivePrompt combines the configured default prompt with the item's own
// prompt. With useDefault the default comes first, joined by ". " only when
// the item prompt is non-empty.
func EffectivePrompt(defaultPrompt, itemPrompt string, useDefault bool) string {
	if !useDefault || defaultPrompt == "" {
		return itemPrompt
	}
	if itemPrompt == "" {
		return defaultPrompt
	}
	return defaultPrompt + ". " + itemPrompt
}

var unsafeOwnerChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SanitizeOwner turns a customer e-mail into a blob path segment by replacing
// every character outside [A-Za-z0-9] with "_". An empty owner maps to
// "anonymous".
func SanitizeOwner(owner string) string {
	if owner == "" {
		return "anonymous"
	}
	return unsafeOwnerChars.ReplaceAllString(owner, "_")
}
