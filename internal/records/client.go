// Package records provides a client for the Airtable REST API table that
// holds customer orders. It selects the orders eligible for image
// regeneration and writes generated results back onto their records.
//
// Eligibility is evaluated by Airtable itself through a filterByFormula
// expression: the record's Timestamp lies within the configured window
// (24 hours by default) and an Order_Package has been selected.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/fpang/order-image-pipeline/internal/order"
)

const (
	// defaultBaseURL is the Airtable REST API base URL.
	defaultBaseURL = "https://api.airtable.com/v0"

	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second

	// defaultWindow is how far back the eligibility filter looks.
	defaultWindow = 24 * time.Hour

	// cutoffLayout matches the ISO-8601 form Airtable formulas accept.
	cutoffLayout = "2006-01-02T15:04:05.000Z"
)

// Field names written back by the pipeline.
const (
	FieldImages          = "Image"
	FieldDownloadLink    = "Download_Link"
	FieldSecondaryUpload = "Image_Upload2"
)

// Config holds the table coordinates and credentials.
type Config struct {
	BaseURL string
	APIKey  string
	BaseID  string
	Table   string
	Window  time.Duration
	Timeout time.Duration
}

// Client queries and updates the orders table.
type Client struct {
	http   *resty.Client
	baseID string
	table  string
	window time.Duration
	now    func() time.Time
}

// NewClient creates an Airtable client for one table.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &Client{
		http:   client,
		baseID: cfg.BaseID,
		table:  cfg.Table,
		window: window,
		now:    time.Now,
	}
}

// --- API response types ---

type listResponse struct {
	Records []apiRecord `json:"records"`
	Offset  string      `json:"offset,omitempty"`
}

type apiRecord struct {
	ID          string                     `json:"id"`
	CreatedTime string                     `json:"createdTime"`
	Fields      map[string]json.RawMessage `json:"fields"`
}

type attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// EligibilityFormula returns the filterByFormula expression selecting orders
// created after cutoff that have a package selected.
func EligibilityFormula(cutoff time.Time) string {
	return fmt.Sprintf("AND(IS_AFTER({Timestamp}, '%s'), {Order_Package} != '')",
		cutoff.UTC().Format(cutoffLayout))
}

// FetchEligible returns every eligible order in the order Airtable lists
// them. Pagination cursors are followed until the result set is exhausted.
// A non-2xx response is returned as *order.UpstreamError.
func (c *Client) FetchEligible(ctx context.Context) ([]order.WorkItem, error) {
	start := time.Now()
	formula := EligibilityFormula(c.now().Add(-c.window))

	var items []order.WorkItem
	offset := ""
	pages := 0
	for {
		req := c.http.R().
			SetContext(ctx).
			SetPathParams(map[string]string{"baseId": c.baseID, "table": c.table}).
			SetQueryParam("filterByFormula", formula)
		if offset != "" {
			req.SetQueryParam("offset", offset)
		}

		resp, err := req.Get("/{baseId}/{table}")
		if err != nil {
			return nil, &order.UpstreamError{Op: "query", Err: err}
		}
		if !isSuccess(resp.StatusCode()) {
			log.Error().
				Int("status", resp.StatusCode()).
				Str("body", truncateString(string(resp.Body()), 500)).
				Msg("Record store query failed")
			return nil, &order.UpstreamError{Op: "query", StatusCode: resp.StatusCode(), Body: truncateString(string(resp.Body()), 200)}
		}

		var page listResponse
		if err := json.Unmarshal(resp.Body(), &page); err != nil {
			return nil, &order.UpstreamError{Op: "query", StatusCode: resp.StatusCode(), Err: fmt.Errorf("failed to parse response: %w", err)}
		}
		for _, rec := range page.Records {
			items = append(items, toWorkItem(rec))
		}
		pages++

		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	log.Info().
		Int("records", len(items)).
		Int("pages", pages).
		Str("formula", formula).
		Dur("duration", time.Since(start)).
		Msg("Fetched eligible records")
	return items, nil
}

// WriteResult partially updates one record with the given fields. A non-2xx
// response, or a 2xx response whose body is not JSON, is returned as
// *order.UpstreamError.
func (c *Client) WriteResult(ctx context.Context, id string, fields map[string]any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"baseId": c.baseID, "table": c.table, "id": id}).
		SetBody(map[string]any{"fields": fields}).
		Patch("/{baseId}/{table}/{id}")
	if err != nil {
		return &order.UpstreamError{Op: "update", Err: err}
	}
	if !isSuccess(resp.StatusCode()) {
		return &order.UpstreamError{Op: "update", StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	if !json.Valid(resp.Body()) {
		return &order.UpstreamError{Op: "update", StatusCode: resp.StatusCode(), Err: errors.New("response body is not JSON")}
	}

	log.Debug().Str("itemId", id).Int("fields", len(fields)).Msg("Record updated")
	return nil
}

// BatchResultFields builds the batch write-back: every variant URL into the
// images field and the gallery page URL into the download link field.
func BatchResultFields(urls []string, galleryURL string) map[string]any {
	images := make([]map[string]string, 0, len(urls))
	for _, u := range urls {
		images = append(images, map[string]string{"url": u})
	}
	return map[string]any{
		FieldImages:       images,
		FieldDownloadLink: galleryURL,
	}
}

// ManualResultFields builds the single-item write-back, which keeps only the
// first generated image as the record's reference image.
func ManualResultFields(firstURL string) map[string]any {
	return map[string]any{
		FieldSecondaryUpload: []map[string]string{{"url": firstURL}},
	}
}

// toWorkItem maps an Airtable record onto a WorkItem. Source images are the
// union of Image_Upload and Image_Upload2, de-duplicated by URL.
func toWorkItem(rec apiRecord) order.WorkItem {
	item := order.WorkItem{
		ID:       rec.ID,
		Email:    fieldString(rec.Fields["Email"]),
		UserName: fieldString(rec.Fields["User"]),
		Prompt:   fieldString(rec.Fields["Prompt"]),
	}

	if ts, err := time.Parse(time.RFC3339, fieldString(rec.Fields["Timestamp"])); err == nil {
		item.CreatedAt = ts
	} else if ts, err := time.Parse(time.RFC3339, rec.CreatedTime); err == nil {
		item.CreatedAt = ts
	}

	seen := make(map[string]bool)
	for _, name := range []string{"Image_Upload", "Image_Upload2"} {
		for _, a := range fieldAttachments(rec.Fields[name]) {
			if a.URL != "" && seen[a.URL] {
				continue
			}
			seen[a.URL] = true
			filename := a.Filename
			if filename == "" {
				filename = "image_" + strconv.Itoa(len(item.SourceImages)+1) + ".jpg"
			}
			item.SourceImages = append(item.SourceImages, order.SourceImage{URL: a.URL, Filename: filename})
		}
	}
	return item
}

// fieldString reads a text field. Lookup and multi-select fields arrive as
// arrays; the first string element is used.
func fieldString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

func fieldAttachments(raw json.RawMessage) []attachment {
	if len(raw) == 0 {
		return nil
	}
	var list []attachment
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// truncateString shortens a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
