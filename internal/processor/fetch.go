package processor

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fpang/order-image-pipeline/internal/order"
)

// defaultFetchTimeout bounds a single source image download.
const defaultFetchTimeout = 60 * time.Second

// Fetcher downloads source image bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads source images with a plain GET. Attachment URLs are
// pre-signed, so no credentials are sent.
type HTTPFetcher struct {
	client *resty.Client
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher. A zero timeout uses the default.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPFetcher{
		client: resty.New().SetTimeout(timeout),
	}
}

// Fetch returns the response body. A transport failure, a non-2xx status or
// an empty URL is returned as *order.FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, &order.FetchError{Err: errors.New("empty URL")}
	}
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, &order.FetchError{URL: url, Err: err}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &order.FetchError{URL: url, StatusCode: resp.StatusCode()}
	}
	return resp.Body(), nil
}
