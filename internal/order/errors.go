package order

import "fmt"

// UpstreamError is a record store HTTP failure on query or write-back.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("record store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("record store %s returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// FetchError is a source image download failure.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// GenerationError is a generative API failure or a response without an image.
// Variant is the 1-based attempt that failed.
type GenerationError struct {
	Variant      int
	StatusCode   int
	FinishReason string
	Text         string
	Err          error
}

func (e *GenerationError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("variant %d: API returned status %d: %v", e.Variant, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("variant %d: %v", e.Variant, e.Err)
	default:
		return fmt.Sprintf("variant %d: no image returned in response (finish reason: %s, text: %s)",
			e.Variant, e.FinishReason, e.Text)
	}
}

func (e *GenerationError) Unwrap() error { return e.Err }

// StorageError is a blob persistence failure. Objects already written are
// left in place.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
