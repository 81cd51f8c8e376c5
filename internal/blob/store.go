// Package blob persists generated images and gallery pages to an
// S3-compatible object store (Cloudflare R2 in production) and maps object
// keys to their public URLs.
package blob

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fpang/order-image-pipeline/internal/order"
)

// Content types written by the pipeline. Generated images are always stored
// as JPEG regardless of what the image model reports.
const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypeHTML = "text/html"
)

// Store is the object store used by the pipeline.
type Store interface {
	// Put writes data under key. Failures are returned as *order.StorageError.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// URL returns the public URL for key.
	URL(key string) string
}

// OwnerPrefix returns the per-customer key prefix "<sanitized-owner>_gen/".
func OwnerPrefix(owner string) string {
	return order.SanitizeOwner(owner) + "_gen/"
}

// VariantKey returns the object key for one generated variant. The index is
// 1-based and omitted when only one variant is requested.
func VariantKey(owner string, stamp int64, index, count int) string {
	if count == 1 {
		return fmt.Sprintf("%sgemini_%d.jpg", OwnerPrefix(owner), stamp)
	}
	return fmt.Sprintf("%sgemini_%d_%d.jpg", OwnerPrefix(owner), stamp, index)
}

// GalleryKey returns the object key for an order's download page.
func GalleryKey(owner string, stamp int64) string {
	return fmt.Sprintf("%sdownload_%d.html", OwnerPrefix(owner), stamp)
}

// publicURL joins a public base URL and a key with exactly one slash.
func publicURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}

// Object is one entry held by a MemoryStore.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore is an in-process Store used for dry runs and tests.
type MemoryStore struct {
	base string

	mu      sync.Mutex
	objects map[string]Object
	keys    []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore whose URLs start with base.
func NewMemoryStore(base string) *MemoryStore {
	return &MemoryStore{base: base, objects: make(map[string]Object)}
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.objects[key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return nil
}

func (m *MemoryStore) URL(key string) string {
	return publicURL(m.base, key)
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return o, ok
}

// Keys returns every stored key in first-write order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}
