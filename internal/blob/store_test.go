package blob

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fpang/order-image-pipeline/internal/order"
)

func TestVariantKey(t *testing.T) {
	tests := []struct {
		name         string
		owner        string
		index, count int
		want         string
	}{
		{"single variant has no suffix", "anna@example.com", 1, 1, "anna_example_com_gen/gemini_1700000000000.jpg"},
		{"two variants", "anna@example.com", 2, 2, "anna_example_com_gen/gemini_1700000000000_2.jpg"},
		{"four variants", "anna@example.com", 4, 4, "anna_example_com_gen/gemini_1700000000000_4.jpg"},
		{"anonymous owner", "", 1, 2, "anonymous_gen/gemini_1700000000000_1.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VariantKey(tt.owner, 1700000000000, tt.index, tt.count); got != tt.want {
				t.Errorf("VariantKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGalleryKey(t *testing.T) {
	if got := GalleryKey("a.b@c.de", 42); got != "a_b_c_de_gen/download_42.html" {
		t.Errorf("GalleryKey = %q", got)
	}
}

func TestPublicURL(t *testing.T) {
	for _, base := range []string{"https://cdn.example.com", "https://cdn.example.com/"} {
		if got := publicURL(base, "x_gen/a.jpg"); got != "https://cdn.example.com/x_gen/a.jpg" {
			t.Errorf("publicURL(%q) = %q", base, got)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore("https://cdn/")
	ctx := context.Background()
	m.Put(ctx, "b", []byte("2"), ContentTypeJPEG)
	m.Put(ctx, "a", []byte("1"), ContentTypeHTML)
	m.Put(ctx, "b", []byte("3"), ContentTypeJPEG)

	keys := m.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Errorf("Keys() = %v, want [b a]", keys)
	}
	obj, ok := m.Get("b")
	if !ok || string(obj.Data) != "3" || obj.ContentType != ContentTypeJPEG {
		t.Errorf("Get(b) = %+v, %v", obj, ok)
	}
	if m.URL("a") != "https://cdn/a" {
		t.Errorf("URL = %q", m.URL("a"))
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	fake := &fakeS3{}
	store := newS3Store(fake, S3Config{Bucket: "images", PublicURL: "https://pub.r2.dev/", Tagging: "Project=x"})

	if err := store.Put(context.Background(), "k_gen/a.jpg", []byte("jpeg"), ContentTypeJPEG); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if aws.ToString(fake.input.Bucket) != "images" || aws.ToString(fake.input.Key) != "k_gen/a.jpg" {
		t.Errorf("unexpected target %s/%s", aws.ToString(fake.input.Bucket), aws.ToString(fake.input.Key))
	}
	if aws.ToString(fake.input.ContentType) != ContentTypeJPEG {
		t.Errorf("ContentType = %s", aws.ToString(fake.input.ContentType))
	}
	if aws.ToInt64(fake.input.ContentLength) != 4 || string(fake.body) != "jpeg" {
		t.Errorf("body = %q len %d", fake.body, aws.ToInt64(fake.input.ContentLength))
	}
	if aws.ToString(fake.input.Tagging) != "Project=x" {
		t.Errorf("Tagging = %s", aws.ToString(fake.input.Tagging))
	}
	if store.URL("k_gen/a.jpg") != "https://pub.r2.dev/k_gen/a.jpg" {
		t.Errorf("URL = %s", store.URL("k_gen/a.jpg"))
	}
}

func TestS3Store_PutNoTagging(t *testing.T) {
	fake := &fakeS3{}
	store := newS3Store(fake, S3Config{Bucket: "images"})
	store.Put(context.Background(), "k", []byte("x"), ContentTypeHTML)
	if fake.input.Tagging != nil {
		t.Errorf("Tagging should be unset, got %s", aws.ToString(fake.input.Tagging))
	}
}

func TestS3Store_PutError(t *testing.T) {
	cause := errors.New("AccessDenied")
	store := newS3Store(&fakeS3{err: cause}, S3Config{Bucket: "images"})

	err := store.Put(context.Background(), "k", []byte("x"), ContentTypeJPEG)
	var se *order.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %T: %v", err, err)
	}
	if se.Key != "k" || !errors.Is(err, cause) {
		t.Errorf("unexpected error: %v", err)
	}
}
