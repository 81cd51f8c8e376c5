package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fpang/order-image-pipeline/internal/blob"
	"github.com/fpang/order-image-pipeline/internal/events"
	"github.com/fpang/order-image-pipeline/internal/imagegen"
	"github.com/fpang/order-image-pipeline/internal/order"
	"github.com/fpang/order-image-pipeline/internal/processor"
)

type write struct {
	id     string
	fields map[string]any
}

type fakeRecords struct {
	items    []order.WorkItem
	fetchErr error
	writeErr map[string]error

	fetches int
	writes  []write
}

func (f *fakeRecords) FetchEligible(context.Context) ([]order.WorkItem, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.items, nil
}

func (f *fakeRecords) WriteResult(_ context.Context, id string, fields map[string]any) error {
	f.writes = append(f.writes, write{id, fields})
	return f.writeErr[id]
}

// mapFetcher serves source bytes by URL; unknown URLs fail with 404.
type mapFetcher struct {
	data  map[string]string
	calls int
}

func (f *mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls++
	if b, ok := f.data[url]; ok {
		return []byte(b), nil
	}
	return nil, &order.FetchError{URL: url, StatusCode: http.StatusNotFound}
}

// storingGenerator writes one object per variant into the store, or fails
// for sources listed in fail.
type storingGenerator struct {
	store blob.Store
	fail  map[string]bool

	mu    sync.Mutex
	calls int
	stamp int64
}

func (g *storingGenerator) Generate(ctx context.Context, req imagegen.Request) ([]order.GeneratedVariant, error) {
	g.mu.Lock()
	g.calls++
	g.stamp++
	stamp := g.stamp
	g.mu.Unlock()

	if g.fail[string(req.Source)] {
		return nil, &order.GenerationError{Variant: 1, StatusCode: 503, Err: errors.New("model overloaded")}
	}
	count := imagegen.ClampVariantCount(req.VariantCount)
	var out []order.GeneratedVariant
	for i := 1; i <= count; i++ {
		key := blob.VariantKey(req.Owner, stamp, i, count)
		if err := g.store.Put(ctx, key, req.Source, blob.ContentTypeJPEG); err != nil {
			return out, err
		}
		out = append(out, order.GeneratedVariant{SourceImageIndex: req.SourceIndex, Key: key, URL: g.store.URL(key)})
	}
	return out, nil
}

// panickingProcessor panics for one item ID and delegates otherwise.
type panickingProcessor struct {
	next    ItemProcessor
	panicOn string
}

func (p *panickingProcessor) Process(ctx context.Context, item order.WorkItem, opts processor.Options) order.ItemResult {
	if item.ID == p.panicOn {
		panic("nil map write")
	}
	return p.next.Process(ctx, item, opts)
}

type fakeHistory struct {
	runs []order.RunReport
	err  error
}

func (f *fakeHistory) PutRun(_ context.Context, r order.RunReport) error {
	f.runs = append(f.runs, r)
	return f.err
}

type fakeEvents struct {
	published []events.OrderImagesGenerated
	err       error
}

func (f *fakeEvents) PublishGenerated(_ context.Context, evs []events.OrderImagesGenerated) error {
	f.published = append(f.published, evs...)
	return f.err
}

type fakeNotifier struct {
	email, user string
	links       []string
	calls       int
	err         error
}

func (f *fakeNotifier) PhotosReady(_ context.Context, email, user string, links []string) error {
	f.calls++
	f.email, f.user, f.links = email, user, links
	return f.err
}

type failingBlobs struct{ *blob.MemoryStore }

func (failingBlobs) Put(_ context.Context, key string, _ []byte, _ string) error {
	return &order.StorageError{Key: key, Err: errors.New("bucket unavailable")}
}

// harness wires a real processor to in-memory collaborators.
type harness struct {
	records   *fakeRecords
	fetcher   *mapFetcher
	generator *storingGenerator
	blobs     *blob.MemoryStore
	history   *fakeHistory
	events    *fakeEvents
	notifier  *fakeNotifier
	orch      *Orchestrator
}

var runStart = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newHarness(items ...order.WorkItem) *harness {
	h := &harness{
		records:  &fakeRecords{items: items, writeErr: map[string]error{}},
		fetcher:  &mapFetcher{data: map[string]string{}},
		blobs:    blob.NewMemoryStore("https://cdn.example.com"),
		history:  &fakeHistory{},
		events:   &fakeEvents{},
		notifier: &fakeNotifier{},
	}
	h.generator = &storingGenerator{store: h.blobs, fail: map[string]bool{}}
	for _, item := range items {
		for _, img := range item.SourceImages {
			h.fetcher.data[img.URL] = "bytes:" + img.URL
		}
	}
	h.build(processor.New(h.fetcher, h.generator, 1), h.blobs, true)
	return h
}

func (h *harness) build(proc ItemProcessor, blobs blob.Store, enabled bool) {
	h.orch = New(h.records, proc, blobs, Config{
		Enabled: enabled,
		Options: processor.Options{DefaultPrompt: "Studio", UseDefault: true, VariantCount: 2},
		Trigger: "test",
	}, WithHistory(h.history), WithEvents(h.events), WithNotifier(h.notifier))

	tick := 0
	h.orch.now = func() time.Time {
		tick++
		return runStart.Add(time.Duration(tick) * time.Second)
	}
	runs := 0
	h.orch.newRunID = func() string {
		runs++
		return fmt.Sprintf("run-%d", runs)
	}
}

func item(id, email string, urls ...string) order.WorkItem {
	it := order.WorkItem{ID: id, Email: email, UserName: "", Prompt: "pizza"}
	for i, u := range urls {
		it.SourceImages = append(it.SourceImages, order.SourceImage{URL: u, Filename: fmt.Sprintf("image_%d.jpg", i+1)})
	}
	return it
}
