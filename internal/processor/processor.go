// Package processor turns one work item into generated variants. Each source
// image is fetched and regenerated independently: a failure on one image is
// recorded against that image and never stops the others.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/order-image-pipeline/internal/imagegen"
	"github.com/fpang/order-image-pipeline/internal/order"
)

// Generator produces variants for one source image. It may return completed
// variants together with an error.
type Generator interface {
	Generate(ctx context.Context, req imagegen.Request) ([]order.GeneratedVariant, error)
}

// Options are the per-run generation settings.
type Options struct {
	DefaultPrompt string
	UseDefault    bool
	VariantCount  int
}

// Processor runs the fetch and generate steps for the images of an item.
type Processor struct {
	fetcher     Fetcher
	generator   Generator
	concurrency int
}

// New creates a Processor. concurrency bounds how many source images of one
// item are worked on at once; values below 1 mean strictly sequential.
func New(fetcher Fetcher, generator Generator, concurrency int) *Processor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Processor{fetcher: fetcher, generator: generator, concurrency: concurrency}
}

// imageOutcome is the slot filled by one source image.
type imageOutcome struct {
	variants []order.GeneratedVariant
	err      error
}

// Process handles every source image of item and derives the item status.
// It does not return an error: image failures are reported in
// ItemResult.ImageErrors in source order.
func (p *Processor) Process(ctx context.Context, item order.WorkItem, opts Options) order.ItemResult {
	prompt := order.EffectivePrompt(opts.DefaultPrompt, item.Prompt, opts.UseDefault)
	result := order.ItemResult{
		Prompt:   prompt,
		Variants: []order.GeneratedVariant{},
	}

	logger := log.With().Str("itemId", item.ID).Str("email", item.Email).Logger()
	if len(item.SourceImages) == 0 {
		logger.Info().Msg("Item has no source images, skipping")
		result.Status = order.StatusEmpty
		return result
	}

	start := time.Now()
	outcomes := make([]imageOutcome, len(item.SourceImages))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, img := range item.SourceImages {
		g.Go(func() error {
			outcomes[i] = p.processImage(ctx, item, i, img, prompt, opts.VariantCount)
			return nil
		})
	}
	g.Wait()

	for i, o := range outcomes {
		result.Variants = append(result.Variants, o.variants...)
		if o.err != nil {
			result.ImageErrors = append(result.ImageErrors, order.ImageError{
				Index:   i,
				Image:   item.SourceImages[i].Filename,
				Message: o.err.Error(),
			})
		}
	}
	result.Status = order.TerminalStatus(len(result.Variants), len(result.ImageErrors))

	logger.Info().
		Str("status", string(result.Status)).
		Int("images", len(item.SourceImages)).
		Int("variants", len(result.Variants)).
		Int("imageErrors", len(result.ImageErrors)).
		Dur("duration", time.Since(start)).
		Msg("Item processed")
	return result
}

func (p *Processor) processImage(ctx context.Context, item order.WorkItem, index int, img order.SourceImage, prompt string, variantCount int) (out imageOutcome) {
	logger := log.With().
		Str("itemId", item.ID).
		Int("sourceIndex", index).
		Str("image", img.Filename).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Recovered panic while processing image")
			out.err = fmt.Errorf("panic: %v", r)
		}
	}()

	data, err := p.fetcher.Fetch(ctx, img.URL)
	if err != nil {
		logger.Warn().Err(err).Msg("Source image fetch failed")
		return imageOutcome{err: err}
	}
	logger.Debug().Int("bytes", len(data)).Msg("Source image fetched")

	variants, err := p.generator.Generate(ctx, imagegen.Request{
		Source:       data,
		Prompt:       prompt,
		VariantCount: variantCount,
		Owner:        item.Email,
		SourceIndex:  index,
	})
	if err != nil {
		logger.Warn().Err(err).Int("keptVariants", len(variants)).Msg("Image generation failed")
	}
	return imageOutcome{variants: variants, err: err}
}
