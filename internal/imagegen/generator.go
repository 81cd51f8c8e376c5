// Package imagegen produces regenerated food photography variants from a
// source image with the Gemini image model and persists each variant to the
// blob store.
//
// Variants are requested one at a time. A failed request ends the call for
// that source image but keeps every variant already stored, so callers may
// receive fewer variants than requested together with a *order.GenerationError.
package imagegen

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/fpang/order-image-pipeline/internal/assets"
	"github.com/fpang/order-image-pipeline/internal/blob"
	"github.com/fpang/order-image-pipeline/internal/order"
)

// DefaultModel is the Gemini model used for image regeneration.
const DefaultModel = "gemini-3-pro-image-preview"

// DefaultImageSize is the output resolution tier.
const DefaultImageSize = "2K"

// allowedVariantCounts are the variant counts the pipeline accepts.
var allowedVariantCounts = map[int]bool{1: true, 2: true, 4: true}

// ClampVariantCount maps a requested count onto {1, 2, 4}; anything else
// becomes 2.
func ClampVariantCount(n int) int {
	if allowedVariantCounts[n] {
		return n
	}
	return 2
}

// contentGenerator is the subset of *genai.Models used by Generator.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config tunes the model request.
type Config struct {
	Model     string
	ImageSize string
	// AspectRatio is a fixed ratio such as "16:9", or AspectAuto to follow
	// the source image.
	AspectRatio string
	// RateInterval is the minimum spacing between model calls across all
	// goroutines sharing the Generator. Zero disables the limiter.
	RateInterval time.Duration
}

// Request describes one source image to regenerate.
type Request struct {
	Source       []byte
	Prompt       string
	VariantCount int
	Owner        string
	SourceIndex  int
}

// Generator calls the image model and stores its output.
type Generator struct {
	models      contentGenerator
	store       blob.Store
	model       string
	imageSize   string
	aspectRatio string
	limiter     *rate.Limiter
	clock       *stampClock
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// New creates a Generator using the client's Models service.
func New(client *genai.Client, store blob.Store, cfg Config) *Generator {
	return newGenerator(client.Models, store, cfg)
}

func newGenerator(models contentGenerator, store blob.Store, cfg Config) *Generator {
	g := &Generator{
		models:      models,
		store:       store,
		model:       cfg.Model,
		imageSize:   cfg.ImageSize,
		aspectRatio: cfg.AspectRatio,
		clock:       newStampClock(time.Now),
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.imageSize == "" {
		g.imageSize = DefaultImageSize
	}
	if g.aspectRatio == "" {
		g.aspectRatio = DefaultAspectRatio
	}
	if cfg.RateInterval > 0 {
		g.limiter = rate.NewLimiter(rate.Every(cfg.RateInterval), 1)
	}
	return g
}

// Generate produces req.VariantCount (clamped) variants of one source image.
// Each variant is stored as image/jpeg under
// "<owner>_gen/gemini_<stamp>[_<i>].jpg".
func (g *Generator) Generate(ctx context.Context, req Request) ([]order.GeneratedVariant, error) {
	count := ClampVariantCount(req.VariantCount)
	src := PrepareSource(req.Source)
	aspect := g.aspectRatio
	if aspect == AspectAuto {
		aspect = AspectRatio(src.Width, src.Height)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(assets.RenderGenerationInstruction(req.Prompt)),
			genai.NewPartFromBytes(src.Data, src.MIMEType),
		}, genai.RoleUser),
	}
	config := g.requestConfig(aspect)
	stamp := g.clock.Next()

	logger := log.With().
		Str("owner", req.Owner).
		Int("sourceIndex", req.SourceIndex).
		Str("model", g.model).
		Logger()
	logger.Info().
		Int("variants", count).
		Int("sourceBytes", len(src.Data)).
		Str("sourceMime", src.MIMEType).
		Str("aspectRatio", aspect).
		Msg("Generating image variants")

	variants := make([]order.GeneratedVariant, 0, count)
	for i := 1; i <= count; i++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return variants, &order.GenerationError{Variant: i, Err: err}
			}
		}

		start := time.Now()
		resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			logger.Error().Err(err).Int("variant", i).Msg("Image model call failed")
			return variants, generationError(i, err)
		}

		data, mimeType, text, finish := extractImage(resp)
		if data == nil {
			logger.Warn().Int("variant", i).Str("finishReason", finish).Msg("Image model returned no image")
			return variants, &order.GenerationError{Variant: i, FinishReason: finish, Text: truncateString(text, 200)}
		}

		key := blob.VariantKey(req.Owner, stamp, i, count)
		if err := g.store.Put(ctx, key, toJPEG(data, mimeType), blob.ContentTypeJPEG); err != nil {
			return variants, err
		}
		variants = append(variants, order.GeneratedVariant{
			SourceImageIndex: req.SourceIndex,
			Key:              key,
			URL:              g.store.URL(key),
		})

		logger.Info().
			Int("variant", i).
			Str("key", key).
			Int("outputBytes", len(data)).
			Str("outputMime", mimeType).
			Dur("duration", time.Since(start)).
			Msg("Variant stored")
	}
	return variants, nil
}

func (g *Generator) requestConfig(aspect string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: aspect,
			ImageSize:   g.imageSize,
		},
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}
}

// extractImage returns the first inline image in the response along with any
// text and the finish reason of the first candidate.
func extractImage(resp *genai.GenerateContentResponse) (data []byte, mimeType, text, finish string) {
	if resp == nil {
		return nil, "", "", ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		if finish == "" {
			finish = string(cand.FinishReason)
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && data == nil && len(part.InlineData.Data) > 0 {
				data = part.InlineData.Data
				mimeType = part.InlineData.MIMEType
			}
			text += part.Text
		}
	}
	if finish == "" && resp.PromptFeedback != nil {
		finish = string(resp.PromptFeedback.BlockReason)
	}
	return data, mimeType, text, finish
}

// generationError maps a model call failure, keeping the upstream status
// code when the SDK reports one.
func generationError(variant int, err error) error {
	ge := &order.GenerationError{Variant: variant, Err: err}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		ge.StatusCode = apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		ge.StatusCode = apiErrPtr.Code
	}
	return ge
}

// truncateString shortens a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// stampClock hands out strictly increasing millisecond timestamps so that
// concurrent calls never produce the same object key.
type stampClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newStampClock(now func() time.Time) *stampClock {
	return &stampClock{now: now}
}

func (c *stampClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return ms
}
