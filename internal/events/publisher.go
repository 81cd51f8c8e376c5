// Package events announces finished orders on an EventBridge bus so that
// downstream consumers (CRM sync, customer messaging) can react without
// polling the record store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultSource is the event source when none is configured.
	DefaultSource = "order-image-pipeline"

	// DetailTypeOrderImagesGenerated is emitted once per item with variants.
	DetailTypeOrderImagesGenerated = "OrderImagesGenerated"

	// maxEntriesPerCall is the PutEvents batch limit.
	maxEntriesPerCall = 10
)

// OrderImagesGenerated is the event detail for one finished order.
type OrderImagesGenerated struct {
	RunID      string    `json:"runId"`
	ItemID     string    `json:"itemId"`
	Email      string    `json:"email"`
	User       string    `json:"user,omitempty"`
	Status     string    `json:"status"`
	Links      []string  `json:"links"`
	GalleryURL string    `json:"galleryUrl,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// eventBridgeAPI is the subset of *eventbridge.Client used here.
type eventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher sends events to one bus.
type Publisher struct {
	client eventBridgeAPI
	bus    string
	source string
}

// NewPublisher creates a Publisher for bus. An empty source uses
// DefaultSource.
func NewPublisher(client *eventbridge.Client, bus, source string) *Publisher {
	return newPublisher(client, bus, source)
}

func newPublisher(client eventBridgeAPI, bus, source string) *Publisher {
	if source == "" {
		source = DefaultSource
	}
	return &Publisher{client: client, bus: bus, source: source}
}

// PublishGenerated emits one OrderImagesGenerated event per entry, in
// batches of up to ten. The first failed call or entry is returned; earlier
// batches are not retracted.
func (p *Publisher) PublishGenerated(ctx context.Context, events []OrderImagesGenerated) error {
	for start := 0; start < len(events); start += maxEntriesPerCall {
		end := min(start+maxEntriesPerCall, len(events))
		if err := p.put(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) put(ctx context.Context, batch []OrderImagesGenerated) error {
	entries := make([]eventbridgetypes.PutEventsRequestEntry, 0, len(batch))
	for _, e := range batch {
		detail, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", DetailTypeOrderImagesGenerated, err)
		}
		entries = append(entries, eventbridgetypes.PutEventsRequestEntry{
			EventBusName: aws.String(p.bus),
			Source:       aws.String(p.source),
			DetailType:   aws.String(DetailTypeOrderImagesGenerated),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(e.Timestamp),
		})
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		log.Error().Err(err).Str("bus", p.bus).Int("entries", len(entries)).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(entry.ErrorCode)).
					Str("errorMessage", aws.ToString(entry.ErrorMessage)).
					Str("itemId", batch[i].ItemID).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("bus", p.bus).Int("entries", len(entries)).Msg("Order events published")
	return nil
}
