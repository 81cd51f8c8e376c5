package batch

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/order-image-pipeline/internal/notify"
	"github.com/fpang/order-image-pipeline/internal/records"
)

// Statuses returned by ProcessNext.
const (
	NextNoWork  = "no_work"
	NextSuccess = "success"
	NextError   = "error"
)

// Messages returned by ProcessNext.
const (
	MessageNoWork   = "No pending records found."
	MessageNoImages = "Record has no images."
)

// NextResult is the response of the single-item path.
type NextResult struct {
	Status   string   `json:"status"`
	ItemID   string   `json:"itemId,omitempty"`
	Email    string   `json:"email,omitempty"`
	User     string   `json:"user,omitempty"`
	Links    []string `json:"links,omitempty"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
	Notified bool     `json:"notified,omitempty"`
}

// ProcessNext regenerates images for the first eligible item only. Unlike
// Run it writes back just the first variant, into the secondary upload
// field, and may e-mail the customer their links.
//
// A nil error means the request was handled, including the no_work and
// "no images" outcomes. A non-nil error comes with a NextResult whose
// Status is NextError and whose Error carries the message.
func (o *Orchestrator) ProcessNext(ctx context.Context) (*NextResult, error) {
	items, err := o.records.FetchEligible(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Eligibility query failed")
		return &NextResult{Status: NextError, Error: err.Error()}, err
	}
	if len(items) == 0 {
		log.Info().Msg("No pending records found")
		return &NextResult{Status: NextNoWork, Message: MessageNoWork}, nil
	}

	item := items[0]
	logger := log.With().Str("itemId", item.ID).Str("email", item.Email).Logger()
	if len(item.SourceImages) == 0 {
		logger.Warn().Msg("Record has no images")
		return &NextResult{Status: NextError, ItemID: item.ID, Message: MessageNoImages}, nil
	}

	logger.Info().Int("images", len(item.SourceImages)).Msg("Processing next record")
	result, err := o.safeProcess(ctx, item)
	if err == nil && len(result.Variants) == 0 {
		msgs := make([]string, 0, len(result.ImageErrors))
		for _, ie := range result.ImageErrors {
			msgs = append(msgs, ie.Message)
		}
		err = errors.New("no images generated: " + strings.Join(msgs, "; "))
	}
	if err != nil {
		logger.Error().Err(err).Msg("Record processing failed")
		return &NextResult{Status: NextError, ItemID: item.ID, Error: err.Error()}, err
	}

	links := result.URLs()
	if err := o.records.WriteResult(ctx, item.ID, records.ManualResultFields(links[0])); err != nil {
		logger.Error().Err(err).Msg("Write-back failed")
		return &NextResult{Status: NextError, ItemID: item.ID, Error: err.Error()}, err
	}

	user := item.UserName
	if user == "" {
		user = notify.DefaultUser
	}
	res := &NextResult{
		Status: NextSuccess,
		ItemID: item.ID,
		Email:  item.Email,
		User:   user,
		Links:  links,
	}

	if o.notifier != nil {
		if err := o.notifier.PhotosReady(ctx, item.Email, user, links); err != nil {
			logger.Warn().Err(err).Msg("Customer notification failed")
		} else {
			res.Notified = true
		}
	}

	logger.Info().
		Str("status", string(result.Status)).
		Int("links", len(links)).
		Bool("notified", res.Notified).
		Msg("Next record processed")
	return res, nil
}
