// Package notify e-mails customers the download links for their regenerated
// photos.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/order-image-pipeline/internal/assets"
)

// DefaultUser is the greeting name used when an order has no user name.
const DefaultUser = "Client"

// Sender delivers one plain-text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends mail through Amazon SES v2.
type SESSender struct {
	client    sesAPI
	fromEmail string
}

var _ Sender = (*SESSender)(nil)

// NewSESSender creates a sender using a verified from address.
func NewSESSender(cfg aws.Config, from string) (*SESSender, error) {
	if from == "" {
		return nil, errors.New("SES_FROM_EMAIL is not set")
	}
	return &SESSender{client: sesv2.NewFromConfig(cfg), fromEmail: from}, nil
}

func (s *SESSender) Send(ctx context.Context, to, subject, body string) error {
	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SendEmail to %s: %w", to, err)
	}
	log.Debug().Str("to", to).Str("messageId", aws.ToString(out.MessageId)).Msg("Notification sent")
	return nil
}

// Notifier composes the "photos are ready" message.
type Notifier struct {
	sender Sender
}

// NewNotifier wraps a Sender.
func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// PhotosReady sends the numbered download links to email. An empty user
// name is greeted as DefaultUser.
func (n *Notifier) PhotosReady(ctx context.Context, email, user string, links []string) error {
	if email == "" {
		return errors.New("no recipient address")
	}
	if len(links) == 0 {
		return errors.New("no links to send")
	}
	if user == "" {
		user = DefaultUser
	}
	return n.sender.Send(ctx, email, assets.NotifyEmailSubject, assets.RenderNotifyEmail(user, links))
}
