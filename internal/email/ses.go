package email

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESSender sends email via Amazon SES
type SESSender struct {
	client *sesv2.Client
	from   string
	debug  bool
}

// NewSESSender creates a sender for the given region and default from address
func NewSESSender(ctx context.Context, awsRegion, from string, debug bool) (*SESSender, error) {
	if debug {
		log.Printf("[DEBUG] Initializing email sender with AWS SES")
		log.Printf("[DEBUG] AWS Region: %s", awsRegion)
		log.Printf("[DEBUG] From: %s", from)
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		if debug {
			log.Printf("[DEBUG] Failed to load AWS config: %v", err)
		}
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Printf("Email service enabled: provider=ses, from=%s, region=%s", from, awsRegion)
	return &SESSender{
		client: sesv2.NewFromConfig(cfg),
		from:   from,
		debug:  debug,
	}, nil
}

func utf8Content(data string) *types.Content {
	return &types.Content{
		Data:    aws.String(data),
		Charset: aws.String("UTF-8"),
	}
}

// Send sends a single email
func (s *SESSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	from := req.From
	if from == "" {
		from = s.from
	}

	body := &types.Body{Html: utf8Content(req.HTML)}
	if req.Text != "" {
		body.Text = utf8Content(req.Text)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: req.To,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(req.Subject),
				Body:    body,
			},
		},
	}
	if req.ReplyTo != "" {
		input.ReplyToAddresses = []string{req.ReplyTo}
	}

	if s.debug {
		log.Printf("[DEBUG] Calling SES SendEmail API: to=%v, subject=%s", req.To, req.Subject)
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		if s.debug {
			log.Printf("[DEBUG] SES SendEmail failed: %v", err)
		}
		return SendResult{}, fmt.Errorf("failed to send email to %v: %w", req.To, err)
	}

	sent := SendResult{SentAt: time.Now()}
	if result.MessageId != nil {
		sent.MessageID = *result.MessageId
	}
	log.Printf("Email sent successfully: to=%v, subject=%s", req.To, req.Subject)
	return sent, nil
}
