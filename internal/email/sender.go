// Package email delivers transactional email through SES, Resend or nowhere.
package email

import (
	"context"
	"fmt"
	"log"
	"time"
)

// SendRequest is one outgoing email
type SendRequest struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
}

// SendResult is the provider's acknowledgement of a sent email
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers email through a provider
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// FormatAddress renders "Name <address>" or the bare address when name is empty
func FormatAddress(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

// NoopSender drops every email; used when no provider is configured
type NoopSender struct {
	Debug bool
}

// Send logs the email and reports success without delivering it
func (s NoopSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	log.Printf("Skipping email send (service disabled): %q to %v", req.Subject, req.To)
	if s.Debug {
		log.Printf("[DEBUG] Email body length: html=%d text=%d bytes", len(req.HTML), len(req.Text))
	}
	return SendResult{SentAt: time.Now()}, nil
}
