package service

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"log"
	"net/url"
	texttemplate "text/template"

	"ecoquest/internal/email"
	"ecoquest/internal/models"
	"ecoquest/internal/retry"
)

const emailLayout = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #2e7d32; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.button { display: inline-block; padding: 12px 30px; background-color: #2e7d32; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header">
			<h1>{{.Heading}}</h1>
		</div>
		<div class="content">
			<p>Hi {{.Name}},</p>
			{{range .Paragraphs}}<p>{{.}}</p>
			{{end}}{{if .Link}}<p style="text-align: center;">
				<a href="{{.Link}}" class="button">{{.LinkLabel}}</a>
			</p>
			<p>Or copy and paste this link into your browser:</p>
			<p style="word-break: break-all; font-size: 12px; color: #666;">{{.Link}}</p>
			{{end}}{{if .Note}}<p><strong>{{.Note}}</strong></p>{{end}}
		</div>
		<div class="footer">
			<p>This is an automated email from EcoQuest. Please do not reply.</p>
		</div>
	</div>
</body>
</html>
`

const emailText = `Hi {{.Name}},
{{range .Paragraphs}}
{{.}}
{{end}}{{if .Link}}
{{.LinkLabel}}:
{{.Link}}
{{end}}{{if .Note}}
{{.Note}}
{{end}}
- The EcoQuest Team
`

var (
	emailHTMLTemplate = htmltemplate.Must(htmltemplate.New("email").Parse(emailLayout))
	emailTextTemplate = texttemplate.Must(texttemplate.New("email").Parse(emailText))
)

// emailContent is the data rendered into both the HTML and plain-text bodies
type emailContent struct {
	Heading    string
	Name       string
	Paragraphs []string
	Link       string
	LinkLabel  string
	Note       string
}

// EmailService composes EcoQuest's transactional emails and hands them to a Sender
type EmailService struct {
	sender     email.Sender
	fromEmail  string
	fromName   string
	appBaseURL string
	debug      bool
	policy     retry.Policy
}

// NewEmailService creates a new email service. An empty fromEmail lets the sender pick its default.
func NewEmailService(sender email.Sender, fromEmail, fromName, appBaseURL string, debug bool) *EmailService {
	if sender == nil {
		sender = email.NoopSender{Debug: debug}
	}
	return &EmailService{
		sender:     sender,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		debug:      debug,
		policy:     retry.Default(),
	}
}

// SendWelcomeEmail greets a newly registered user
func (s *EmailService) SendWelcomeEmail(ctx context.Context, toEmail, toName string, role models.Role) error {
	paragraphs := []string{
		"Welcome to EcoQuest! Your account has been created successfully.",
		"Watch short lessons, test yourself with quizzes and complete real-world missions to earn eco points, climb the leaderboard and collect badges.",
	}
	if role == models.RoleOrganization {
		paragraphs = []string{
			"Welcome to EcoQuest! Your organization account has been created successfully.",
			"Share your organization code with your students so they can join. You can review their mission submissions from your dashboard.",
		}
	}

	return s.send(ctx, toEmail, "Welcome to EcoQuest!", emailContent{
		Heading:    "Welcome to EcoQuest!",
		Name:       toName,
		Paragraphs: paragraphs,
		Link:       s.appBaseURL + "/dashboard",
		LinkLabel:  "Open your dashboard",
	})
}

// SendPasswordResetEmail sends a password reset email with a reset link
func (s *EmailService) SendPasswordResetEmail(ctx context.Context, toEmail, toName, resetToken string) error {
	resetLink := fmt.Sprintf("%s/auth/reset-password?token=%s", s.appBaseURL, url.QueryEscape(resetToken))
	if s.debug {
		log.Printf("[DEBUG] Reset link generated for %s", toEmail)
	}

	return s.send(ctx, toEmail, "Reset Your EcoQuest Password", emailContent{
		Heading: "Password Reset Request",
		Name:    toName,
		Paragraphs: []string{
			"We received a request to reset your password for your EcoQuest account.",
			"Click the button below to reset your password:",
		},
		Link:      resetLink,
		LinkLabel: "Reset Password",
		Note:      "This link will expire in 1 hour. If you didn't request a password reset, you can safely ignore this email.",
	})
}

// SendSubmissionReviewedEmail tells a student their mission proof was approved or rejected
func (s *EmailService) SendSubmissionReviewedEmail(ctx context.Context, toEmail, toName, missionTitle string, status models.SubmissionStatus, notes string, points int) error {
	var subject string
	var paragraphs []string
	switch status {
	case models.StatusApproved:
		subject = "Your mission was approved!"
		paragraphs = []string{
			fmt.Sprintf("Great work! Your submission for %q was approved and you earned %d eco points.", missionTitle, points),
		}
	case models.StatusRejected:
		subject = "Your mission needs another try"
		paragraphs = []string{
			fmt.Sprintf("Your submission for %q was not approved this time.", missionTitle),
			"You can update your proof and submit the mission again.",
		}
	default:
		return fmt.Errorf("no review email for status %q", status)
	}
	if notes != "" {
		paragraphs = append(paragraphs, "Reviewer notes: "+notes)
	}

	return s.send(ctx, toEmail, subject, emailContent{
		Heading:    "Mission Review",
		Name:       toName,
		Paragraphs: paragraphs,
		Link:       s.appBaseURL + "/missions",
		LinkLabel:  "View your missions",
	})
}

func (s *EmailService) send(ctx context.Context, toEmail, subject string, content emailContent) error {
	if content.Name == "" {
		content.Name = "there"
	}

	var html, text bytes.Buffer
	if err := emailHTMLTemplate.Execute(&html, content); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}
	if err := emailTextTemplate.Execute(&text, content); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}

	req := email.SendRequest{
		To:      []string{toEmail},
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}
	if s.fromEmail != "" {
		req.From = email.FormatAddress(s.fromName, s.fromEmail)
	}

	if s.debug {
		log.Printf("[DEBUG] Sending email: subject=%s, to=%s", subject, toEmail)
	}

	return retry.Do(ctx, "send email", s.policy, func(ctx context.Context) error {
		_, err := s.sender.Send(ctx, req)
		return err
	})
}
