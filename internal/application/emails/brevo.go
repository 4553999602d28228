package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoSender   `json:"sender"`
	To          []BrevoTo     `json:"to"`
	Subject     string        `json:"subject"`
	HTMLContent string        `json:"htmlContent"`
	ReplyTo     *BrevoReplyTo `json:"replyTo,omitempty"`
}

type BrevoSender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BrevoTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type BrevoReplyTo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Sender dispatches workflow notifications. All sends are best-effort and
// happen after the state transition commits; a nil or unconfigured Sender is
// a no-op.
type Sender interface {
	SendBrokerUploadRequest(ctx context.Context, toEmail, companyName, uploadLink, sampleURL string) error
	SendDeficiencyNotice(ctx context.Context, toEmail, companyName, deficiencyMessage, uploadLink string) error
	SendBrokerAssigned(ctx context.Context, toEmail, companyName string) error
	SendBrokerUnassigned(ctx context.Context, toEmail, companyName string) error
	SendReplaceReviewNotice(ctx context.Context, toEmail, gcName, subName, projectName, reason string) error
	SendRenewalVerificationRequest(ctx context.Context, toEmail, subName string, expiration time.Time) error
}

// BrevoClient sends emails via the Brevo API. Env: BREVO_API_KEY, MAIL_FROM.
type BrevoClient struct {
	APIKey   string
	MailFrom string
	Client   *http.Client
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@coitrack.io"
}

// send sends one email via Brevo API.
func (c *BrevoClient) send(ctx context.Context, toEmail, subject, html string) error {
	if c.APIKey == "" {
		return nil
	}
	body := BrevoSendRequest{
		Sender:      BrevoSender{Email: c.from(), Name: "COI Compliance"},
		To:          []BrevoTo{{Email: toEmail}},
		Subject:     subject,
		HTMLContent: html,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoAPI, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

// SendBrokerUploadRequest asks the broker for a certificate, with the
// token-bearing upload link and the sample COI reference.
func (c *BrevoClient) SendBrokerUploadRequest(ctx context.Context, toEmail, companyName, uploadLink, sampleURL string) error {
	content := fmt.Sprintf(`<h1>Certificate of Insurance requested</h1>
<p>A Certificate of Insurance is required for <strong>%s</strong>.</p>
<p>Use the secure link below to upload the certificate. No account is needed.</p>
<p><a class="coi-button" href="%s">Upload certificate</a></p>`, companyName, uploadLink)
	if sampleURL != "" {
		content += fmt.Sprintf(`<p>A sample certificate showing the required coverages is available <a href="%s">here</a>.</p>`, sampleURL)
	}
	return c.send(ctx, toEmail, "Certificate of Insurance requested for "+companyName, EmailLayout(content))
}

// SendDeficiencyNotice tells the broker what was wrong with the submission.
func (c *BrevoClient) SendDeficiencyNotice(ctx context.Context, toEmail, companyName, deficiencyMessage, uploadLink string) error {
	content := fmt.Sprintf(`<h1>Certificate needs correction</h1>
<p>The certificate submitted for <strong>%s</strong> was reviewed and needs correction:</p>
<p style="background:#FEF2F2;border-radius:6px;padding:12px;">%s</p>
<p><a class="coi-button" href="%s">Upload corrected certificate</a></p>`, companyName, deficiencyMessage, uploadLink)
	return c.send(ctx, toEmail, "Certificate correction needed for "+companyName, EmailLayout(content))
}

// SendBrokerAssigned welcomes the incoming broker on assignment.
func (c *BrevoClient) SendBrokerAssigned(ctx context.Context, toEmail, companyName string) error {
	content := fmt.Sprintf(`<h1>You are now the broker of record</h1>
<p>You have been assigned as the insurance broker for <strong>%s</strong>. Certificate requests for this company will be sent to this address.</p>`, companyName)
	return c.send(ctx, toEmail, "Broker assignment for "+companyName, EmailLayout(content))
}

// SendBrokerUnassigned tells the outgoing broker the assignment moved.
func (c *BrevoClient) SendBrokerUnassigned(ctx context.Context, toEmail, companyName string) error {
	content := fmt.Sprintf(`<h1>Broker of record changed</h1>
<p>You are no longer the insurance broker for <strong>%s</strong>. No further certificate requests for this company will be sent to this address.</p>`, companyName)
	return c.send(ctx, toEmail, "Broker assignment ended for "+companyName, EmailLayout(content))
}

// SendReplaceReviewNotice tells a GC that an approved certificate was pulled
// back for re-review.
func (c *BrevoClient) SendReplaceReviewNotice(ctx context.Context, toEmail, gcName, subName, projectName, reason string) error {
	content := fmt.Sprintf(`<h1>Certificate re-review required</h1>
<p>Hello %s,</p>
<p>The approved certificate for <strong>%s</strong> on project <strong>%s</strong> has been sent back for review.</p>
<p>Reason: %s</p>
<p>The subcontractor is not compliant until the replacement is approved.</p>`, gcName, subName, projectName, reason)
	return c.send(ctx, toEmail, "Certificate re-review required: "+subName, EmailLayout(content))
}

// SendRenewalVerificationRequest asks the broker to re-confirm coverage near
// expiration.
func (c *BrevoClient) SendRenewalVerificationRequest(ctx context.Context, toEmail, subName string, expiration time.Time) error {
	content := fmt.Sprintf(`<h1>Coverage verification needed</h1>
<p>The certificate for <strong>%s</strong> expires on %s.</p>
<p>Please verify that coverage will be renewed. Until verified, the subcontractor's compliance is blocked.</p>`, subName, expiration.Format("January 2, 2006"))
	return c.send(ctx, toEmail, "Coverage verification needed for "+subName, EmailLayout(content))
}
