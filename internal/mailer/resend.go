package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ResendClient sends transactional email through the Resend HTTP API.
type ResendClient struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewResendClient(apiKey, from, baseURL string, logger *logrus.Logger) *ResendClient {
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}

	return &ResendClient{
		apiKey:  apiKey,
		from:    from,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type sendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send delivers a single HTML email. A non-2xx response from the API is
// reported as an error; the response body is logged, never surfaced.
func (c *ResendClient) Send(ctx context.Context, to, subject, html string) error {
	payload, err := json.Marshal(sendEmailRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Error("Failed to reach email API")
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Error("Email API rejected send")
		return fmt.Errorf("email API returned status %d", resp.StatusCode)
	}

	return nil
}
