package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// PostmarkProvider implements the Provider interface for Postmark
type PostmarkProvider struct {
	apiKey  string
	from    string
	baseURL string
}

// PostmarkResponse represents the Postmark API response
type PostmarkResponse struct {
	ErrorCode   int    `json:"ErrorCode"`
	Message     string `json:"Message"`
	MessageID   string `json:"MessageID"`
	SubmittedAt string `json:"SubmittedAt"`
}

// NewPostmarkProvider creates a new Postmark provider
func NewPostmarkProvider(apiKey, from string) *PostmarkProvider {
	return NewPostmarkProviderWithBaseURL(apiKey, from, "https://api.postmarkapp.com")
}

func NewPostmarkProviderWithBaseURL(apiKey, from, baseURL string) *PostmarkProvider {
	return &PostmarkProvider{
		apiKey:  apiKey,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type postmarkEmail struct {
	From       string `json:"From"`
	To         string `json:"To"`
	Subject    string `json:"Subject"`
	TextBody   string `json:"TextBody,omitempty"`
	HtmlBody   string `json:"HtmlBody,omitempty"`
	TrackOpens bool   `json:"TrackOpens"`
	TrackLinks string `json:"TrackLinks"`
	InlineCSS  bool   `json:"InlineCSS"`
	Tag        string `json:"Tag,omitempty"`
}

// SendEmail sends an email via the Postmark API
func (p *PostmarkProvider) SendEmail(ctx context.Context, email *Email) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	payload := postmarkEmail{
		From:       p.from,
		To:         email.To,
		Subject:    email.Subject,
		TextBody:   email.Text,
		HtmlBody:   email.HTML,
		TrackOpens: true,
		TrackLinks: "None",
		InlineCSS:  true,
		Tag:        "order-notification",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/email", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	body, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("failed to read postmark response: %w", readErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close postmark response body: %w", closeErr)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp PostmarkResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.ErrorCode != 0 {
			return fmt.Errorf("postmark error (%d): %s", errResp.ErrorCode, errResp.Message)
		}
		return fmt.Errorf("postmark API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result PostmarkResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if result.ErrorCode != 0 {
		return fmt.Errorf("postmark error (%d): %s", result.ErrorCode, result.Message)
	}

	return nil
}

// ValidateAPIKey checks if the API key is valid
func (p *PostmarkProvider) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/server", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to validate API key: %w", err)
	}
	body, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("failed to read postmark validation response: %w", readErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close postmark validation response body: %w", closeErr)
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > 0 {
			return fmt.Errorf("invalid API key: received status %d: %s", resp.StatusCode, string(body))
		}
		return fmt.Errorf("invalid API key: received status %d", resp.StatusCode)
	}

	return nil
}
