package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EmailService delivers transactional mail. Delivery is best effort: the
// verification flow treats send failures as non-fatal.
type EmailService interface {
	SendVerificationCode(ctx context.Context, to, code string) error
}

// resendEmailService sends mail through the Resend HTTP API.
type resendEmailService struct {
	baseURL   string
	apiKey    string
	fromEmail string
	client    *http.Client
	logger    zerolog.Logger
}

// NewResendEmailService creates an EmailService backed by Resend. With no
// API key configured, codes are logged instead of sent (local development).
func NewResendEmailService(baseURL, apiKey, fromEmail string, logger zerolog.Logger) EmailService {
	return &resendEmailService{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		fromEmail: fromEmail,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger.With().Str("service", "EmailService").Logger(),
	}
}

func (s *resendEmailService) SendVerificationCode(ctx context.Context, to, code string) error {
	if s.apiKey == "" {
		s.logger.Warn().Str("to", to).Str("code", code).Msg("RESEND_API_KEY not set; verification code not emailed")
		return nil
	}

	html := fmt.Sprintf(`<p>Your FocusDock verification code is:</p><div style="font-size:32px;font-weight:bold;letter-spacing:8px;">%s</div><p>This code will expire in 10 minutes.</p><p>If you didn't request this code, you can safely ignore this email.</p>`, code)
	text := fmt.Sprintf("Your FocusDock verification code is: %s\n\nThis code will expire in 10 minutes.\n\nIf you didn't request this code, you can safely ignore this email.", code)

	body, err := json.Marshal(map[string]interface{}{
		"from":    s.fromEmail,
		"to":      []string{to},
		"subject": "FocusDock Verification Code",
		"html":    html,
		"text":    text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("resend send: status %d", resp.StatusCode)
	}
	return nil
}
