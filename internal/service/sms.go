package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sumire/clique/internal/config"
)

// SMSService generates numeric signup codes and dispatches them through
// the configured SMS gateway.
type SMSService struct {
	cfg    config.SMSConfig
	client *http.Client
}

// NewSMSService creates a new SMSService. A nil client selects
// http.DefaultClient.
func NewSMSService(cfg config.SMSConfig, client *http.Client) *SMSService {
	if client == nil {
		client = http.DefaultClient
	}
	return &SMSService{cfg: cfg, client: client}
}

// Send generates a 6-digit code, dispatches it to the phone and returns
// the code for caching.
func (s *SMSService) Send(ctx context.Context, phone string) (string, error) {
	code, err := generateCode(6)
	if err != nil {
		return "", fmt.Errorf("generate sms code: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"phone": phone,
		"sign":  s.cfg.Sign,
		"code":  code,
	})
	if err != nil {
		return "", fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("dispatch sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	return code, nil
}

func generateCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = '0' + (buf[i] % 10)
	}
	return string(buf), nil
}
