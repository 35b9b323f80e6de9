package service

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sumire/clique/internal/config"
)

// CaptchaInput carries the geetest challenge fields submitted by the client.
type CaptchaInput struct {
	Challenge string `json:"geetest_challenge"`
	Validate  string `json:"geetest_validate"`
	Seccode   string `json:"geetest_seccode"`
}

// CaptchaPayload is the widget bootstrap config returned to the frontend.
type CaptchaPayload struct {
	Success    int    `json:"success"`
	GT         string `json:"gt"`
	Challenge  string `json:"challenge"`
	NewCaptcha bool   `json:"new_captcha"`
}

// CaptchaService talks to the geetest API. It is a boolean oracle: the
// rest of the system only cares whether a submission passed.
type CaptchaService struct {
	cfg    config.GeetestConfig
	client *http.Client
}

// NewCaptchaService creates a new CaptchaService. A nil client selects
// http.DefaultClient.
func NewCaptchaService(cfg config.GeetestConfig, client *http.Client) *CaptchaService {
	if client == nil {
		client = http.DefaultClient
	}
	return &CaptchaService{cfg: cfg, client: client}
}

// Register obtains a fresh challenge for the widget. When the geetest API
// is unreachable the payload degrades to failback mode (success=0) with a
// locally generated challenge, as the widget protocol expects.
func (s *CaptchaService) Register(ctx context.Context) (*CaptchaPayload, error) {
	payload := &CaptchaPayload{GT: s.cfg.ID, NewCaptcha: true}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.cfg.APIBase+"/register.php?json_format=1&gt="+url.QueryEscape(s.cfg.ID), nil)
	if err != nil {
		return nil, fmt.Errorf("create geetest register request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		payload.Challenge = randomChallenge()
		return payload, nil
	}
	defer resp.Body.Close()

	var body struct {
		Challenge string `json:"challenge"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil || body.Challenge == "" {
		payload.Challenge = randomChallenge()
		return payload, nil
	}

	payload.Success = 1
	payload.Challenge = md5Hex(body.Challenge + s.cfg.Key)
	return payload, nil
}

// Verify submits the challenge fields for server-side validation and
// returns whether the caller passed the gate. Any upstream failure counts
// as not passing.
func (s *CaptchaService) Verify(ctx context.Context, input CaptchaInput) (bool, error) {
	if input.Challenge == "" || input.Validate == "" || input.Seccode == "" {
		return false, nil
	}

	form := url.Values{
		"gt":          {s.cfg.ID},
		"challenge":   {input.Challenge},
		"validate":    {input.Validate},
		"seccode":     {input.Seccode},
		"json_format": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.APIBase+"/validate.php", strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("create geetest validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var body struct {
		Seccode string `json:"seccode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, nil
	}
	return body.Seccode != "" && body.Seccode != "false", nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomChallenge() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return md5Hex("failback")
	}
	return hex.EncodeToString(b)
}
