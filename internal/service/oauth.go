package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/sumire/clique/internal/config"
	"github.com/sumire/clique/internal/domain"
)

// ErrProviderDeclined marks a recoverable upstream OAuth failure: an
// expired or cancelled code, a provider error payload, or a transient
// network problem. Handlers turn it into a redirect back to the signup
// page instead of an error envelope.
var ErrProviderDeclined = errors.New("oauth provider declined")

// FederatedStore reconciles provider profiles to local accounts.
type FederatedStore interface {
	UpsertGithubUser(ctx context.Context, profile domain.GithubProfile) (*domain.User, error)
	UpsertWeiboUser(ctx context.Context, profile domain.WeiboProfile) (*domain.User, error)
}

// OAuthService drives the GitHub and Weibo authorization-code flows and
// reconciles the fetched profiles to local users.
type OAuthService struct {
	users  FederatedStore
	github config.GithubConfig
	weibo  config.WeiboConfig
	client *http.Client
}

// NewOAuthService creates a new OAuthService. A nil client selects
// http.DefaultClient.
func NewOAuthService(users FederatedStore, github config.GithubConfig, weibo config.WeiboConfig, client *http.Client) *OAuthService {
	if client == nil {
		client = http.DefaultClient
	}
	return &OAuthService{
		users:  users,
		github: github,
		weibo:  weibo,
		client: client,
	}
}

// GithubAuthorizeURL builds the GitHub consent-page URL. GitHub carries no
// anti-forgery state in this flow; Weibo does. The asymmetry is inherited
// from the provider configurations and kept as-is.
func (s *OAuthService) GithubAuthorizeURL() string {
	return fmt.Sprintf(s.github.AuthorizeURL, s.github.ClientID)
}

// WeiboAuthorizeURL builds the Weibo consent-page URL including the fixed
// anti-forgery state and the registered redirect URL.
func (s *OAuthService) WeiboAuthorizeURL() string {
	return fmt.Sprintf(s.weibo.AuthorizeURL, s.weibo.State, s.weibo.AppKey, url.QueryEscape(s.weibo.RedirectURL))
}

// GithubCallback exchanges the authorization code, fetches the GitHub
// profile and reconciles it to a local user. A missing code is a protocol
// violation (ErrForbidden); upstream failures return ErrProviderDeclined.
func (s *OAuthService) GithubCallback(ctx context.Context, code string) (*domain.User, error) {
	if code == "" {
		return nil, domain.ErrForbidden
	}

	conf := &oauth2.Config{
		ClientID:     s.github.ClientID,
		ClientSecret: s.github.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  s.github.AccessTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: github token exchange: %w", ErrProviderDeclined, err)
	}

	profile, err := s.fetchGithubProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.UpsertGithubUser(ctx, *profile)
	if err != nil {
		return nil, fmt.Errorf("upsert github user: %w", err)
	}
	return user, nil
}

func (s *OAuthService) fetchGithubProfile(ctx context.Context, accessToken string) (*domain.GithubProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf(s.github.UserInfoURL, accessToken), nil)
	if err != nil {
		return nil, fmt.Errorf("create github user request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch github profile: %w", ErrProviderDeclined, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: github profile returned status %d", ErrProviderDeclined, resp.StatusCode)
	}

	var profile domain.GithubProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: decode github profile: %w", ErrProviderDeclined, err)
	}
	if profile.ID == 0 {
		return nil, fmt.Errorf("%w: github profile missing id", ErrProviderDeclined)
	}
	return &profile, nil
}

// WeiboCallback validates the echoed anti-forgery state, exchanges the
// code and reconciles the Weibo profile to a local user. State mismatch
// and missing code are rejected before any network call.
func (s *OAuthService) WeiboCallback(ctx context.Context, code, state string) (*domain.User, error) {
	if state != s.weibo.State {
		return nil, domain.ErrForbidden
	}
	if code == "" {
		return nil, domain.ErrForbidden
	}

	tokenURL := fmt.Sprintf(s.weibo.AccessTokenURL,
		s.weibo.AppKey, s.weibo.AppSecret, url.QueryEscape(s.weibo.RedirectURL), code)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create weibo token request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: weibo token exchange: %w", ErrProviderDeclined, err)
	}
	defer resp.Body.Close()

	var token struct {
		AccessToken string `json:"access_token"`
		UID         string `json:"uid"`
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: weibo token returned status %d", ErrProviderDeclined, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("%w: decode weibo token: %w", ErrProviderDeclined, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: weibo token response missing access_token", ErrProviderDeclined)
	}

	profile, err := s.fetchWeiboProfile(ctx, token.AccessToken, token.UID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.UpsertWeiboUser(ctx, *profile)
	if err != nil {
		return nil, fmt.Errorf("upsert weibo user: %w", err)
	}
	return user, nil
}

func (s *OAuthService) fetchWeiboProfile(ctx context.Context, accessToken, uid string) (*domain.WeiboProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf(s.weibo.UserInfoURL, accessToken, uid), nil)
	if err != nil {
		return nil, fmt.Errorf("create weibo user request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch weibo profile: %w", ErrProviderDeclined, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: weibo profile returned status %d", ErrProviderDeclined, resp.StatusCode)
	}

	var profile domain.WeiboProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: decode weibo profile: %w", ErrProviderDeclined, err)
	}
	if profile.ID == 0 {
		return nil, fmt.Errorf("%w: weibo profile missing id", ErrProviderDeclined)
	}
	return &profile, nil
}
