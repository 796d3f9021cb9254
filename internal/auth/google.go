package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sakif/skywatch/internal/apperror"
	"github.com/sakif/skywatch/internal/model"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// googleUserInfo is the portion of the Google userinfo response we care
// about. Google returns a larger object — only these fields are decoded.
type googleUserInfo struct {
	Sub        string `json:"sub"`   // Google's stable account ID
	Email      string `json:"email"` // may differ between logins if the user changes it
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}

// GoogleProvider exchanges OAuth2 authorization codes for Google profiles.
//
// Both calls it makes are external network I/O bounded by a per-call
// timeout. There is no retry at this layer: authorization codes are
// single-use, so blindly retrying the exchange step is unsafe. A caller that
// wants retries must wrap the profile fetch only.
type GoogleProvider struct {
	config      *oauth2.Config
	timeout     time.Duration
	client      *http.Client
	userInfoURL string
}

// NewGoogleProvider creates a GoogleProvider for the Authorization Code
// flow. clientID/clientSecret come from the Google Cloud console;
// redirectURL must exactly match the registered authorization callback.
func NewGoogleProvider(clientID, clientSecret, redirectURL string, timeout time.Duration) *GoogleProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		timeout:     timeout,
		client:      &http.Client{Timeout: timeout},
		userInfoURL: googleUserInfoURL,
	}
}

// AuthURL returns the Google authorization URL for the given CSRF state.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// ExchangeCode trades an authorization code for a provider access token.
// This is a server-to-server POST to Google's token endpoint carrying the
// client secret; any transport failure, timeout, or non-2xx response maps
// to apperror.ErrUpstreamExchange.
func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// oauth2 picks up our bounded client from the context for the exchange.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("auth: exchanging google code: %w", apperror.UpstreamExchange(err))
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("auth: exchanging google code: %w",
			apperror.UpstreamExchange(fmt.Errorf("empty access token in response")))
	}

	return token.AccessToken, nil
}

// FetchProfile calls Google's userinfo endpoint with the provider access
// token. Non-2xx responses and transport failures map to
// apperror.ErrUpstreamProfile.
func (p *GoogleProvider) FetchProfile(ctx context.Context, accessToken string) (*model.ProviderProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", apperror.UpstreamProfile(err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling google userinfo: %w", apperror.UpstreamProfile(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: google userinfo: %w",
			apperror.UpstreamProfile(fmt.Errorf("status %d", resp.StatusCode)))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("auth: decoding google userinfo: %w", apperror.UpstreamProfile(err))
	}

	// A profile without a stable account ID cannot be upserted.
	if info.Sub == "" {
		return nil, fmt.Errorf("auth: google userinfo: %w",
			apperror.UpstreamProfile(fmt.Errorf("response has no subject")))
	}

	return &model.ProviderProfile{
		ProviderUserID: info.Sub,
		Email:          info.Email,
		GivenName:      info.GivenName,
		FamilyName:     info.FamilyName,
		Picture:        info.Picture,
	}, nil
}
