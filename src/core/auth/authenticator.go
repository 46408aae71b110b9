package auth

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"granite-vision-go/src/configs"
	"granite-vision-go/src/core/utils"
)

const (
	// GrantTypeAPIKey IAM grant exchanging an API key for a bearer token
	GrantTypeAPIKey = "urn:ibm:params:oauth:grant-type:apikey"
	tokenPath       = "/identity/token"
)

// AuthError the token exchange failed
type AuthError struct {
	StatusCode int    // 0 when no response was received
	Body       string // response body, if any
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Options transport settings of the authenticator
type Options struct {
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// Authenticator exchanges the API key for an access token. It keeps no token
// state; see TokenHolder.
type Authenticator struct {
	creds      configs.Credentials
	tokenURL   string
	httpClient *http.Client
	logger     *utils.Logger
}

// NewAuthenticator builds the authenticator for creds.IdentityEndpoint. A
// bare host is reached over https; an endpoint with a scheme is used as is.
func NewAuthenticator(creds configs.Credentials, opts Options, logger *utils.Logger) *Authenticator {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		logger.Warn("certificate verification toward the identity endpoint is disabled")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	return &Authenticator{
		creds:    creds,
		tokenURL: TokenURL(creds.IdentityEndpoint),
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

// TokenURL builds the token endpoint address from the identity endpoint.
func TokenURL(endpoint string) string {
	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	return endpoint + tokenPath
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AcquireToken makes a single exchange attempt. Every failure is an *AuthError.
func (a *Authenticator) AcquireToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", GrantTypeAPIKey)
	form.Set("apikey", a.creds.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	a.logger.Info("requesting access token from %s", a.tokenURL)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Error("token request failed: %v", err)
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.logger.Error("token request rejected (status %d): %s", resp.StatusCode, string(body))
		return "", &AuthError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var decoded tokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("decode body: %w", err)}
	}
	if decoded.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body), Err: ErrMissingAccessToken}
	}

	if exp, ok := TokenExpiry(decoded.AccessToken); ok {
		a.logger.Info("access token obtained, expires at %s", exp.Format(time.RFC3339))
	} else {
		a.logger.Info("access token obtained")
	}
	return decoded.AccessToken, nil
}
