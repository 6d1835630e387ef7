// Package httpadapter implements the outbound ports of the sync pipeline:
// the dual-token authentication flow and the bundle download. Transient
// network faults are retried with backoff; HTTP-level rejections are not,
// the server already gave its answer. No error escapes as a panic; each
// adapter converts faults into classified failures at its boundary.
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"certsync/internal/masterlist"
	"certsync/pkg/result"
)

const defaultTimeout = 60 * time.Second

// errorBodyLimit caps how much of a rejection body ends up in failure
// messages and logs.
const errorBodyLimit = 256

// Doer is the part of *http.Client the adapters use.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AccessTokenConfig holds the password-grant credentials for the identity
// provider.
type AccessTokenConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// AccessTokenProvider acquires the primary credential via the OpenID
// Connect password grant.
type AccessTokenProvider struct {
	client Doer
	logger *slog.Logger
	cfg    AccessTokenConfig
}

// NewAccessTokenProvider constructs the password-grant token provider.
func NewAccessTokenProvider(cfg AccessTokenConfig, opts ...ClientOption) *AccessTokenProvider {
	o := applyOptions(opts)
	return &AccessTokenProvider{client: o.client, logger: o.logger, cfg: cfg}
}

// AcquireToken requests an access token. Any fault, after retries for
// transient ones, surfaces as an authentication failure.
func (p *AccessTokenProvider) AcquireToken(ctx context.Context) result.Result[string] {
	return result.FromComputation(func() (string, error) {
		return withRetry(ctx, p.logger, "acquire access token", func() (string, error) {
			return p.requestToken(ctx)
		})
	}, result.CodeAuthentication, "access token acquisition failed")
}

func (p *AccessTokenProvider) requestToken(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"username":      {p.cfg.Username},
		"password":      {p.cfg.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := doRequest(p.client, req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response carries no access_token")
	}

	p.logTokenExpiry(payload.AccessToken)
	return payload.AccessToken, nil
}

// logTokenExpiry peeks at the token claims without verifying the
// signature. Verification belongs to the issuing server; the expiry is
// logged so short-lived tokens show up in operations before downloads
// start failing.
func (p *AccessTokenProvider) logTokenExpiry(token string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		p.logger.Info("access token acquired")
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		p.logger.Info("access token acquired")
		return
	}
	p.logger.Info("access token acquired",
		"expires_at", exp.Time, "ttl", time.Until(exp.Time).Round(time.Second))
}

// ServiceTokenConfig identifies the border-control station the service
// token is scoped to.
type ServiceTokenConfig struct {
	LoginURL             string
	BorderPostID         string
	BoxID                string
	PassengerControlType string
}

// ServiceTokenProvider trades the access token for a station-scoped
// service token.
type ServiceTokenProvider struct {
	client Doer
	logger *slog.Logger
	cfg    ServiceTokenConfig
}

// NewServiceTokenProvider constructs the login-endpoint token provider.
func NewServiceTokenProvider(cfg ServiceTokenConfig, opts ...ClientOption) *ServiceTokenProvider {
	o := applyOptions(opts)
	return &ServiceTokenProvider{client: o.client, logger: o.logger, cfg: cfg}
}

// AcquireToken requests the service token using the access token as
// Bearer credential. The response body is the token itself, not JSON.
func (p *ServiceTokenProvider) AcquireToken(ctx context.Context, accessToken string) result.Result[string] {
	return result.FromComputation(func() (string, error) {
		return withRetry(ctx, p.logger, "acquire service token", func() (string, error) {
			return p.requestToken(ctx, accessToken)
		})
	}, result.CodeAuthentication, "service token acquisition failed")
}

func (p *ServiceTokenProvider) requestToken(ctx context.Context, accessToken string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"borderPostId":         p.cfg.BorderPostID,
		"boxId":                p.cfg.BoxID,
		"passengerControlType": p.cfg.PassengerControlType,
	})
	if err != nil {
		return "", fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.LoginURL,
		bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, err := doRequest(p.client, req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", fmt.Errorf("login response carries no token")
	}

	p.logger.Info("service token acquired")
	return token, nil
}

// Downloader fetches the raw bundle with both credentials attached.
type Downloader struct {
	client      Doer
	logger      *slog.Logger
	downloadURL string
}

// NewDownloader constructs the bundle downloader.
func NewDownloader(downloadURL string, opts ...ClientOption) *Downloader {
	o := applyOptions(opts)
	return &Downloader{client: o.client, logger: o.logger, downloadURL: downloadURL}
}

// Download fetches the bundle bytes. Faults surface as external-service
// failures after transient retries.
func (d *Downloader) Download(ctx context.Context, creds masterlist.AuthCredentials) result.Result[[]byte] {
	return result.FromComputation(func() ([]byte, error) {
		return withRetry(ctx, d.logger, "download bundle", func() ([]byte, error) {
			return d.download(ctx, creds)
		})
	}, result.CodeExternalService, "bundle download failed")
}

func (d *Downloader) download(ctx context.Context, creds masterlist.AuthCredentials) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("x-sfc-authorization", "Bearer "+creds.ServiceToken)

	body, err := doRequest(d.client, req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("download response is empty")
	}

	d.logger.Info("bundle downloaded", "size_bytes", len(body))
	return body, nil
}

// doRequest performs the call, drains the body, and turns non-2xx answers
// into httpStatusError.
func doRequest(client Doer, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > errorBodyLimit {
			snippet = snippet[:errorBodyLimit]
		}
		return nil, &httpStatusError{status: resp.StatusCode, body: snippet}
	}
	return body, nil
}

type clientOptions struct {
	client Doer
	logger *slog.Logger
}

// ClientOption configures an outbound adapter.
type ClientOption func(*clientOptions)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client Doer) ClientOption {
	return func(o *clientOptions) {
		if client != nil {
			o.client = client
		}
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTimeout replaces the default client with one using the given
// timeout. Ignored when a custom client was supplied first.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.client = &http.Client{Timeout: timeout}
		}
	}
}

func applyOptions(opts []ClientOption) clientOptions {
	o := clientOptions{
		client: &http.Client{Timeout: defaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
