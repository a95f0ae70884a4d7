// Package contentapi talks to the TikTok Content Posting and OAuth
// endpoints: direct photo publishes, publish status polling, and the
// token grants that keep the account linked.
package contentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vitrine/internal/config"
	"vitrine/internal/credentials"
	"vitrine/internal/services"
)

const (
	contentInitPath = "/v2/post/publish/content/init/"
	statusFetchPath = "/v2/post/publish/status/fetch/"
	tokenPath       = "/v2/oauth/token/"
	authorizePath   = "/v2/auth/authorize/"

	jsonContentType = "application/json; charset=UTF-8"
	formContentType = "application/x-www-form-urlencoded"

	postModeDirect    = "DIRECT_POST"
	mediaTypePhoto    = "PHOTO"
	sourcePullFromURL = "PULL_FROM_URL"
	errorCodeOK       = "ok"

	// Fallback lifetime applied when the token endpoint omits expires_in.
	defaultTokenLifetimeSeconds = 86400
)

// Terminal statuses reported by the status fetch endpoint. Anything else
// counts as still processing.
const (
	statusPublishComplete = "PUBLISH_COMPLETE"
	statusFailed          = "FAILED"
)

// Post is one composed publish request: the caption text plus the public
// URL of the already-hosted image.
type Post struct {
	Text     string
	MediaURL string
}

// RemoteState classifies what the platform reports for an in-flight publish.
type RemoteState string

const (
	// RemoteProcessing means the platform is still working on the publish.
	RemoteProcessing RemoteState = "processing"
	// RemotePublished means the content is live on the account.
	RemotePublished RemoteState = "published"
	// RemoteRejected means the platform refused the content.
	RemoteRejected RemoteState = "rejected"
)

// Confirmation is the outcome of a single publish status poll.
type Confirmation struct {
	State      RemoteState
	FailReason string
}

// Publisher defines the content posting operations used by the publish pipeline.
type Publisher interface {
	InitPublish(ctx context.Context, accessToken string, post Post) (string, error)
	ConfirmStatus(ctx context.Context, accessToken, publishID string) (Confirmation, error)
}

// Client provides access to the content posting API for one configured app.
type Client struct {
	clientKey       string
	clientSecret    string
	redirectURI     string
	scopes          []string
	baseURL         string
	authBaseURL     string
	privacyLevel    string
	disableComments bool
	autoAddMusic    bool
	httpClient      *http.Client
}

var (
	_ Publisher             = (*Client)(nil)
	_ credentials.Refresher = (*Client)(nil)
)

// Option adjusts how the client is constructed.
type Option func(*Client)

// WithHTTPClient swaps in a custom HTTP client; nil leaves the default.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a content API client from the api config section.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	baseURL := strings.TrimSpace(cfg.API.BaseURL)
	if baseURL == "" {
		return nil, errors.New("content api base url required")
	}
	client := &Client{
		clientKey:       strings.TrimSpace(cfg.API.ClientKey),
		clientSecret:    strings.TrimSpace(cfg.API.ClientSecret),
		redirectURI:     strings.TrimSpace(cfg.API.RedirectURI),
		scopes:          append([]string(nil), cfg.API.Scopes...),
		baseURL:         strings.TrimRight(baseURL, "/"),
		authBaseURL:     strings.TrimRight(strings.TrimSpace(cfg.API.AuthBaseURL), "/"),
		privacyLevel:    cfg.API.PrivacyLevel,
		disableComments: cfg.API.DisableComments,
		autoAddMusic:    cfg.API.AutoAddMusic,
		httpClient:      &http.Client{Timeout: cfg.APIRequestTimeout()},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// InitPublish submits a direct photo post and returns the publish id the
// platform assigned to it.
func (c *Client) InitPublish(ctx context.Context, accessToken string, post Post) (string, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return "", services.Wrap(services.ErrAuth, "contentapi", "init", "access token required", nil)
	}
	mediaURL := strings.TrimSpace(post.MediaURL)
	if mediaURL == "" {
		return "", services.Wrap(services.ErrValidation, "contentapi", "init", "post media url required", nil)
	}

	body := initRequest{
		PostInfo: postInfo{
			Title:          post.Text,
			PrivacyLevel:   c.privacyLevel,
			DisableComment: c.disableComments,
			AutoAddMusic:   c.autoAddMusic,
		},
		SourceInfo: sourceInfo{
			Source:      sourcePullFromURL,
			PhotoImages: []string{mediaURL},
		},
		PostMode:  postModeDirect,
		MediaType: mediaTypePhoto,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", services.Wrap(services.ErrRemote, "contentapi", "init", "encode publish init request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+contentInitPath, bytes.NewReader(payload))
	if err != nil {
		return "", services.Wrap(services.ErrRemote, "contentapi", "init", "build publish init request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", jsonContentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return "", services.Wrap(services.ErrRemote, "contentapi", "init", fmt.Sprintf("execute publish init (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	var parsed initResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", services.Wrap(services.ErrRemote, "contentapi", "init", fmt.Sprintf("decode publish init response (status=%d, latency=%v)", resp.StatusCode, latency), err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Error.Code != errorCodeOK {
		return "", services.Wrap(services.ErrRemote, "contentapi", "init", remoteFailureDetail(resp.StatusCode, parsed.Error, latency), nil)
	}
	if parsed.Data.PublishID == "" {
		return "", services.Wrap(services.ErrRemote, "contentapi", "init", "publish init response missing publish_id", nil)
	}
	return parsed.Data.PublishID, nil
}

// ConfirmStatus polls the platform for the current processing state of a
// publish. Statuses the client does not recognize are reported as still
// processing so the caller keeps polling until its own deadline.
func (c *Client) ConfirmStatus(ctx context.Context, accessToken, publishID string) (Confirmation, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return Confirmation{}, services.Wrap(services.ErrAuth, "contentapi", "confirm", "access token required", nil)
	}
	publishID = strings.TrimSpace(publishID)
	if publishID == "" {
		return Confirmation{}, services.Wrap(services.ErrValidation, "contentapi", "confirm", "publish id required", nil)
	}

	payload, err := json.Marshal(statusRequest{PublishID: publishID})
	if err != nil {
		return Confirmation{}, services.Wrap(services.ErrRemote, "contentapi", "confirm", "encode status fetch request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+statusFetchPath, bytes.NewReader(payload))
	if err != nil {
		return Confirmation{}, services.Wrap(services.ErrRemote, "contentapi", "confirm", "build status fetch request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", jsonContentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return Confirmation{}, services.Wrap(services.ErrRemote, "contentapi", "confirm", fmt.Sprintf("execute status fetch (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Confirmation{}, services.Wrap(services.ErrRemote, "contentapi", "confirm", fmt.Sprintf("decode status fetch response (status=%d, latency=%v)", resp.StatusCode, latency), err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Error.Code != errorCodeOK {
		return Confirmation{}, services.Wrap(services.ErrRemote, "contentapi", "confirm", remoteFailureDetail(resp.StatusCode, parsed.Error, latency), nil)
	}

	switch parsed.Data.Status {
	case statusPublishComplete:
		return Confirmation{State: RemotePublished}, nil
	case statusFailed:
		reason := parsed.Data.FailReason
		if reason == "" {
			reason = "unknown"
		}
		return Confirmation{State: RemoteRejected, FailReason: reason}, nil
	default:
		return Confirmation{State: RemoteProcessing}, nil
	}
}

// RefreshToken exchanges a refresh token for a fresh access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (credentials.Record, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return credentials.Record{}, services.Wrap(services.ErrAuth, "contentapi", "refresh", "refresh token required", nil)
	}
	form := url.Values{}
	form.Set("client_key", c.clientKey)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.requestToken(ctx, "refresh", form)
}

// ExchangeCode trades an authorization code from the consent redirect for
// the account's first token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (credentials.Record, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return credentials.Record{}, services.Wrap(services.ErrAuth, "contentapi", "exchange", "authorization code required", nil)
	}
	form := url.Values{}
	form.Set("client_key", c.clientKey)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if c.redirectURI != "" {
		form.Set("redirect_uri", c.redirectURI)
	}
	return c.requestToken(ctx, "exchange", form)
}

// AuthorizationURL builds the consent page URL the account owner must visit
// to grant this app publish access.
func (c *Client) AuthorizationURL(state string) string {
	params := url.Values{}
	params.Set("client_key", c.clientKey)
	params.Set("scope", strings.Join(c.scopes, ","))
	params.Set("response_type", "code")
	params.Set("redirect_uri", c.redirectURI)
	params.Set("state", state)
	return c.authBaseURL + authorizePath + "?" + params.Encode()
}

// requestToken posts the form to the oauth token endpoint. Transport
// failures and 5xx responses come back as plain errors; an error payload or
// a missing access token is tagged as a credential error.
func (c *Client) requestToken(ctx context.Context, operation string, form url.Values) (credentials.Record, error) {
	if c.clientKey == "" || c.clientSecret == "" {
		return credentials.Record{}, services.Wrap(services.ErrAuth, "contentapi", operation, "client key and secret required", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return credentials.Record{}, services.Wrap(services.ErrAuth, "contentapi", operation, "build token request", err)
	}
	req.Header.Set("Content-Type", formContentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return credentials.Record{}, fmt.Errorf("execute token request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return credentials.Record{}, fmt.Errorf("token endpoint returned %d (latency=%v)", resp.StatusCode, latency)
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return credentials.Record{}, fmt.Errorf("decode token response (status=%d, latency=%v): %w", resp.StatusCode, latency, err)
	}
	if parsed.Error != "" {
		detail := parsed.Error
		if parsed.ErrorDescription != "" {
			detail += ": " + parsed.ErrorDescription
		}
		return credentials.Record{}, services.Wrap(services.ErrAuth, "contentapi", operation, fmt.Sprintf("token request rejected: %s (status=%d)", detail, resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK || parsed.AccessToken == "" {
		return credentials.Record{}, services.Wrap(services.ErrAuth, "contentapi", operation, fmt.Sprintf("token response missing access_token (status=%d)", resp.StatusCode), nil)
	}

	expiresIn := parsed.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultTokenLifetimeSeconds
	}
	return credentials.Record{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
		AccountID:    parsed.OpenID,
	}, nil
}

func remoteFailureDetail(status int, apiErr apiError, latency time.Duration) string {
	message := apiErr.Message
	if message == "" {
		message = "request rejected"
	}
	detail := fmt.Sprintf("%s (status=%d, code=%q, latency=%v)", message, status, apiErr.Code, latency)
	if apiErr.LogID != "" {
		detail += " log_id=" + apiErr.LogID
	}
	return detail
}

type postInfo struct {
	Title          string `json:"title"`
	PrivacyLevel   string `json:"privacy_level"`
	DisableComment bool   `json:"disable_comment"`
	AutoAddMusic   bool   `json:"auto_add_music"`
}

type sourceInfo struct {
	Source      string   `json:"source"`
	PhotoImages []string `json:"photo_images"`
}

type initRequest struct {
	PostInfo   postInfo   `json:"post_info"`
	SourceInfo sourceInfo `json:"source_info"`
	PostMode   string     `json:"post_mode"`
	MediaType  string     `json:"media_type"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

type initResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error apiError `json:"error"`
}

type statusRequest struct {
	PublishID string `json:"publish_id"`
}

type statusResponse struct {
	Data struct {
		Status     string `json:"status"`
		FailReason string `json:"fail_reason"`
	} `json:"data"`
	Error apiError `json:"error"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	OpenID           string `json:"open_id"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
