package imagehost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"vitrine/internal/config"
	"vitrine/internal/services"
)

// Hoster is the media hosting collaborator contract. Host must be safe to
// call again on retry; a repeat upload just hosts another copy.
type Hoster interface {
	Host(ctx context.Context, mediaRef string) (string, error)
}

// Client uploads item media to an imgbb-compatible hosting endpoint and
// returns the durable public URL the publish call needs.
type Client struct {
	apiKey      string
	baseURL     string
	maxBytes    int64
	allowedExts map[string]struct{}
	httpClient  *http.Client
}

var _ Hoster = (*Client)(nil)

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

// New creates a media hosting client from the image host settings.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.ImageHost.APIKey)
	if apiKey == "" {
		return nil, errors.New("image host api key required")
	}
	baseURL := strings.TrimSpace(cfg.ImageHost.BaseURL)
	if baseURL == "" {
		return nil, errors.New("image host base url required")
	}

	allowed := make(map[string]struct{}, len(cfg.ImageHost.AllowedExtensions))
	for _, ext := range cfg.ImageHost.AllowedExtensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	client := &Client{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxBytes:    cfg.MaxUploadBytes(),
		allowedExts: allowed,
		httpClient:  &http.Client{Timeout: cfg.ImageHostRequestTimeout()},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Host fetches the referenced media (HTTP URL or local file), checks it
// against the extension allowlist and size cap, uploads it, and returns the
// hosted public URL.
func (c *Client) Host(ctx context.Context, mediaRef string) (string, error) {
	mediaRef = strings.TrimSpace(mediaRef)
	if mediaRef == "" {
		return "", services.Wrap(services.ErrHosting, "imagehost", "fetch", "media reference is empty", nil)
	}

	name, err := c.checkExtension(mediaRef)
	if err != nil {
		return "", err
	}

	data, err := c.fetchMedia(ctx, mediaRef)
	if err != nil {
		return "", err
	}
	if int64(len(data)) > c.maxBytes {
		return "", services.Wrap(services.ErrHosting, "imagehost", "fetch",
			fmt.Sprintf("media is %d bytes, above the %d byte cap", len(data), c.maxBytes), nil)
	}
	if len(data) == 0 {
		return "", services.Wrap(services.ErrHosting, "imagehost", "fetch", "media is empty", nil)
	}

	return c.upload(ctx, name, data)
}

func (c *Client) checkExtension(mediaRef string) (string, error) {
	name := mediaRef
	if isHTTPRef(mediaRef) {
		parsed, err := url.Parse(mediaRef)
		if err != nil {
			return "", services.Wrap(services.ErrHosting, "imagehost", "fetch", "parse media url", err)
		}
		name = path.Base(parsed.Path)
	} else {
		name = filepath.Base(mediaRef)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "", services.Wrap(services.ErrHosting, "imagehost", "fetch",
			fmt.Sprintf("media reference %q has no file extension", mediaRef), nil)
	}
	if _, ok := c.allowedExts[ext]; !ok {
		return "", services.Wrap(services.ErrHosting, "imagehost", "fetch",
			fmt.Sprintf("extension %q is not allowed", ext), nil)
	}
	return name, nil
}

func (c *Client) fetchMedia(ctx context.Context, mediaRef string) ([]byte, error) {
	if !isHTTPRef(mediaRef) {
		data, err := os.ReadFile(mediaRef)
		if err != nil {
			return nil, services.Wrap(services.ErrHosting, "imagehost", "fetch", "read media file", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaRef, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrHosting, "imagehost", "fetch", "build media request", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, services.Wrap(services.ErrHosting, "imagehost", "fetch",
			fmt.Sprintf("download media (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrHosting, "imagehost", "fetch",
			fmt.Sprintf("media download returned %d (latency=%v)", resp.StatusCode, latency), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, services.Wrap(services.ErrHosting, "imagehost", "fetch", "read media body", err)
	}
	return data, nil
}

func (c *Client) upload(ctx context.Context, name string, data []byte) (string, error) {
	form := url.Values{}
	form.Set("key", c.apiKey)
	form.Set("image", base64.StdEncoding.EncodeToString(data))
	form.Set("name", strings.TrimSuffix(name, filepath.Ext(name)))

	endpoint := c.baseURL + "/1/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", services.Wrap(services.ErrHosting, "imagehost", "upload", "build upload request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return "", services.Wrap(services.ErrHosting, "imagehost", "upload",
			fmt.Sprintf("execute upload (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", services.Wrap(services.ErrHosting, "imagehost", "upload",
			fmt.Sprintf("upload returned %d (latency=%v)", resp.StatusCode, latency), nil)
	}

	var payload struct {
		Data struct {
			URL        string `json:"url"`
			DisplayURL string `json:"display_url"`
		} `json:"data"`
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", services.Wrap(services.ErrHosting, "imagehost", "upload", "decode upload response", err)
	}

	hosted := strings.TrimSpace(payload.Data.URL)
	if hosted == "" {
		hosted = strings.TrimSpace(payload.Data.DisplayURL)
	}
	if !payload.Success || hosted == "" {
		return "", services.Wrap(services.ErrHosting, "imagehost", "upload", "upload response carried no hosted url", nil)
	}
	return hosted, nil
}

func isHTTPRef(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
