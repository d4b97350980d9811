// Package bilibili talks to video platform API: video metadata, notes and
// note images.
package bilibili

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"tlnote/retry"
)

// ErrBadCookie is returned when cookie lacks session or csrf values.
var ErrBadCookie = errors.New("cookie must contain SESSDATA and bili_jct fields")

// APIError is non zero response code reported by the platform.
type APIError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: platform error %d: %s", e.Endpoint, e.Code, e.Message)
}

// Config of the client.
type Config struct {
	APIBase   string        `yaml:"api_base" validate:"required,url"`
	Referer   string        `yaml:"referer" validate:"omitempty,url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
	// Pause between consecutive mutating calls.
	Pause time.Duration `yaml:"pause" validate:"gte=0"`
	Retry retry.Config  `yaml:"retry"`
}

// DefaultConfig returns production endpoints.
func DefaultConfig() Config {
	return Config{
		APIBase:   "https://api.bilibili.com",
		Referer:   "https://www.bilibili.com",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/83.0.4103.116 Safari/537.36",
		Timeout:   30 * time.Second,
		Pause:     time.Second,
		Retry:     retry.DefaultConfig(),
	}
}

const (
	pathView       = "/x/web-interface/view"
	pathNoteList   = "/x/note/list/archive"
	pathNoteAdd    = "/x/note/add"
	pathNoteUpload = "/x/note/image/upload"
)

var csrfRe = regexp.MustCompile(`bili_jct=([0-9a-zA-Z]{32})`)

// ParseCookie validates cookie and extracts csrf token from it.
func ParseCookie(cookie string) (string, error) {
	if !strings.Contains(cookie, "SESSDATA=") || !strings.Contains(cookie, "bili_jct=") {
		return "", ErrBadCookie
	}
	m := csrfRe.FindStringSubmatch(cookie)
	if m == nil {
		return "", ErrBadCookie
	}
	return m[1], nil
}

// Client is platform API client.
type Client struct {
	cfg    Config
	http   *http.Client
	cookie string
	csrf   string
	log    *zap.Logger
}

// New creates authenticated client.
func New(cfg Config, cookie string, log *zap.Logger) (*Client, error) {
	csrf, err := ParseCookie(cookie)
	if err != nil {
		return nil, err
	}
	c := NewPublic(cfg, log)
	c.cookie, c.csrf = cookie, csrf
	return c, nil
}

// NewPublic creates client which could only call endpoints not requiring
// authentication.
func NewPublic(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.Named("bilibili"),
	}
}

// Authenticated reports whether client carries session cookie.
func (c *Client) Authenticated() bool {
	return len(c.csrf) > 0
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// call performs request produced by build with retries and decodes "data"
// part of the response into out.
func (c *Client) call(ctx context.Context, endpoint string, build func(context.Context) (*http.Request, error), out any) error {
	return retry.Do(ctx, c.cfg.Retry, c.log, func(ctx context.Context) error {
		req, err := build(ctx)
		if err != nil {
			return retry.Permanent(err)
		}
		if len(c.cfg.Referer) > 0 {
			req.Header.Set("Referer", c.cfg.Referer)
		}
		if len(c.cfg.UserAgent) > 0 {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}
		if len(c.cookie) > 0 {
			req.Header.Set("Cookie", c.cookie)
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: %w", endpoint, err)
		}
		c.log.Debug("API call", zap.String("endpoint", endpoint), zap.Int("status", resp.StatusCode), zap.Duration("elapsed", time.Since(start)))

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%s: http status %s", endpoint, resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Permanent(fmt.Errorf("%s: http status %s", endpoint, resp.Status))
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return retry.Permanent(fmt.Errorf("%s: unable to decode response: %w", endpoint, err))
		}
		if env.Code != 0 {
			return retry.Permanent(&APIError{Endpoint: endpoint, Code: env.Code, Message: env.Message})
		}
		if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return retry.Permanent(fmt.Errorf("%s: unable to decode data: %w", endpoint, err))
		}
		return nil
	})
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.call(ctx, path, func(ctx context.Context) (*http.Request, error) {
		u := c.cfg.APIBase + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	if !c.Authenticated() {
		return ErrBadCookie
	}
	form.Set("csrf", c.csrf)
	return c.call(ctx, path, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, out)
}

// pause waits between mutating calls so platform does not throttle us.
func (c *Client) pause(ctx context.Context) error {
	if c.cfg.Pause <= 0 {
		return nil
	}
	select {
	case <-time.After(c.cfg.Pause):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UploadImage stores image on the platform and returns its location.
func (c *Client) UploadImage(ctx context.Context, name string, data []byte) (string, error) {
	if !c.Authenticated() {
		return "", ErrBadCookie
	}
	var out struct {
		Location string `json:"location"`
	}
	err := c.call(ctx, pathNoteUpload, func(ctx context.Context) (*http.Request, error) {
		buf := new(bytes.Buffer)
		mw := multipart.NewWriter(buf)
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(data); err != nil {
			return nil, err
		}
		if err := mw.WriteField("csrf", c.csrf); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+pathNoteUpload, buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Location) == 0 {
		return "", fmt.Errorf("%s: no location returned", pathNoteUpload)
	}
	c.log.Debug("Image uploaded", zap.String("name", name), zap.Int("size", len(data)), zap.String("location", out.Location))
	return out.Location, nil
}
