// Package miniprogram exchanges a one-time mini-program login code for a
// durable external identity via the platform's code2session endpoint.
package miniprogram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	defaultLoginURL = "https://api.weixin.qq.com/sns/jscode2session"
	requestTimeout  = 5 * time.Second
	grantType       = "authorization_code"
)

var (
	// ErrNotConfigured means app credentials are absent; the exchange can
	// never succeed until they are provided.
	ErrNotConfigured = errors.New("miniprogram credentials not configured")
	// ErrUnavailable covers transport-level failures (network, timeout,
	// non-2xx responses without a provider error body).
	ErrUnavailable = errors.New("miniprogram platform unavailable")
)

// ExchangeError carries the provider's own error code and message, e.g.
// 40029 for an invalid js_code.
type ExchangeError struct {
	Code    int
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("code2session failed: %d %s", e.Code, e.Message)
}

// Session is the durable identity resolved from a one-time code. SessionKey
// is handed back to the caller and never persisted here.
type Session struct {
	OpenID     string
	UnionID    string
	SessionKey string
}

// Config holds provider credentials. LoginURL is overridable for tests.
type Config struct {
	AppID     string
	AppSecret string
	LoginURL  string
}

// Client performs the outbound code2session call with a bounded timeout.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.LoginURL == "" {
		cfg.LoginURL = defaultLoginURL
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// Configured reports whether app credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.AppID != "" && c.cfg.AppSecret != ""
}

type sessionResponse struct {
	OpenID     string `json:"openid"`
	UnionID    string `json:"unionid"`
	SessionKey string `json:"session_key"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

// Exchange trades a one-time login code for the external identity. The call
// is never retried here; retry policy belongs to the caller.
func (c *Client) Exchange(ctx context.Context, code string) (*Session, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("appid", c.cfg.AppID)
	q.Set("secret", c.cfg.AppSecret)
	q.Set("js_code", code)
	q.Set("grant_type", grantType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.LoginURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warnw("code2session transport failure", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warnw("code2session unexpected status", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if body.ErrCode != 0 {
		c.logger.Warnw("code2session rejected", "errcode", body.ErrCode, "errmsg", body.ErrMsg)
		return nil, &ExchangeError{Code: body.ErrCode, Message: body.ErrMsg}
	}
	if body.OpenID == "" {
		return nil, fmt.Errorf("%w: empty openid", ErrUnavailable)
	}

	return &Session{OpenID: body.OpenID, UnionID: body.UnionID, SessionKey: body.SessionKey}, nil
}
