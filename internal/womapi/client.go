package womapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const DefaultBaseURL = "https://api.wiseoldman.net/v2"

// KeyPlacement says where the API key goes on the request.
type KeyPlacement int

const (
	KeyInQuery KeyPlacement = iota
	KeyInHeader
)

const apiKeyName = "x-api-key"

type Client struct {
	http    *resty.Client
	baseURL string
	keyIn   KeyPlacement
}

type Conf struct {
	BaseURL  string        `json:"base_url" mapstructure:"base_url"`
	KeyIn    string        `json:"api_key_in" mapstructure:"api_key_in"` // "query" | "header"
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`       // 0 = no deadline
	Retries  int           `json:"retries" mapstructure:"retries"`       // transient failures only
	MinWait  time.Duration `json:"min_wait" mapstructure:"min_wait"`
	MaxWait  time.Duration `json:"max_wait" mapstructure:"max_wait"`
	LogDebug bool          `json:"log_debug" mapstructure:"log_debug"`
}

type Option func(*Client)

// WithTransport replaces the HTTP round tripper (tests use a stub).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.SetTransport(rt) }
}

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithKeyPlacement(p KeyPlacement) Option {
	return func(c *Client) { c.keyIn = p }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithRetry enables bounded exponential backoff for transient failures
// (transport errors and 5xx). 4xx and decode failures are never retried.
func WithRetry(count int, minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		if count <= 0 {
			return
		}
		if minWait <= 0 {
			minWait = 500 * time.Millisecond
		}
		if maxWait < minWait {
			maxWait = 10 * minWait
		}
		c.http.
			SetRetryCount(count).
			SetRetryWaitTime(minWait).
			SetRetryMaxWaitTime(maxWait).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return r != nil && r.StatusCode() >= http.StatusInternalServerError
			})
	}
}

// NewClient builds a client with the plain library defaults: no timeout and
// no retries unless options say otherwise.
func NewClient(opts ...Option) *Client {
	r := resty.New().
		SetLogger(logrus.StandardLogger()).
		SetHeader("Accept", "application/json")

	c := &Client{
		http:    r,
		baseURL: DefaultBaseURL,
		keyIn:   KeyInQuery,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConf builds a client from the config file section.
func NewClientFromConf(conf Conf, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(conf.BaseURL),
		WithTimeout(conf.Timeout),
		WithRetry(conf.Retries, conf.MinWait, conf.MaxWait),
	}
	if strings.EqualFold(strings.TrimSpace(conf.KeyIn), "header") {
		base = append(base, WithKeyPlacement(KeyInHeader))
	}
	c := NewClient(append(base, opts...)...)
	c.http.SetDebug(conf.LogDebug)
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }
