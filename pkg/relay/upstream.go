package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kiriru/mistral-relay/pkg/config"
	"github.com/kiriru/mistral-relay/pkg/logger"
	"github.com/kiriru/mistral-relay/pkg/version"
)

// Upstream sends relayed requests to the chat-completion API. Responses are
// returned unread so that the caller can stream them.
type Upstream struct {
	client    *resty.Client
	base      *url.URL
	userAgent string
	log       logger.Logger
}

// NewUpstream builds the upstream client. No retries are made and redirects
// are handed back to the caller untouched. resty owns the transport and the
// redirect policy; requests themselves go out through its http.Client so that
// no header the client did not send is added on the way.
func NewUpstream(cfg *config.UpstreamConfig, log logger.Logger) (*Upstream, error) {
	if cfg == nil {
		return nil, fmt.Errorf("upstream config cannot be nil")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("upstream base URL scheme must be http or https, got: %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("upstream base URL must have a host, got: %q", cfg.BaseURL)
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ResponseHeaderTimeout: cfg.Timeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	client := resty.New().
		SetTransport(transport).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})).
		SetTimeout(0)
	return &Upstream{client: client, base: base, userAgent: userAgent, log: log}, nil
}

// URL returns the upstream target for an inbound escaped path and raw query.
// A path prefix on the base URL is kept in front of path.
func (u *Upstream) URL(escapedPath, rawQuery string) string {
	var sb strings.Builder
	sb.WriteString(u.base.Scheme)
	sb.WriteString("://")
	sb.WriteString(u.base.Host)
	sb.WriteString(strings.TrimSuffix(u.base.EscapedPath(), "/"))
	sb.WriteString(escapedPath)
	if rawQuery != "" {
		sb.WriteByte('?')
		sb.WriteString(rawQuery)
	}
	return sb.String()
}

// Do sends one request with exactly the given headers, plus a User-Agent when
// the caller has none. The caller owns the returned response body.
func (u *Upstream) Do(
	ctx context.Context,
	method, target string,
	header http.Header,
	body []byte,
) (*http.Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	for k, vv := range header {
		req.Header[k] = append([]string(nil), vv...)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", u.userAgent)
	}
	resp, err := u.client.GetClient().Do(req)
	if err != nil {
		u.log.Debug("Upstream request failed", "method", method, "target", target, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return resp, nil
}
