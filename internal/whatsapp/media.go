package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/monitor-judicial/whatsapp-agent/internal/llm"
)

const (
	defaultMediaTimeout = 15 * time.Second
	// Voice notes are short; anything larger is not sent to the model.
	defaultMaxMediaBytes = 10 << 20
	maxMediaRedirects    = 5
)

// DefaultMediaHost serves every Twilio media URL.
const DefaultMediaHost = "api.twilio.com"

var (
	errMediaTooLarge = errors.New("media exceeds size limit")
	// ErrMediaHost is returned for media URLs outside the allowed hosts.
	// No request is made for them.
	ErrMediaHost = errors.New("media host not allowed")
)

// MediaFetcher downloads Twilio media with the account's basic auth
// credentials. It implements agent.AudioFetcher.
//
// Only URLs on an allowed host are fetched, and the credentials are sent
// only to allowed hosts: a redirect to storage elsewhere drops them.
type MediaFetcher struct {
	client     *http.Client
	accountSID string
	authToken  string
	hosts      []string
	maxBytes   int64
}

// NewMediaFetcher creates a MediaFetcher. client may be nil. hosts are the
// allowed media hosts, either "host" or "host:port"; none means
// DefaultMediaHost.
func NewMediaFetcher(client *http.Client, accountSID, authToken string, hosts ...string) *MediaFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultMediaTimeout}
	}
	if len(hosts) == 0 {
		hosts = []string{DefaultMediaHost}
	}
	f := &MediaFetcher{
		accountSID: accountSID,
		authToken:  authToken,
		hosts:      hosts,
		maxBytes:   defaultMaxMediaBytes,
	}
	c := *client
	c.CheckRedirect = f.checkRedirect
	f.client = &c
	return f
}

// Fetch downloads the media at rawURL. Twilio answers media URLs with a
// redirect to storage; the client follows it.
func (f *MediaFetcher) Fetch(ctx context.Context, rawURL string) (*llm.Blob, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse media url: %w", err)
	}
	if !f.allowed(u) {
		return nil, fmt.Errorf("%w: %q", ErrMediaHost, u.Host)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}
	if f.accountSID != "" {
		req.SetBasicAuth(f.accountSID, f.authToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download media: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errMediaTooLarge
	}

	mimeType := "audio/ogg"
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mimeType = mt
		}
	}
	return &llm.Blob{MIMEType: mimeType, Data: data}, nil
}

func (f *MediaFetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxMediaRedirects {
		return fmt.Errorf("stopped after %d redirects", maxMediaRedirects)
	}
	if !f.allowed(req.URL) {
		req.Header.Del("Authorization")
	}
	return nil
}

// allowed reports whether u is on an allowed host. Plain http is accepted
// for loopback addresses only.
func (f *MediaFetcher) allowed(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	switch u.Scheme {
	case "https":
	case "http":
		if ip := net.ParseIP(host); (ip == nil || !ip.IsLoopback()) && host != "localhost" {
			return false
		}
	default:
		return false
	}
	hostPort := strings.ToLower(u.Host)
	return slices.ContainsFunc(f.hosts, func(h string) bool {
		h = strings.ToLower(h)
		return h == host || h == hostPort
	})
}
