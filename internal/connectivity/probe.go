package connectivity

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.trai.ch/zerr"

	"github.com/mmcdole/lectio/internal/domain"
)

// Prober checks whether the network is actually reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber sends a cache-busting HEAD request to a known-reachable URL. Any
// status below 500 counts as reachable.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober for target.
func NewHTTPProber(target string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{url: target, client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	u, err := url.Parse(p.url)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrProbeFailed.Error()), "url", p.url)
	}
	q := u.Query()
	q.Set("_", strconv.FormatInt(time.Now().UnixNano(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return zerr.Wrap(err, domain.ErrProbeFailed.Error())
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return zerr.Wrap(err, domain.ErrProbeFailed.Error())
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return zerr.With(domain.ErrProbeFailed, "status", resp.StatusCode)
	}
	return nil
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }
