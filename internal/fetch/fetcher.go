// Package fetch retrieves garment images referenced by URL. Boutique owners
// routinely paste links to third-party CDNs, so a single direct GET is not
// good enough: dead links, slow origins, and cross-origin restrictions are
// everyday failures. The fetcher tries an ordered chain of strategies, each
// with its own deadline, and stops at the first success.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/weliakcay/mirrorly-app/internal/imaging"
)

// ErrGarmentUnavailable is returned when every strategy in the chain has
// failed. It is a distinct, user-legible category: the shopper is told the
// garment image could not be loaded, not that the mirror broke.
var ErrGarmentUnavailable = errors.New("garment image unavailable")

// maxImageBytes caps a fetched body. Anything bigger is not a garment photo.
const maxImageBytes = 20 << 20

// strategy is one rung of the fallback chain.
type strategy struct {
	name    string
	timeout time.Duration
	do      func(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Fetcher downloads garment images with a direct-then-proxy fallback chain.
type Fetcher struct {
	// Client issues all requests. Per-strategy deadlines are applied via
	// context, so the client itself should carry no timeout.
	Client *http.Client
	// DirectTimeout bounds the direct origin load (~8s).
	DirectTimeout time.Duration
	// ProxyTimeout bounds the relay fallback (~10s).
	ProxyTimeout time.Duration
	// ProxyBase is the relay prefix the target URL is appended to,
	// e.g. "https://images.weserv.nl/?url=".
	ProxyBase string

	// now is a test seam for the cache-busting timestamp.
	now func() time.Time
}

// New constructs a Fetcher with the given deadlines and relay base.
func New(directTimeout, proxyTimeout time.Duration, proxyBase string) *Fetcher {
	return &Fetcher{
		Client:        &http.Client{},
		DirectTimeout: directTimeout,
		ProxyTimeout:  proxyTimeout,
		ProxyBase:     proxyBase,
		now:           time.Now,
	}
}

// Fetch retrieves the image at rawURL, returning its bytes and sniffed mime
// type. Strategies run in order; the first success wins. When the whole chain
// fails the returned error wraps both ErrGarmentUnavailable and the last
// strategy's failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	chain := []strategy{
		{name: "direct", timeout: f.DirectTimeout, do: f.fetchDirect},
	}
	if f.ProxyBase != "" {
		chain = append(chain, strategy{name: "proxy", timeout: f.ProxyTimeout, do: f.fetchProxied})
	}

	var lastErr error
	for _, s := range chain {
		sctx, cancel := context.WithTimeout(ctx, s.timeout)
		data, mime, err := s.do(sctx, rawURL)
		cancel()
		if err == nil {
			return data, mime, nil
		}
		lastErr = err
		log.Warn().
			Str("strategy", s.name).
			Str("url", rawURL).
			Err(err).
			Msg("garment image fetch failed")
	}
	return nil, "", fmt.Errorf("%w: %w", ErrGarmentUnavailable, lastErr)
}

// fetchDirect loads the image straight from its origin. A cache-busting query
// parameter avoids replaying a stale cached response from a prior attempt at
// the same URL.
func (f *Fetcher) fetchDirect(ctx context.Context, rawURL string) ([]byte, string, error) {
	return f.get(ctx, withCacheBust(rawURL, f.now().UnixNano()))
}

// fetchProxied re-issues the fetch through the configured relay, which
// retrieves the image server-side and so is immune to origin restrictions.
func (f *Fetcher) fetchProxied(ctx context.Context, rawURL string) ([]byte, string, error) {
	return f.get(ctx, f.ProxyBase+url.QueryEscape(rawURL))
}

func (f *Fetcher) get(ctx context.Context, u string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	// An origin that answers with HTML (login walls, hotlink blockers)
	// produced no usable image; treat it as a failure, not a success.
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, "", fmt.Errorf("non-image content type %q", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty response body")
	}
	if len(data) > maxImageBytes {
		return nil, "", errors.New("image exceeds size limit")
	}
	return data, imaging.SniffMIME(data), nil
}

// withCacheBust appends a timestamp query parameter to u.
func withCacheBust(u string, nanos int64) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%scb=%d", u, sep, nanos)
}
