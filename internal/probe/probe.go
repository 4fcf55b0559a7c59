// Package probe discovers the machine-readable DFRN descriptor published
// on a remote profile page: display name, avatar, site public key, and
// the four protocol endpoint URLs.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/dfrnproto/dfrnd/internal/model"
)

// Fetcher is the subset of the outbound HTTP client the probe needs.
type Fetcher interface {
	Get(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}

// Prober resolves a locator to a profile descriptor.
type Prober interface {
	Probe(ctx context.Context, locator string) (*model.Profile, error)
}

// HTTPProber probes profiles over HTTP.
type HTTPProber struct {
	fetch   Fetcher
	timeout time.Duration
}

// New constructs an HTTP prober.
func New(fetch Fetcher) *HTTPProber {
	return &HTTPProber{fetch: fetch, timeout: 20 * time.Second}
}

// ResolveLocator turns an address-style identifier (user@host) into a
// canonical profile URL; URLs pass through unchanged.
func ResolveLocator(locator string) string {
	locator = strings.TrimSpace(locator)
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return locator
	}
	locator = strings.TrimPrefix(locator, "acct:")
	if at := strings.IndexByte(locator, '@'); at > 0 {
		user, host := locator[:at], locator[at+1:]
		return fmt.Sprintf("https://%s/profile/%s", host, user)
	}
	return locator
}

// NormalizeURL strips the scheme and trailing slash so http/https
// variants of the same profile compare equal.
func NormalizeURL(u string) string {
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	return strings.TrimSuffix(strings.ToLower(u), "/")
}

// Probe fetches the locator's profile page and extracts the descriptor.
// A zero-valued Profile means nothing DFRN-shaped was found.
func (p *HTTPProber) Probe(ctx context.Context, locator string) (*model.Profile, error) {
	u := ResolveLocator(locator)
	body, err := p.fetch.Get(ctx, u, p.timeout)
	if err != nil {
		return nil, err
	}
	prof := ParseProfile(body)
	if prof.Addr == "" && strings.Contains(u, "/profile/") {
		if at := strings.LastIndex(u, "/profile/"); at >= 0 {
			nick := u[at+len("/profile/"):]
			host := strings.TrimPrefix(strings.TrimPrefix(u[:at], "https://"), "http://")
			prof.Addr = nick + "@" + host
		}
	}
	return prof, nil
}

// ParseProfile scans an HTML document for DFRN link relations and meta
// fields. Recognized markup:
//
//	<link rel="dfrn-request|dfrn-confirm|dfrn-notify|dfrn-poll" href="...">
//	<meta name="dfrn-name|dfrn-nick|dfrn-photo|dfrn-addr|dfrn-key" content="...">
func ParseProfile(body []byte) *model.Profile {
	prof := &model.Profile{Network: model.NetworkFeed}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return prof
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "link":
				rel, href := attr(n, "rel"), attr(n, "href")
				switch rel {
				case "dfrn-request":
					prof.Request = href
				case "dfrn-confirm":
					prof.Confirm = href
				case "dfrn-notify":
					prof.Notify = href
				case "dfrn-poll":
					prof.Poll = href
				}
			case "meta":
				name, content := attr(n, "name"), attr(n, "content")
				switch name {
				case "dfrn-name":
					prof.Name = content
				case "dfrn-nick":
					prof.Nick = content
				case "dfrn-photo":
					prof.Photo = content
				case "dfrn-addr":
					prof.Addr = content
				case "dfrn-key":
					prof.Key = content
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if prof.Request != "" {
		prof.Network = model.NetworkDFRN
	}
	return prof
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
