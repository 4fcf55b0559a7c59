package service

import (
	"net/url"
	"strings"

	"github.com/dfrnproto/dfrnd/internal/errs"
)

// URLPolicy is the allow/deny policy applied to remote profile locators.
// An empty allow list admits every domain not explicitly blocked.
type URLPolicy struct {
	AllowedDomains []string
	BlockedDomains []string
}

// Check validates a profile URL against the policy.
func (p *URLPolicy) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errs.ErrDisallowedURL
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range p.BlockedDomains {
		if matchDomain(host, d) {
			return errs.ErrBlockedDomain
		}
	}
	if len(p.AllowedDomains) == 0 {
		return nil
	}
	for _, d := range p.AllowedDomains {
		if matchDomain(host, d) {
			return nil
		}
	}
	return errs.ErrDisallowedURL
}

func matchDomain(host, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}
