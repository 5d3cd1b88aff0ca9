package ingest

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters stripped during canonicalization.
// They vary per click, never per posting.
var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"msclkid": true,
	"mc_cid":  true,
	"mc_eid":  true,
	"mkt_tok": true,
}

// CanonicalURL standardizes a URL so that equality means identity.
// It lowercases scheme and host, removes default ports and fragments, drops
// tracking parameters, and sorts the remaining query. The result is stable
// across repeated application.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if trackingParams[lk] || strings.HasPrefix(lk, "utm_") {
			q.Del(k)
		}
	}
	for k := range q {
		sort.Strings(q[k])
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ResolveRef resolves href against base, returning an absolute URL.
// Already-absolute hrefs pass through unchanged.
func ResolveRef(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base: %w", err)
	}
	return b.ResolveReference(ref).String(), nil
}
