// Package urlutil implements the normalization, classification, and
// resolution helpers the crawl loop and change-detection cascade share.
package urlutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var assetExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true,
	".css": true, ".js": true, ".mjs": true, ".ico": true, ".woff": true,
	".woff2": true, ".ttf": true, ".eot": true, ".zip": true, ".mp4": true,
	".mp3": true, ".webp": true,
}

// Normalize strips the query string and fragment from rawURL, preserving
// a trailing slash. Unparseable input is returned verbatim.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Prefix returns origin+pathname for rawURL, used to confine crawling and
// for prefix-scoped store cleanup. A bare origin keeps its trailing
// slash.
func Prefix(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return u.Scheme + "://" + u.Host + path
}

// Build resolves href against base per RFC 3986. It returns "" on
// failure; callers are expected to log a warning, not treat this as
// fatal.
func Build(href, base string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(ref).String()
}

// ShouldProcess reports whether a url is a candidate for crawling: it
// accepts extensionless paths, .html, .htm, and .pdf (case-insensitive),
// and rejects known asset extensions. Malformed input is reported back
// to the caller as an error rather than silently dropped.
func ShouldProcess(rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("urlutil: malformed url %q: %w", rawURL, err)
	}
	ext := extensionOf(u.Path)
	switch ext {
	case "", ".html", ".htm", ".pdf":
		return true, nil
	}
	return !assetExtensions[ext], nil
}

// IsPDF reports whether rawURL's pathname suffix is .pdf (case-insensitive).
func IsPDF(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawURL), ".pdf")
	}
	return extensionOf(u.Path) == ".pdf"
}

func extensionOf(path string) string {
	idx := strings.LastIndex(path, "/")
	base := path
	if idx >= 0 {
		base = path[idx+1:]
	}
	dot := strings.LastIndex(base, ".")
	if dot < 0 {
		return ""
	}
	return strings.ToLower(base[dot:])
}

var tokenRE = regexp.MustCompile(`\s+|\S+`)

// Tokenize splits text on whitespace runs while keeping the separators as
// tokens, so strings.Join(Tokenize(s), "") == s for all s. Token count is
// used as a cheap proxy for embedding-model token budget elsewhere in the
// pipeline.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return tokenRE.FindAllString(text, -1)
}

// NormalizeMetadataKey replaces every non-alphanumeric rune with an
// underscore, the convention used for metadata keys like
// last_run_date:<normalized-repo>.
func NormalizeMetadataKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
