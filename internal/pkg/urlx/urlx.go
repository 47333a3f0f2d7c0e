// Package urlx holds small URL and image-element helpers shared by the
// collector and processor. All functions are pure.
package urlx

import (
	"net/url"
	"strings"
)

// excludeKeywords marks image elements that are almost certainly page chrome
// rather than article imagery.
var excludeKeywords = []string{"logo", "icon", "favicon", "avatar", "badge", "button"}

// imageExtensions are the extensions accepted by the vision model and by the
// processor's content-type fallback.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg"}

// Normalize resolves a possibly-relative URL against base. Absolute URLs are
// returned as-is; an empty or unparsable input comes back unchanged.
func Normalize(raw, base string) string {
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if base == "" {
		return raw
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return baseURL.ResolveReference(ref).String()
}

// IsValid reports whether raw parses as an absolute http(s) URL with a host.
func IsValid(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// LooksLikeLogoOrIcon inspects an image element's alt text, class list and
// source URL for chrome keywords.
func LooksLikeLogoOrIcon(alt, class, src string) bool {
	for _, field := range []string{strings.ToLower(alt), strings.ToLower(class), strings.ToLower(src)} {
		for _, kw := range excludeKeywords {
			if strings.Contains(field, kw) {
				return true
			}
		}
	}
	return false
}

// HasImageExtension reports whether the URL path (query string ignored) ends
// in a recognized image extension.
func HasImageExtension(raw string) bool {
	path := strings.ToLower(raw)
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = strings.ToLower(u.Path)
	}
	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// HasVisionExtension is the stricter whitelist for the vision model: formats
// outside it are not reliably interpretable by the evaluator.
func HasVisionExtension(raw string) bool {
	path := strings.ToLower(raw)
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = strings.ToLower(u.Path)
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
