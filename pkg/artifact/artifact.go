// Package artifact pulls the generated markup out of raw model output and
// signs it.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/nstogner/forge/pkg/domain"
)

const (
	openFence  = "```html"
	closeFence = "```"
)

// Extract returns the interior of the first ```html fenced block in raw,
// trimmed of surrounding whitespace. Text without a fence, or with an
// unterminated one, is returned unchanged.
func Extract(raw string) string {
	start := strings.Index(raw, openFence)
	if start < 0 {
		return raw
	}
	body := raw[start+len(openFence):]
	// Anything after the language tag on the fence line is ignored.
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return raw
	}
	body = body[nl+1:]
	end := strings.Index(body, closeFence)
	if end < 0 {
		return raw
	}
	return strings.TrimSpace(body[:end])
}

// Sign returns the hex-encoded sha256 of html. It is a pure function of the
// bytes: identical input always yields the identical signature.
func Sign(html string) string {
	sum := sha256.Sum256([]byte(html))
	return hex.EncodeToString(sum[:])
}

// Build extracts the markup from raw model text and signs it. Both the
// streaming and non-streaming generation paths finish through here.
func Build(raw string) *domain.Artifact {
	html := Extract(raw)
	return &domain.Artifact{HTML: html, Signature: Sign(html)}
}
