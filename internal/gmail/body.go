package gmail

import (
	"encoding/base64"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	gmailapi "google.golang.org/api/gmail/v1"
)

var (
	breakTags  = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|tr|li|h[1-6])>`)
	cellTags   = regexp.MustCompile(`(?i)</t[dh]>`)
	blankSpace = regexp.MustCompile(`[ \t\x{00a0}]+`)
	stripTags  = bluemonday.StrictPolicy()
)

// extractBody returns the plain-text body of a message, preferring a
// text/plain part and falling back to converted text/html.
func extractBody(payload *gmailapi.MessagePart) string {
	if payload == nil {
		return ""
	}
	if text := findPart(payload, "text/plain"); text != "" {
		return normalizeText(text)
	}
	if markup := findPart(payload, "text/html"); markup != "" {
		return htmlToText(markup)
	}
	return ""
}

// findPart walks the MIME tree depth first and decodes the first part of
// mimeType with a non-empty body.
func findPart(part *gmailapi.MessagePart, mimeType string) string {
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		if decoded, ok := decodeBase64URL(part.Body.Data); ok {
			return decoded
		}
	}
	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func decodeBase64URL(data string) (string, bool) {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding} {
		if b, err := enc.DecodeString(data); err == nil {
			return string(b), true
		}
	}
	return "", false
}

func htmlToText(markup string) string {
	markup = breakTags.ReplaceAllString(markup, "$0\n")
	markup = cellTags.ReplaceAllString(markup, "$0 ")
	return normalizeText(html.UnescapeString(stripTags.Sanitize(markup)))
}

// normalizeText trims each line, collapses runs of spaces and drops blank lines.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(blankSpace.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
