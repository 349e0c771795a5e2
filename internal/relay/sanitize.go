package relay

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const (
	maxNameLength = 24
	anonymousName = "anon"
)

// Clients render text verbatim, so both policies strip every tag.
var (
	namePolicy    = bluemonday.StrictPolicy()
	messagePolicy = bluemonday.StrictPolicy()
)

// SanitizeName cleans an authentication payload into a display name.
func SanitizeName(name string) string {
	cleaned := strip(namePolicy, name)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if runes := []rune(cleaned); len(runes) > maxNameLength {
		cleaned = strings.TrimSpace(string(runes[:maxNameLength]))
	}
	if cleaned == "" {
		return anonymousName
	}
	return cleaned
}

// SanitizeMessage removes markup from message text.
func SanitizeMessage(text string) string {
	return strings.TrimSpace(strip(messagePolicy, text))
}

func strip(p *bluemonday.Policy, s string) string {
	return html.UnescapeString(p.Sanitize(html.UnescapeString(s)))
}
