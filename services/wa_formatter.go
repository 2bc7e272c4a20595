package services

import (
	"regexp"
	"strings"
)

var (
	reAnnotation = regexp.MustCompile(`【.*?】`)
	reBold       = regexp.MustCompile(`\*\*(.*?)\*\*`)
)

// FormatForWhatsApp rewrites assistant output into WhatsApp's text syntax:
// bracket-bounded source annotations (【…】) are stripped, and markdown
// double-asterisk emphasis becomes WhatsApp's single-asterisk emphasis.
func FormatForWhatsApp(text string) string {
	text = strings.TrimSpace(reAnnotation.ReplaceAllString(text, ""))
	return reBold.ReplaceAllString(text, "*$1*")
}
