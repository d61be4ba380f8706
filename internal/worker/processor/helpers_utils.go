package processor

import (
	"fmt"
	"html"
	"strings"

	"mediarelay/internal/media"
)

const (
	defaultTitle    = "Untitled media"
	defaultUploader = "Unknown source"
	// maxTitleRunes bounds title and uploader before escaping.
	maxTitleRunes = 200
)

// FormatCaption renders the caption of the first delivered item as HTML.
func FormatCaption(c media.Caption, botUsername string) string {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = defaultTitle
	}
	uploader := strings.TrimSpace(c.Uploader)
	if uploader == "" {
		uploader = defaultUploader
	}

	return fmt.Sprintf("<b>%s</b>\n\nSource: %s\nDownloaded by: %s",
		html.EscapeString(clip(title, maxTitleRunes)),
		html.EscapeString(clip(uploader, maxTitleRunes)),
		html.EscapeString(Mention(botUsername)),
	)
}

// Mention returns name with a leading "@".
func Mention(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "@") {
		return name
	}
	return "@" + name
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
