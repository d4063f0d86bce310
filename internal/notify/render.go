package notify

import (
	"fmt"
	"sort"
	"strings"

	"opsalert/internal/domain"
	"opsalert/internal/templatefmt"
)

const textBodyTemplate = `[{{ upper (printf "%s" .Level) }}] {{ .Title }}
Service: {{ .Service }}
Rule: {{ .RuleName }}
Time: {{ .Timestamp.UTC.Format "2006-01-02 15:04:05 UTC" }}
{{ .Message }}{{ if .Details }}
Details:
{{ range .DetailLines }}  {{ . }}
{{ end }}{{ end }}`

// textPayload carries template fields for plain-text rendering.
// Params: alert fields plus pre-sorted detail lines.
// Returns: template data for the text body.
type textPayload struct {
	domain.Alert
	DetailLines []string
}

// RenderText renders one alert into the shared plain-text body used by
// email and chat channels.
// Params: alert to render.
// Returns: rendered body; falls back to a minimal line on template error.
func RenderText(alert domain.Alert) string {
	tmpl, err := templatefmt.ParseMessageTemplate("alert_text", textBodyTemplate)
	if err != nil {
		return fallbackText(alert)
	}
	payload := textPayload{Alert: alert, DetailLines: detailLines(alert.Details)}
	var out strings.Builder
	if err := tmpl.Execute(&out, payload); err != nil {
		return fallbackText(alert)
	}
	return out.String()
}

// Subject builds a one-line summary for subject-style channels.
// Params: alert to summarize.
// Returns: severity-prefixed subject line.
func Subject(alert domain.Alert) string {
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(alert.Level)), alert.Service, alert.Title)
}

// detailLines formats the details excerpt in stable key order.
// Params: alert detail map.
// Returns: "key: value" lines sorted by key.
func detailLines(details map[string]string) []string {
	if len(details) == 0 {
		return nil
	}
	keys := make([]string, 0, len(details))
	for key := range details {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+": "+details[key])
	}
	return lines
}

// fallbackText builds a minimal body when the template cannot render.
// Params: alert to render.
// Returns: single-line body.
func fallbackText(alert domain.Alert) string {
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(alert.Level)), alert.Title, alert.Message)
}
