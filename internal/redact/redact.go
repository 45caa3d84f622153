// ABOUTME: Scrubs credentials out of text before it leaves the process.
// ABOUTME: Applied to chat messages in the activity feed and captured terminal output.

package redact

import "regexp"

// Placeholder replaces every redacted span.
const Placeholder = "[REDACTED]"

var (
	slackTokenRe = regexp.MustCompile(`(?i)xox[bpars]-\S+`)
	hexRunRe     = regexp.MustCompile(`(?i)[0-9a-f]{32,}`)
	// NAME_KEY=value, API_TOKEN: value, export DB_PASSWORD="value"
	assignmentRe = regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:KEY|SECRET|TOKEN|PASSWORD)[A-Z0-9_]*)(\s*[=:]\s*)("[^"]*"|'[^']*'|\S+)`)
	urlCredsRe   = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/\s:@]+:[^/\s@]+@`)
)

// String returns s with secrets replaced by Placeholder.
// The variable name of a secret assignment is kept so the output stays readable.
func String(s string) string {
	if s == "" {
		return s
	}
	s = slackTokenRe.ReplaceAllString(s, Placeholder)
	s = assignmentRe.ReplaceAllString(s, "${1}${2}"+Placeholder)
	s = urlCredsRe.ReplaceAllString(s, "${1}"+Placeholder+"@")
	s = hexRunRe.ReplaceAllString(s, Placeholder)
	return s
}
