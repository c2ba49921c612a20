package errs

import "regexp"

// sanitizePatterns match substrings that must never reach a client response:
// credentials embedded in connection strings, bearer
// tokens, emails, and raw IPv4 literals that would leak upstream topology.
var sanitizePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password|passwd|pwd)\s*=\s*[^&\s]+`),
	regexp.MustCompile(`(?i)(token|secret|api[_-]?key)\s*[:=]\s*[^&\s,}]+`),
	regexp.MustCompile(`(?i)bearer\s+[a-z0-9._-]+`),
	regexp.MustCompile(`(?i)basic\s+[a-z0-9+/=]+`),
	regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^:\s]+:[^@\s]+@`),
	regexp.MustCompile(`[0-9]{1,3}(\.[0-9]{1,3}){3}`),
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)

var lineBreaks = regexp.MustCompile(`[\t\r\n]`)

const redacted = "[redacted]"

// Sanitize strips secrets, credentials, and control characters from a
// message before it is returned to a caller. Tabs, carriage returns and
// line feeds are replaced by a space; other control characters are removed.
func Sanitize(msg string) string {
	out := lineBreaks.ReplaceAllString(msg, " ")
	out = controlChars.ReplaceAllString(out, "")
	for _, p := range sanitizePatterns {
		out = p.ReplaceAllString(out, redacted)
	}
	return out
}
