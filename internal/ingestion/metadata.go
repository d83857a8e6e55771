package ingestion

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// DefaultAllowedExtensions lists the file extensions accepted for ingestion.
var DefaultAllowedExtensions = []string{".pdf", ".docx", ".txt", ".md"}

// maxFileNameLength caps sanitized file names.
const maxFileNameLength = 255

var unsafeFileNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeFileName replaces path separators, reserved characters and ".."
// with "_" and truncates the result to 255 bytes.
func SanitizeFileName(name string) string {
	name = unsafeFileNameChars.ReplaceAllString(name, "_")
	name = strings.ReplaceAll(name, "..", "_")
	if len(name) > maxFileNameLength {
		name = name[:maxFileNameLength]
	}
	return name
}

// Extension returns the lower-cased extension of name including the dot,
// or "" when there is none.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i:])
}

// FileType returns the extension of name without the dot, e.g. "txt".
func FileType(name string) string {
	return strings.TrimPrefix(Extension(name), ".")
}

// extensionAllowed reports whether name carries one of allowed.
func extensionAllowed(name string, allowed []string) bool {
	ext := Extension(name)
	return ext != "" && slices.Contains(allowed, ext)
}

// FileNameFromURL derives a document name from a URL: the last path segment
// when it carries an allowed extension, otherwise the host and path joined with "_" and
// suffixed with ".md". The result is sanitized.
func FileNameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return SanitizeFileName(rawURL + ".md")
	}

	segments := trimSegments(parsed.Path)
	if n := len(segments); n > 0 && extensionAllowed(segments[n-1], DefaultAllowedExtensions) {
		return SanitizeFileName(segments[n-1])
	}

	parts := append([]string{strings.ToLower(parsed.Hostname())}, segments...)
	return SanitizeFileName(strings.Join(parts, "_") + ".md")
}

// trimSegments splits a URL path into non-empty segments.
func trimSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
