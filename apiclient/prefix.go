package apiclient

import (
	"regexp"
	"strings"
)

var absoluteURL = regexp.MustCompile(`(?i)^https?://`)

// APIPrefix derives the API prefix from a configured base URL:
// "" gives "/api", a base already ending in "/api" is kept, anything else
// gets "/api" appended. Trailing slashes are ignored.
func APIPrefix(base string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	switch {
	case trimmed == "":
		return "/api"
	case strings.HasSuffix(trimmed, "/api"):
		return trimmed
	default:
		return trimmed + "/api"
	}
}

// NormalizeURL maps a caller supplied URL or path onto the API.
// Absolute http(s) URLs and paths already under the prefix are returned
// unchanged. Other rooted paths are appended to the prefix and bare paths are
// joined to it with a slash, so "/jumps" and "jumps" both become "/api/jumps"
// and "/api/jumps" never becomes "/api/api/jumps".
func NormalizeURL(input, base string) string {
	if absoluteURL.MatchString(input) {
		return input
	}
	prefix := APIPrefix(base)
	if underAPI(input, "/api") || underAPI(input, prefix) {
		return input
	}
	if strings.HasPrefix(input, "/") {
		return prefix + input
	}
	return prefix + "/" + input
}

func underAPI(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '/' || rest[0] == '?' || rest[0] == '#'
}
