package campaign

import "strings"

const minTrackingLinkLen = 10

var trackingLinkSchemes = []string{"https://", "http://"}

// Upstream returns these while the link is still being provisioned. They
// are matched against whole host, path and query tokens.
var trackingLinkPlaceholders = []string{
	"pending",
	"generating",
	"processing",
	"placeholder",
	"undefined",
	"null",
}

// ValidTrackingLink reports whether link is a real delivery link. Anything
// else means the link is not available yet; it is never an error.
func ValidTrackingLink(link string) bool {
	link = strings.TrimSpace(link)
	if len(link) <= minTrackingLinkLen {
		return false
	}
	lower := strings.ToLower(link)
	hasScheme := false
	for _, scheme := range trackingLinkSchemes {
		if strings.HasPrefix(lower, scheme) {
			hasScheme = true
			break
		}
	}
	if !hasScheme {
		return false
	}
	for _, tok := range strings.FieldsFunc(lower, notAlnum) {
		for _, p := range trackingLinkPlaceholders {
			if tok == p {
				return false
			}
		}
	}
	return true
}

func notAlnum(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}
