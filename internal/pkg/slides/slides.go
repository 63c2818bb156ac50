package slides

import (
	"regexp"
	"strings"
)

var (
	presentationPath = regexp.MustCompile(`/presentation/d/([a-zA-Z0-9_-]+)`)
	bareID           = regexp.MustCompile(`^[a-zA-Z0-9_-]{20,}$`)
)

//ExtractID returns the presentation id from a shared, edit, preview or embed
//link, or the input itself when it already looks like a bare id.
func ExtractID(link string) (string, bool) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", false
	}

	if match := presentationPath.FindStringSubmatch(link); len(match) == 2 {
		return match[1], true
	}

	if bareID.MatchString(link) {
		return link, true
	}

	return "", false
}

//Normalize cleans up a slide reference that may have been pasted as a full
//link, falling back to the presentation link when no slide id was given.
func Normalize(slideID, presentationLink string) string {
	if strings.Contains(slideID, "docs.google.com") {
		if id, ok := ExtractID(slideID); ok {
			return id
		}
	}

	if slideID == "" && presentationLink != "" {
		if id, ok := ExtractID(presentationLink); ok {
			return id
		}
	}

	return slideID
}
