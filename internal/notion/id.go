package notion

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidIdentifier is returned when no Notion ID can be found in the input.
var ErrInvalidIdentifier = errors.New("invalid notion identifier")

var (
	hostPattern = regexp.MustCompile(`(?i)notion\.(so|site)/`)
	trailingID  = regexp.MustCompile(`(?i)([0-9a-f]{32}|[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
	compactID   = regexp.MustCompile(`(?i)^[0-9a-f]{32}$`)
)

// NormalizeID converts a share URL, a 32-character hex ID or a dashed ID into
// the lowercase dashed 8-4-4-4-12 form used by the API. It is idempotent.
func NormalizeID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if hostPattern.MatchString(s) {
		// Query strings carry view IDs and fragments carry block anchors;
		// the node ID is the end of the path.
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimRight(s, "/")
		m := trailingID.FindString(s)
		if m == "" {
			return "", fmt.Errorf("%w: no id in %q", ErrInvalidIdentifier, raw)
		}
		s = m
	}
	s = strings.ToLower(s)
	if compactID.MatchString(s) {
		return s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:], nil
	}
	if len(s) == 36 && uuid.Validate(s) == nil {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
}

// CompactID strips the dashes from an ID, as used in notion.so URLs.
func CompactID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

// PageURL returns the notion.so URL of a node.
func PageURL(id string) string {
	return "https://www.notion.so/" + CompactID(id)
}

// ShortID returns the first eight characters of an ID.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
